// Package identity resolves callers against the trusted user table.
package identity

import (
	"context"
	"errors"

	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/store"
)

// Directory is the part of the store the resolver reads.
type Directory interface {
	GetIdentity(ctx context.Context, id int64) (domain.Identity, error)
}

// Resolver loads the caller's identity and role for one request.
type Resolver struct {
	dir Directory
}

// NewResolver returns a Resolver backed by dir.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the stored identity for callerID.
// Role always comes from the store; nothing about the request body is consulted.
func (r *Resolver) Resolve(ctx context.Context, callerID int64) (domain.Identity, error) {
	if callerID <= 0 {
		return domain.Identity{}, &domain.UnknownIdentityError{CallerID: callerID}
	}
	ident, err := r.dir.GetIdentity(ctx, callerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, &domain.UnknownIdentityError{CallerID: callerID}
		}
		return domain.Identity{}, &domain.StoreError{Op: "get identity", Err: err}
	}
	if !ident.Role.Valid() {
		return domain.Identity{}, &domain.UnknownIdentityError{CallerID: callerID}
	}
	return ident, nil
}
