// Package translator turns free text into intents. Its output is untrusted.
package translator

import (
	"context"

	"github.com/codex-k8s/grades-mcp-server/internal/intent"
)

// Translator maps text to an intent on a best-effort basis.
type Translator interface {
	// Translate returns the intent for text. Unrecognized text yields intent.Fallback.
	Translate(ctx context.Context, text string) (intent.Intent, error)
}
