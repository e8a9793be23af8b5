package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codex-k8s/grades-mcp-server/internal/dsl"
)

func TestNewRoutes(t *testing.T) {
	cfg := dsl.ServerConfig{HTTP: dsl.HTTPConfig{Listen: ":0", Path: "/mcp"}}
	mcp := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "mcp") })
	api := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "api") })

	a, err := New(context.Background(), cfg, mcp, map[string]http.Handler{"/api/": api}, nil, nil, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.Health().SetReady()

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	for path, want := range map[string]string{"/mcp": "mcp", "/api/me": "api", "/healthz": "ok", "/readyz": "ready"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if string(body) != want {
			t.Fatalf("GET %s = %q, want %q", path, body, want)
		}
	}
}

func TestNewRequiresHandler(t *testing.T) {
	if _, err := New(context.Background(), dsl.ServerConfig{}, nil, nil, nil, nil, 0); err == nil {
		t.Fatalf("expected error without handlers")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := dsl.ServerConfig{HTTP: dsl.HTTPConfig{Listen: "127.0.0.1:0", Path: "/mcp"}}
	a, err := New(context.Background(), cfg, http.NotFoundHandler(), nil, nil, nil, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
