package configs

import (
	"testing"

	"github.com/codex-k8s/grades-mcp-server/internal/dsl"
	"github.com/codex-k8s/grades-mcp-server/internal/render"
)

func TestEmbeddedConfigsLoad(t *testing.T) {
	names := Names()
	if len(names) == 0 {
		t.Fatalf("no embedded configs")
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			raw, err := Load(name)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			rendered, err := render.RenderWith(name, raw, func(string) (string, bool) { return "", false })
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			cfg, err := dsl.Load(rendered)
			if err != nil {
				t.Fatalf("dsl: %v", err)
			}
			if cfg.Server.HTTP.APIPath != "/api" || cfg.Server.Transport != "http" {
				t.Fatalf("unexpected server config: %+v", cfg.Server)
			}
			if len(cfg.Startup) != 2 || cfg.Startup[1].StepEnabled() {
				t.Fatalf("seed step must default to disabled: %+v", cfg.Startup)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	def, err := Load("")
	if err != nil || len(def) == 0 {
		t.Fatalf("default config: %v", err)
	}
	if _, err := Load("missing.yaml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
