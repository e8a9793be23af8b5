package dsl

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/codex-k8s/grades-mcp-server/internal/authz"
	"github.com/codex-k8s/grades-mcp-server/internal/constants"
)

// Validate applies defaults and verifies required fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Server.Name == "" {
		return fmt.Errorf("server.name is required")
	}
	if cfg.Server.Version == "" {
		return fmt.Errorf("server.version is required")
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = constants.TransportHTTP
	}
	switch cfg.Server.Transport {
	case constants.TransportHTTP, constants.TransportStdio:
	default:
		return fmt.Errorf("server.transport must be http or stdio")
	}
	if strings.TrimSpace(cfg.Server.HTTP.Listen) == "" {
		cfg.Server.HTTP.Listen = ":8080"
	}
	if cfg.Server.HTTP.Path == "" {
		cfg.Server.HTTP.Path = "/mcp"
	}
	if !strings.HasPrefix(cfg.Server.HTTP.Path, "/") {
		return fmt.Errorf("server.http.path must start with /")
	}
	if cfg.Server.HTTP.APIPath != "" {
		if !strings.HasPrefix(cfg.Server.HTTP.APIPath, "/") {
			return fmt.Errorf("server.http.api_path must start with /")
		}
		if cfg.Server.HTTP.APIPath == cfg.Server.HTTP.Path {
			return fmt.Errorf("server.http.api_path must differ from server.http.path")
		}
	}
	durations := map[string]string{
		"server.shutdown_timeout":   cfg.Server.ShutdownTimeout,
		"server.http.read_timeout":  cfg.Server.HTTP.ReadTimeout,
		"server.http.write_timeout": cfg.Server.HTTP.WriteTimeout,
		"server.http.idle_timeout":  cfg.Server.HTTP.IdleTimeout,
		"audit.timeout":             cfg.Audit.Timeout,
		"translator.timeout":        cfg.Translator.Timeout,
	}
	for path, value := range durations {
		if err := checkDuration(path, value); err != nil {
			return err
		}
	}

	if err := validateGrading(&cfg.Grading); err != nil {
		return err
	}

	if cfg.Limits.RatePerMinute < 0 {
		return fmt.Errorf("limits.rate_per_minute must be >= 0")
	}
	if cfg.Limits.Burst < 0 {
		return fmt.Errorf("limits.burst must be >= 0")
	}
	if cfg.Limits.Burst == 0 {
		cfg.Limits.Burst = cfg.Limits.RatePerMinute
	}
	if cfg.Limits.MaxTextLength < 0 {
		return fmt.Errorf("limits.max_text_length must be >= 0")
	}

	if cfg.Audit.RedisStream == "" {
		cfg.Audit.RedisStream = "grades:audit"
	}
	if cfg.Audit.MaxLen < 0 {
		return fmt.Errorf("audit.max_len must be >= 0")
	}

	if cfg.Translator.Kind == "" {
		cfg.Translator.Kind = constants.TranslatorRules
	}
	switch cfg.Translator.Kind {
	case constants.TranslatorRules, constants.TranslatorGemini:
	default:
		return fmt.Errorf("translator.kind must be rules or gemini")
	}

	for i, step := range cfg.Startup {
		switch step.Step {
		case constants.StepMigrate, constants.StepSeed:
		case "":
			return fmt.Errorf("startup[%d].step is required", i)
		default:
			return fmt.Errorf("startup[%d].step must be migrate or seed", i)
		}
		if err := checkDuration(fmt.Sprintf("startup[%d].timeout", i), step.Timeout); err != nil {
			return err
		}
	}

	toolNames := map[string]struct{}{}
	for i, tool := range cfg.Tools {
		if tool.Name == "" {
			return fmt.Errorf("tools[%d].name is required", i)
		}
		if authz.IsDeleteOperation(authz.Operation(tool.Name)) {
			return fmt.Errorf("tools[%d]: %s is destructive and cannot be exposed", i, tool.Name)
		}
		if !slices.Contains(constants.ToolNames, tool.Name) {
			return fmt.Errorf("tools[%d]: unknown tool %s", i, tool.Name)
		}
		if _, exists := toolNames[tool.Name]; exists {
			return fmt.Errorf("duplicate tool name: %s", tool.Name)
		}
		toolNames[tool.Name] = struct{}{}
		if a := tool.Annotations; a != nil && a.DestructiveHint != nil && *a.DestructiveHint {
			return fmt.Errorf("tools[%d].annotations.destructive_hint must be false", i)
		}
		if err := checkDuration(fmt.Sprintf("tools[%d].timeout", i), tool.Timeout); err != nil {
			return err
		}
	}

	resourceURIs := map[string]struct{}{}
	for i, res := range cfg.Resources {
		if res.URI == "" {
			return fmt.Errorf("resources[%d].uri is required", i)
		}
		if _, exists := resourceURIs[res.URI]; exists {
			return fmt.Errorf("duplicate resource uri: %s", res.URI)
		}
		resourceURIs[res.URI] = struct{}{}
		if cfg.Resources[i].MIMEType == "" {
			cfg.Resources[i].MIMEType = "text/plain"
		}
	}

	return nil
}

func validateGrading(g *GradingConfig) error {
	if g.MinValue == nil {
		v := 0.0
		g.MinValue = &v
	}
	if g.MaxValue == nil {
		v := 20.0
		g.MaxValue = &v
	}
	if *g.MinValue >= *g.MaxValue {
		return fmt.Errorf("grading.min_value must be lower than grading.max_value")
	}
	if g.ModuleMaxLength == 0 {
		g.ModuleMaxLength = 100
	}
	if g.DescriptionMaxLength == 0 {
		g.DescriptionMaxLength = 255
	}
	if g.ModuleMaxLength < 0 || g.DescriptionMaxLength < 0 {
		return fmt.Errorf("grading text lengths must be > 0")
	}
	return nil
}

func checkDuration(path, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("%s is invalid: %w", path, err)
	}
	return nil
}
