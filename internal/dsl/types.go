package dsl

// Config is the top-level YAML configuration.
type Config struct {
	// Server describes the transports.
	Server ServerConfig `yaml:"server"`
	// Grading sets the grade scale and text bounds.
	Grading GradingConfig `yaml:"grading"`
	// Limits configures per-caller admission.
	Limits LimitsConfig `yaml:"limits"`
	// Audit configures the optional Redis audit stream.
	Audit AuditConfig `yaml:"audit"`
	// Translator selects the free-text translator.
	Translator TranslatorConfig `yaml:"translator"`
	// Startup lists one-time steps executed on start.
	Startup []StepConfig `yaml:"startup"`
	// Tools overrides MCP tool metadata.
	Tools []ToolConfig `yaml:"tools"`
	// Resources lists static resources.
	Resources []ResourceConfig `yaml:"resources"`
}

// ServerConfig defines server settings.
type ServerConfig struct {
	// Name is the MCP server name.
	Name string `yaml:"name"`
	// Version is the MCP server version.
	Version string `yaml:"version"`
	// Transport selects the MCP transport ("http" or "stdio").
	Transport string `yaml:"transport"`
	// ShutdownTimeout overrides graceful shutdown duration.
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// HTTP configures the HTTP listener.
	HTTP HTTPConfig `yaml:"http"`
}

// HTTPConfig configures the HTTP listener shared by MCP and the REST API.
type HTTPConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// Path is the MCP HTTP endpoint path.
	Path string `yaml:"path"`
	// APIPath mounts the REST API; empty disables it.
	APIPath string `yaml:"api_path"`
	// ReadTimeout limits request read time.
	ReadTimeout string `yaml:"read_timeout"`
	// WriteTimeout limits response write time.
	WriteTimeout string `yaml:"write_timeout"`
	// IdleTimeout controls idle connections.
	IdleTimeout string `yaml:"idle_timeout"`
	// Stateless disables MCP session tracking.
	Stateless bool `yaml:"stateless"`
}

// GradingConfig defines the grade scale.
type GradingConfig struct {
	// MinValue is the lowest accepted grade.
	MinValue *float64 `yaml:"min_value"`
	// MaxValue is the highest accepted grade.
	MaxValue *float64 `yaml:"max_value"`
	// ModuleMaxLength caps module labels.
	ModuleMaxLength int `yaml:"module_max_length"`
	// DescriptionMaxLength caps evaluation descriptions.
	DescriptionMaxLength int `yaml:"description_max_length"`
}

// LimitsConfig defines admission limits.
type LimitsConfig struct {
	// RatePerMinute limits requests per caller per minute.
	RatePerMinute int `yaml:"rate_per_minute"`
	// Burst is the token bucket size.
	Burst int `yaml:"burst"`
	// MaxTextLength caps free-text messages.
	MaxTextLength int `yaml:"max_text_length"`
}

// AuditConfig configures the Redis audit stream.
type AuditConfig struct {
	// RedisStream is the stream key.
	RedisStream string `yaml:"redis_stream"`
	// MaxLen trims the stream approximately.
	MaxLen int64 `yaml:"max_len"`
	// Timeout bounds one append.
	Timeout string `yaml:"timeout"`
}

// TranslatorConfig selects the free-text translator.
type TranslatorConfig struct {
	// Kind is "rules" or "gemini".
	Kind string `yaml:"kind"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
	// Timeout bounds one model call.
	Timeout string `yaml:"timeout"`
}

// StepConfig defines a startup step.
type StepConfig struct {
	// Step is "migrate" or "seed".
	Step string `yaml:"step"`
	// Enabled toggles the step; defaults to true.
	Enabled *bool `yaml:"enabled"`
	// Timeout controls step duration.
	Timeout string `yaml:"timeout"`
	// RandSeed fixes generated seed grades.
	RandSeed uint64 `yaml:"rand_seed"`
}

// ToolConfig overrides the metadata of a built-in MCP tool.
type ToolConfig struct {
	// Name is the built-in tool name.
	Name string `yaml:"name"`
	// Title is the human-friendly tool title.
	Title string `yaml:"title"`
	// Description explains the tool for the agent.
	Description string `yaml:"description"`
	// Annotations provides optional tool hints.
	Annotations *ToolAnnotationsConfig `yaml:"annotations,omitempty"`
	// Timeout is the tool execution timeout.
	Timeout string `yaml:"timeout"`
	// TimeoutMessage is returned on timeout.
	TimeoutMessage string `yaml:"timeout_message"`
	// Disabled hides the tool.
	Disabled bool `yaml:"disabled"`
}

// ResourceConfig declares a static MCP resource.
type ResourceConfig struct {
	// Name is a human-friendly resource name.
	Name string `yaml:"name"`
	// URI is the resource identifier.
	URI string `yaml:"uri"`
	// Description explains the resource.
	Description string `yaml:"description"`
	// MIMEType sets the content type.
	MIMEType string `yaml:"mime_type"`
	// Text is the static resource content.
	Text string `yaml:"text"`
}

// ToolAnnotationsConfig defines tool behavior hints.
type ToolAnnotationsConfig struct {
	// ReadOnlyHint indicates a read-only tool.
	ReadOnlyHint bool `yaml:"read_only_hint,omitempty"`
	// DestructiveHint indicates the tool may be destructive.
	DestructiveHint *bool `yaml:"destructive_hint,omitempty"`
	// IdempotentHint indicates repeated calls have no additional effect.
	IdempotentHint bool `yaml:"idempotent_hint,omitempty"`
	// OpenWorldHint indicates interaction with external entities.
	OpenWorldHint *bool `yaml:"open_world_hint,omitempty"`
	// Title is an optional tool display title.
	Title string `yaml:"title,omitempty"`
}

// StepEnabled reports whether the step should run.
func (s StepConfig) StepEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Tool returns the override for name, if any.
func (c *Config) Tool(name string) (ToolConfig, bool) {
	for _, tool := range c.Tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return ToolConfig{}, false
}
