// Package mcpserver exposes the grade pipeline as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codex-k8s/grades-mcp-server/internal/audit"
	"github.com/codex-k8s/grades-mcp-server/internal/constants"
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/dsl"
	"github.com/codex-k8s/grades-mcp-server/internal/intent"
	"github.com/codex-k8s/grades-mcp-server/internal/limits"
	"github.com/codex-k8s/grades-mcp-server/internal/pipeline"
	"github.com/codex-k8s/grades-mcp-server/internal/protocol"
	"github.com/codex-k8s/grades-mcp-server/internal/security"
	"github.com/codex-k8s/grades-mcp-server/internal/timeutil"
)

// Handler runs requests through the grade pipeline.
type Handler interface {
	Handle(ctx context.Context, req pipeline.Request) pipeline.Outcome
	HandleText(ctx context.Context, callerID int64, text, correlationID string) pipeline.Outcome
}

// Builder constructs an MCP server from the DSL config.
type Builder struct {
	// Pipeline handles every tool call.
	Pipeline Handler
	// Limits admits callers before the pipeline; nil admits everything.
	Limits *limits.Store
	// Logger is used for structured logging.
	Logger *slog.Logger
	// Audit records admission refusals.
	Audit audit.Logger
}

type toolDef struct {
	name        string
	title       string
	description string
	readOnly    bool
}

var defaultTools = map[string]toolDef{
	constants.ToolAskGrades: {
		title:       "Ask about grades",
		description: "Answers a free-text question or instruction about grades. Delete requests are always refused.",
	},
	constants.ToolAddGrade: {
		title:       "Add grade",
		description: "Records a new grade. Teachers only.",
	},
	constants.ToolUpdateGrade: {
		title:       "Update grade",
		description: "Changes the value, module or description of an existing grade. Teachers only.",
	},
	constants.ToolQueryGrades: {
		title:       "Query grades",
		description: "Lists grades newest first. Students only see their own grades.",
		readOnly:    true,
	},
	constants.ToolGradeSummary: {
		title:       "Grade summary",
		description: "Count, average, minimum, maximum, per-subject averages and recent evaluations of one student.",
		readOnly:    true,
	},
	constants.ToolClassReport: {
		title:       "Class report",
		description: "Per-student aggregates and class statistics. Teachers only.",
		readOnly:    true,
	},
}

// Build creates an MCP server with tools and resources.
func (b Builder) Build(cfg *dsl.Config) (*mcp.Server, error) {
	if b.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
	}, nil)

	for _, res := range cfg.Resources {
		resource := res
		server.AddResource(&mcp.Resource{
			Name:        resource.Name,
			URI:         resource.URI,
			Description: resource.Description,
			MIMEType:    resource.MIMEType,
		}, func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{
					{URI: resource.URI, MIMEType: resource.MIMEType, Text: resource.Text},
				},
			}, nil
		})
	}

	for _, name := range constants.ToolNames {
		def := defaultTools[name]
		def.name = name
		override, _ := cfg.Tool(name)
		if override.Disabled {
			continue
		}
		tool := b.describe(def, override)
		call := b.caller(name, override)
		switch name {
		case constants.ToolAskGrades:
			mcp.AddTool(server, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, protocol.ToolResponse, error) {
				return nil, call.ask(ctx, in), nil
			})
		case constants.ToolAddGrade:
			mcp.AddTool(server, tool, structured[AddGradeInput](call))
		case constants.ToolUpdateGrade:
			mcp.AddTool(server, tool, structured[UpdateGradeInput](call))
		case constants.ToolQueryGrades:
			mcp.AddTool(server, tool, structured[QueryGradesInput](call))
		case constants.ToolGradeSummary:
			mcp.AddTool(server, tool, structured[SummaryInput](call))
		case constants.ToolClassReport:
			mcp.AddTool(server, tool, structured[ClassReportInput](call))
		default:
			return nil, fmt.Errorf("tool %s has no handler", name)
		}
	}

	return server, nil
}

func (b Builder) describe(def toolDef, override dsl.ToolConfig) *mcp.Tool {
	tool := &mcp.Tool{
		Name:        def.name,
		Title:       def.title,
		Description: def.description,
		Annotations: defaultAnnotations(def),
	}
	if override.Title != "" {
		tool.Title = override.Title
	}
	if override.Description != "" {
		tool.Description = override.Description
	}
	if override.Annotations != nil {
		tool.Annotations = buildAnnotations(override.Annotations)
	}
	return tool
}

// structuredInput is implemented by every direct-call tool input.
type structuredInput interface {
	common() Common
	intent() (intent.Intent, error)
}

func structured[In structuredInput](call toolCall) mcp.ToolHandlerFor[In, protocol.ToolResponse] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, protocol.ToolResponse, error) {
		return nil, call.direct(ctx, in), nil
	}
}

// toolCall runs one tool invocation.
type toolCall struct {
	b              Builder
	name           string
	timeout        string
	timeoutMessage string
}

func (b Builder) caller(name string, override dsl.ToolConfig) toolCall {
	return toolCall{b: b, name: name, timeout: override.Timeout, timeoutMessage: override.TimeoutMessage}
}

func (c toolCall) ask(ctx context.Context, in AskInput) protocol.ToolResponse {
	common := in.common()
	correlationID := correlationID(common)
	c.logCall(in, correlationID)
	if resp, ok := c.admit(ctx, common.CallerID, correlationID); !ok {
		return resp
	}
	if d := c.b.Limits.CheckText(in.Message); !d.Allowed {
		return format(common.ResponseFormat, protocol.Invalid("message", d.Reason, correlationID))
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	out := c.b.Pipeline.HandleText(ctx, common.CallerID, in.Message, correlationID)
	return c.respond(ctx, common, out)
}

func (c toolCall) direct(ctx context.Context, in structuredInput) protocol.ToolResponse {
	common := in.common()
	correlationID := correlationID(common)
	c.logCall(in, correlationID)
	if resp, ok := c.admit(ctx, common.CallerID, correlationID); !ok {
		return resp
	}
	parsed, err := in.intent()
	if err != nil {
		return format(common.ResponseFormat, protocol.Invalid("recorded_at", err.Error(), correlationID))
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	out := c.b.Pipeline.Handle(ctx, pipeline.Request{
		CallerID:      common.CallerID,
		Intent:        parsed,
		CorrelationID: correlationID,
		Source:        constants.SourceMCP,
	})
	return c.respond(ctx, common, out)
}

func (c toolCall) admit(ctx context.Context, callerID int64, correlationID string) (protocol.ToolResponse, bool) {
	d := c.b.Limits.Admit(callerID)
	if d.Allowed {
		return protocol.ToolResponse{}, true
	}
	if c.b.Logger != nil {
		c.b.Logger.Warn("tool call rate limited", "tool", c.name, "caller_id", callerID, "retry_after", d.RetryAfter.String(), "correlation_id", correlationID)
	}
	if c.b.Audit != nil {
		c.b.Audit.Record(ctx, audit.Event{
			Type:          audit.TypeRateLimited,
			Intent:        c.name,
			CorrelationID: correlationID,
			CallerID:      callerID,
			Reason:        string(domain.ReasonRateLimited),
			Source:        constants.SourceMCP,
		})
	}
	return protocol.Denied(domain.ReasonRateLimited, d.Reason, correlationID), false
}

func (c toolCall) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := timeutil.ParseDurationOrDefault(c.timeout, 0); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}

func (c toolCall) respond(ctx context.Context, common Common, out pipeline.Outcome) protocol.ToolResponse {
	resp := protocol.FromOutcome(out)
	if out.Failed() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		resp.Message = timeoutMessage(c.timeoutMessage)
	}
	return format(common.ResponseFormat, resp)
}

func (c toolCall) logCall(in any, correlationID string) {
	if c.b.Logger == nil {
		return
	}
	c.b.Logger.Info("tool call", "tool", c.name, "correlation_id", correlationID, "args", security.RedactArguments(toArgs(in), 200))
}

func toArgs(in any) map[string]any {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil
	}
	return args
}

func correlationID(common Common) string {
	if id := strings.TrimSpace(common.CorrelationID); id != "" {
		return id
	}
	return uuid.NewString()
}

func timeoutMessage(value string) string {
	if strings.TrimSpace(value) == "" {
		return "timeout"
	}
	return value
}

// format renders the message as markdown when asked; the structured fields stay intact.
func format(responseFormat string, resp protocol.ToolResponse) protocol.ToolResponse {
	switch strings.ToLower(strings.TrimSpace(responseFormat)) {
	case "markdown":
		code := resp.ReasonCode
		if code == "" {
			code = resp.Category
		}
		header := fmt.Sprintf("**status**: %s", resp.Status)
		if code != "" {
			header += fmt.Sprintf("\n**code**: %s", code)
		}
		message := strings.TrimSpace(resp.Message)
		if message == "" {
			message = "no details"
		}
		resp.Message = header + "\n\n" + message
	}
	return resp
}

func defaultAnnotations(def toolDef) *mcp.ToolAnnotations {
	notDestructive := false
	closedWorld := false
	return &mcp.ToolAnnotations{
		ReadOnlyHint:    def.readOnly,
		DestructiveHint: &notDestructive,
		IdempotentHint:  def.readOnly,
		OpenWorldHint:   &closedWorld,
		Title:           def.title,
	}
}

func buildAnnotations(cfg *dsl.ToolAnnotationsConfig) *mcp.ToolAnnotations {
	if cfg == nil {
		return nil
	}
	notDestructive := false
	return &mcp.ToolAnnotations{
		ReadOnlyHint:    cfg.ReadOnlyHint,
		DestructiveHint: &notDestructive,
		IdempotentHint:  cfg.IdempotentHint,
		OpenWorldHint:   cfg.OpenWorldHint,
		Title:           cfg.Title,
	}
}
