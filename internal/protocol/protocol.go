package protocol

import (
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/pipeline"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusDenied  = "denied"
	StatusError   = "error"
)

// ToolResponse is the fixed JSON response returned to MCP and API clients.
type ToolResponse struct {
	// Status indicates the execution status.
	Status string `json:"status"`
	// ReasonCode is set when policy refused the request.
	ReasonCode string `json:"reason_code,omitempty"`
	// Category is set when the request failed.
	Category string `json:"category,omitempty"`
	// Field names the offending field.
	Field string `json:"field,omitempty"`
	// Fields lists missing fields.
	Fields []string `json:"fields,omitempty"`
	// Message is a human-readable message.
	Message string `json:"message"`
	// Intent is the handled intent kind.
	Intent string `json:"intent,omitempty"`
	// CorrelationID links related requests.
	CorrelationID string `json:"correlation_id"`
	// Result holds the guarded result of a successful call.
	Result domain.Result `json:"result,omitempty"`
}

// FromOutcome maps a pipeline outcome onto the wire response.
func FromOutcome(out pipeline.Outcome) ToolResponse {
	resp := ToolResponse{
		Status:        StatusSuccess,
		Message:       out.Message,
		Intent:        string(out.Intent),
		CorrelationID: out.CorrelationID,
		Field:         out.Field,
		Fields:        out.Fields,
	}
	switch {
	case out.Blocked():
		resp.Status = StatusDenied
		resp.ReasonCode = string(out.Reason)
	case out.Failed():
		resp.Status = StatusError
		resp.Category = string(out.Category)
	default:
		resp.Result = out.Result
	}
	return resp
}

// Denied builds a refusal that never reached the pipeline.
func Denied(reason domain.ReasonCode, message, correlationID string) ToolResponse {
	return ToolResponse{
		Status:        StatusDenied,
		ReasonCode:    string(reason),
		Message:       message,
		CorrelationID: correlationID,
	}
}

// Invalid builds a validation failure that never reached the pipeline.
func Invalid(field, message, correlationID string) ToolResponse {
	return ToolResponse{
		Status:        StatusError,
		Category:      string(domain.CategoryValidation),
		Field:         field,
		Message:       message,
		CorrelationID: correlationID,
	}
}
