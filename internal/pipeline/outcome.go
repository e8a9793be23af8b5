package pipeline

import (
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/intent"
)

// State is a pipeline stage or terminal state.
type State string

// Stages in execution order, then terminal states.
const (
	StateLoadIdentity State = "load_identity"
	StatePreGuard     State = "pre_guard"
	StateValidate     State = "validate"
	StateExecute      State = "execute"
	StatePostGuard    State = "post_guard"
	StateRespond      State = "respond"

	StateBlocked   State = "blocked"
	StateFailed    State = "failed"
	StateCompleted State = "completed"
)

// Outcome is the terminal response of one request.
type Outcome struct {
	// State is blocked, failed or completed.
	State State `json:"state"`
	// Reason is set for blocked outcomes.
	Reason domain.ReasonCode `json:"reason_code,omitempty"`
	// Category is set for failed outcomes.
	Category domain.Category `json:"category,omitempty"`
	// Field names the offending field of a validation or range failure.
	Field string `json:"field,omitempty"`
	// Fields lists absent fields for MISSING_FIELDS.
	Fields []string `json:"fields,omitempty"`
	// Message is the localized user-facing text.
	Message string `json:"message"`
	// Intent is the kind of the screened intent.
	Intent intent.Kind `json:"intent"`
	// Result is the guarded result of a completed outcome.
	Result domain.Result `json:"result,omitempty"`
	// CorrelationID links logs, audit events and the response.
	CorrelationID string `json:"correlation_id"`
	// Trace lists the stages visited, ending with the terminal state.
	Trace []State `json:"trace"`
}

// Completed reports whether the request succeeded.
func (o Outcome) Completed() bool { return o.State == StateCompleted }

// Blocked reports whether policy refused the request.
func (o Outcome) Blocked() bool { return o.State == StateBlocked }

// Failed reports whether the request was malformed or the backend failed.
func (o Outcome) Failed() bool { return o.State == StateFailed }

// Visited reports whether the pipeline entered s.
func (o Outcome) Visited(s State) bool {
	for _, v := range o.Trace {
		if v == s {
			return true
		}
	}
	return false
}
