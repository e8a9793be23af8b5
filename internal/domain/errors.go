package domain

import (
	"fmt"
	"strings"
)

// ReasonCode identifies why a request was blocked or denied.
type ReasonCode string

// Reason codes shared by the guardrails, the authorization service and responses.
const (
	ReasonAllowed            ReasonCode = "ALLOWED"
	ReasonNoDeleteFeature    ReasonCode = "NO_DELETE_FEATURE"
	ReasonCrossStudentAccess ReasonCode = "CROSS_STUDENT_ACCESS"
	ReasonMissingFields      ReasonCode = "MISSING_FIELDS"
	ReasonStudentCannotWrite ReasonCode = "STUDENT_CANNOT_WRITE"
	ReasonInsufficientRole   ReasonCode = "INSUFFICIENT_ROLE"
	ReasonUnknownOperation   ReasonCode = "UNKNOWN_OPERATION"
	ReasonLeakDetected       ReasonCode = "LEAK_DETECTED"

	// ReasonRateLimited is returned by the transports before a request enters the pipeline.
	ReasonRateLimited ReasonCode = "RATE_LIMITED"
)

// Category classifies failed requests at the boundary.
type Category string

// Failure categories.
const (
	CategoryUnknownIdentity Category = "unknown_identity"
	CategoryValidation      Category = "validation"
	CategoryInvalidRange    Category = "invalid_range"
	CategoryNotFound        Category = "not_found"
	CategoryStore           Category = "store_error"
)

// UnknownIdentityError reports a caller id absent from the trusted store.
type UnknownIdentityError struct {
	CallerID int64
}

func (e *UnknownIdentityError) Error() string {
	return fmt.Sprintf("unknown identity %d", e.CallerID)
}

// GuardrailBlock is the expected outcome of a guardrail refusing a request.
type GuardrailBlock struct {
	Reason ReasonCode
	Fields []string
}

func (e *GuardrailBlock) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("guardrail block: %s (%s)", e.Reason, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("guardrail block: %s", e.Reason)
}

// ValidationError reports a malformed field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthorizationError reports a deny from the authorization service.
type AuthorizationError struct {
	Reason ReasonCode
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization denied: %s", e.Reason)
}

// NotFoundError reports an unknown referenced entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// InvalidRangeError reports a grade value outside the configured scale.
type InvalidRangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("%s %.2f outside [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

// StoreError wraps a failure of the storage collaborator. Its cause is for logs only.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// LeakDetectedError reports a result that spans identities the caller may not see.
type LeakDetectedError struct {
	CallerID  int64
	ForeignID int64
	Kind      string
}

func (e *LeakDetectedError) Error() string {
	return fmt.Sprintf("leak detected: %s result for caller %d contains student %d", e.Kind, e.CallerID, e.ForeignID)
}
