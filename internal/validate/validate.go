// Package validate checks intent field shapes and the grade scale.
package validate

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/intent"
)

// Bounds are the configurable limits applied to grade fields.
type Bounds struct {
	// MinValue is the lowest accepted grade.
	MinValue float64
	// MaxValue is the highest accepted grade.
	MaxValue float64
	// ModuleMaxLen caps module length in characters.
	ModuleMaxLen int
	// DescriptionMaxLen caps description length in characters.
	DescriptionMaxLen int
}

// DefaultBounds is the 0..20 scale with the column sizes of the grade table.
var DefaultBounds = Bounds{MinValue: 0, MaxValue: 20, ModuleMaxLen: 100, DescriptionMaxLen: 255}

// Validated is an intent that passed validation. Only Validator constructs non-empty values.
type Validated struct {
	in intent.Intent
}

// Intent returns the validated intent; the zero Validated yields Fallback.
func (v Validated) Intent() intent.Intent {
	if v.in == nil {
		return intent.Fallback{}
	}
	return v.in
}

// Kind returns the validated intent kind.
func (v Validated) Kind() intent.Kind {
	return intent.KindOf(v.in)
}

// Validator checks intents against Bounds.
type Validator struct {
	bounds Bounds
	v      *validator.Validate
}

// New returns a Validator. Zero fields of b take DefaultBounds values.
func New(b Bounds) *Validator {
	if b.MinValue == 0 && b.MaxValue == 0 {
		b.MinValue, b.MaxValue = DefaultBounds.MinValue, DefaultBounds.MaxValue
	}
	if b.ModuleMaxLen <= 0 {
		b.ModuleMaxLen = DefaultBounds.ModuleMaxLen
	}
	if b.DescriptionMaxLen <= 0 {
		b.DescriptionMaxLen = DefaultBounds.DescriptionMaxLen
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{bounds: b, v: v}
}

// Bounds returns the active limits.
func (val *Validator) Bounds() Bounds {
	return val.bounds
}

type addShape struct {
	StudentID *int64 `json:"student_id" validate:"required,gt=0"`
	SubjectID *int64 `json:"subject_id" validate:"required,gt=0"`
	ClassID   *int64 `json:"class_id" validate:"required,gt=0"`
}

type updateShape struct {
	GradeID *int64 `json:"grade_id" validate:"required,gt=0"`
}

type filterShape struct {
	StudentID *int64 `json:"student_id" validate:"omitempty,gt=0"`
	SubjectID *int64 `json:"subject_id" validate:"omitempty,gt=0"`
	ClassID   *int64 `json:"class_id" validate:"omitempty,gt=0"`
}

type reportShape struct {
	ClassID   *int64 `json:"class_id" validate:"required,gt=0"`
	SubjectID *int64 `json:"subject_id" validate:"omitempty,gt=0"`
}

// Validate normalizes and checks in. Unrecognized variants become Fallback.
func (val *Validator) Validate(in intent.Intent) (Validated, error) {
	switch v := in.(type) {
	case intent.AddGrade:
		return val.validateAdd(v)
	case intent.UpdateGrade:
		return val.validateUpdate(v)
	case intent.QueryGrades:
		if err := val.checkName(v.StudentID, v.StudentName); err != nil {
			return Validated{}, err
		}
		if err := val.shape(filterShape{StudentID: v.StudentID, SubjectID: v.SubjectID, ClassID: v.ClassID}); err != nil {
			return Validated{}, err
		}
		module, err := val.optionalText("module", v.Module, val.bounds.ModuleMaxLen)
		if err != nil {
			return Validated{}, err
		}
		v.Module = module
		return Validated{in: v}, nil
	case intent.Summary:
		if err := val.checkName(v.StudentID, v.StudentName); err != nil {
			return Validated{}, err
		}
		if err := val.shape(filterShape{StudentID: v.StudentID, SubjectID: v.SubjectID}); err != nil {
			return Validated{}, err
		}
		return Validated{in: v}, nil
	case intent.ClassReport:
		if err := val.shape(reportShape{ClassID: v.ClassID, SubjectID: v.SubjectID}); err != nil {
			return Validated{}, err
		}
		module, err := val.optionalText("module", v.Module, val.bounds.ModuleMaxLen)
		if err != nil {
			return Validated{}, err
		}
		v.Module = module
		return Validated{in: v}, nil
	case intent.Blocked:
		return Validated{in: v}, nil
	case intent.Fallback:
		return Validated{in: v}, nil
	default:
		return Validated{in: intent.Fallback{}}, nil
	}
}

func (val *Validator) validateAdd(v intent.AddGrade) (Validated, error) {
	if err := val.checkName(v.StudentID, v.StudentName); err != nil {
		return Validated{}, err
	}
	if err := val.shape(addShape{StudentID: v.StudentID, SubjectID: v.SubjectID, ClassID: v.ClassID}); err != nil {
		return Validated{}, err
	}
	module, err := val.requiredText("module", v.Module, val.bounds.ModuleMaxLen)
	if err != nil {
		return Validated{}, err
	}
	description, err := val.requiredText("description", v.Description, val.bounds.DescriptionMaxLen)
	if err != nil {
		return Validated{}, err
	}
	if v.Value == nil {
		return Validated{}, &domain.ValidationError{Field: "value", Reason: "is required"}
	}
	if err := val.CheckValue(*v.Value); err != nil {
		return Validated{}, err
	}
	v.Module, v.Description = module, description
	return Validated{in: v}, nil
}

func (val *Validator) validateUpdate(v intent.UpdateGrade) (Validated, error) {
	if err := val.shape(updateShape{GradeID: v.GradeID}); err != nil {
		return Validated{}, err
	}
	if v.Value == nil && v.Module == nil && v.Description == nil {
		return Validated{}, &domain.ValidationError{Field: "value", Reason: "nothing to update"}
	}
	if v.Value != nil {
		if err := val.CheckValue(*v.Value); err != nil {
			return Validated{}, err
		}
	}
	module, err := val.optionalText("module", v.Module, val.bounds.ModuleMaxLen)
	if err != nil {
		return Validated{}, err
	}
	description, err := val.optionalText("description", v.Description, val.bounds.DescriptionMaxLen)
	if err != nil {
		return Validated{}, err
	}
	v.Module, v.Description = module, description
	return Validated{in: v}, nil
}

// CheckValue returns InvalidRangeError when value is outside the scale.
func (val *Validator) CheckValue(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return &domain.ValidationError{Field: "value", Reason: "must be a number"}
	}
	if value < val.bounds.MinValue || value > val.bounds.MaxValue {
		return &domain.InvalidRangeError{Field: "value", Value: value, Min: val.bounds.MinValue, Max: val.bounds.MaxValue}
	}
	return nil
}

func (val *Validator) checkName(id *int64, name string) error {
	if id == nil && name != "" {
		return &domain.ValidationError{Field: "student_id", Reason: "name targets are not resolved"}
	}
	return nil
}

func (val *Validator) shape(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fieldError(verrs[0].Field(), verrs[0])
	}
	return &domain.ValidationError{Field: "intent", Reason: err.Error()}
}

func (val *Validator) requiredText(field string, value *string, maxLen int) (*string, error) {
	if value == nil {
		return nil, &domain.ValidationError{Field: field, Reason: "is required"}
	}
	return val.optionalText(field, value, maxLen)
}

func (val *Validator) optionalText(field string, value *string, maxLen int) (*string, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	err := val.v.Var(trimmed, fmt.Sprintf("required,max=%d", maxLen))
	if err == nil {
		return &trimmed, nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return nil, fieldError(field, verrs[0])
	}
	return nil, &domain.ValidationError{Field: field, Reason: err.Error()}
}

func fieldError(field string, fe validator.FieldError) error {
	reason := fe.Tag()
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "gt":
		reason = "must be a positive integer"
	case "max":
		reason = fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return &domain.ValidationError{Field: field, Reason: reason}
}
