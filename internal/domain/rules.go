package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Default rule thresholds.
const (
	DefaultAttendanceThreshold = 75.0
	DefaultMarksThreshold      = 40.0
	DefaultDeclineDelta        = 20.0
	DefaultRetentionDays       = 90
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AttendanceRule flags subjects where attended/total*100 < Threshold.
type AttendanceRule struct {
	Threshold float64 `validate:"gt=0,lte=100"`
}

// MarksRule flags subjects whose latest exam percentage is < Threshold.
type MarksRule struct {
	Threshold float64 `validate:"gt=0,lte=100"`
}

// DeclineRule flags a drop of at least Delta percentage points between two
// consecutive exams of the same subject.
type DeclineRule struct {
	Delta float64 `validate:"gt=0,lte=100"`
}

// RetentionPolicy controls how long read notifications are kept.
type RetentionPolicy struct {
	MaxAgeDays int `validate:"gte=1,lte=3650"`
}

// RuleSet groups every rule the engine evaluates.
type RuleSet struct {
	Attendance AttendanceRule
	Marks      MarksRule
	Decline    DeclineRule
	Retention  RetentionPolicy
}

func DefaultRuleSet() RuleSet {
	return RuleSet{
		Attendance: AttendanceRule{Threshold: DefaultAttendanceThreshold},
		Marks:      MarksRule{Threshold: DefaultMarksThreshold},
		Decline:    DeclineRule{Delta: DefaultDeclineDelta},
		Retention:  RetentionPolicy{MaxAgeDays: DefaultRetentionDays},
	}
}

func (r AttendanceRule) Validate() error  { return validateStruct(r) }
func (r MarksRule) Validate() error       { return validateStruct(r) }
func (r DeclineRule) Validate() error     { return validateStruct(r) }
func (r RetentionPolicy) Validate() error { return validateStruct(r) }

func (r RuleSet) Validate() error {
	return validateStruct(r)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.ActualTag()+paramSuffix(fe.Param()), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func paramSuffix(param string) string {
	if param == "" {
		return ""
	}
	return "=" + param
}
