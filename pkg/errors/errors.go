// Package errors defines the error taxonomy for the conference and
// reconciliation core.
//
// Expected business conditions (no match found, ambiguous candidates) are not
// errors: they are first-class result variants returned by the search
// components. This package covers the conditions that do surface as errors:
// user-correctable invalid input, attempts to confirm an already-conferred
// record, malformed rule definitions, and failures that abort a
// reconciliation run.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryInput          ErrorCategory = "input"
	CategoryConference     ErrorCategory = "conference"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryFile           ErrorCategory = "file"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Input errors
	CodeInvalidValue ErrorCode = "invalid_value"
	CodeInvalidDate  ErrorCode = "invalid_date"
	CodeMissingField ErrorCode = "missing_field"

	// Conference errors
	CodeAlreadyConferred ErrorCode = "already_conferred"
	CodeUnknownConferral ErrorCode = "unknown_conferral"

	// Reconciliation errors
	CodeInvalidRule ErrorCode = "invalid_rule"
	CodeRunFailed   ErrorCode = "run_failed"
	CodeNoSources   ErrorCode = "no_sources"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"

	// File errors
	CodeFileNotFound  ErrorCode = "file_not_found"
	CodeFileMalformed ErrorCode = "file_malformed"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ConferenceError is the base error type for all application errors
type ConferenceError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ConferenceError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ConferenceError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *ConferenceError) GetExitCode() int {
	switch e.Category {
	case CategoryInput:
		return 2
	case CategoryConference:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryInternal:
		return 5
	case CategoryFile:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ConferenceError) WithContext(key string, value interface{}) *ConferenceError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ConferenceError) WithSuggestion(suggestion string) *ConferenceError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ConferenceError
func New(category ErrorCategory, code ErrorCode, message string) *ConferenceError {
	return &ConferenceError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ConferenceError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ConferenceError {
	if err == nil {
		return nil
	}

	return &ConferenceError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// InvalidValueError reports an operator-typed value that does not parse to a
// non-negative decimal. Surfaced immediately, never retried.
func InvalidValueError(query string, err error) *ConferenceError {
	message := fmt.Sprintf("invalid value: '%s'", query)

	var result *ConferenceError
	if err != nil {
		result = Wrap(err, CategoryInput, CodeInvalidValue, message)
	} else {
		result = New(CategoryInput, CodeInvalidValue, message)
	}

	return result.
		WithSuggestion("type a non-negative amount using '.' or ',' as the decimal separator (e.g. '150,00')").
		WithContext("query", query)
}

// AlreadyConferredError reports a confirmation attempt on a record that is
// already consumed by a live conferred item. Distinct from "no match found"
// so the caller can explain the difference to the operator.
func AlreadyConferredError(recordKey string) *ConferenceError {
	return New(CategoryConference, CodeAlreadyConferred,
		fmt.Sprintf("record %s is already conferred", recordKey)).
		WithSuggestion("undo the existing conferral before confirming this record again").
		WithContext("record", recordKey)
}

// UnknownConferralError reports an undo attempt for a conferred ID that does
// not reference a live conferred item.
func UnknownConferralError(conferredID string) *ConferenceError {
	return New(CategoryConference, CodeUnknownConferral,
		fmt.Sprintf("no live conferral with ID %s", conferredID)).
		WithContext("conferred_id", conferredID)
}

// RuleError reports a malformed reconciliation rule definition. Fatal to the
// run it was submitted with.
func RuleError(ruleName, reason string) *ConferenceError {
	return New(CategoryReconciliation, CodeInvalidRule,
		fmt.Sprintf("invalid rule '%s': %s", ruleName, reason)).
		WithSuggestion("fix the rule definition; conditions must use equals, contains, range or pattern").
		WithContext("rule", ruleName)
}

// RunError reports a reconciliation run failure. Partial results are discarded.
func RunError(runID string, err error) *ConferenceError {
	return Wrap(err, CategoryReconciliation, CodeRunFailed,
		fmt.Sprintf("reconciliation run %s failed", runID)).
		WithContext("run_id", runID)
}

// ConfigurationError reports an invalid component configuration.
func ConfigurationError(setting string, value interface{}, err error) *ConferenceError {
	message := fmt.Sprintf("invalid configuration for '%s': %v", setting, value)

	var result *ConferenceError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, CodeInvalidConfig, message)
	} else {
		result = New(CategoryConfiguration, CodeInvalidConfig, message)
	}

	return result.
		WithContext("setting", setting).
		WithContext("value", value)
}

// FileError reports a problem reading a record file.
func FileError(code ErrorCode, path string, err error) *ConferenceError {
	var message string
	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
	case CodeFileMalformed:
		message = fmt.Sprintf("file could not be parsed: %s", path)
	default:
		message = fmt.Sprintf("file error: %s", path)
	}

	var result *ConferenceError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.WithContext("file_path", path)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total      int                   `json:"total"`
	ByCategory map[ErrorCategory]int `json:"by_category"`
	ByCode     map[ErrorCode]int     `json:"by_code"`
	Errors     []*ConferenceError    `json:"errors"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ConferenceError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	count, exists := es.ByCode[code]
	return exists && count > 0
}

// Utility functions

// IsCode checks whether an error is a ConferenceError with the given code.
func IsCode(err error, code ErrorCode) bool {
	if confErr, ok := AsConferenceError(err); ok {
		return confErr.Code == code
	}
	return false
}

// AsConferenceError extracts a ConferenceError from an error chain
func AsConferenceError(err error) (*ConferenceError, bool) {
	var confErr *ConferenceError
	if errors.As(err, &confErr) {
		return confErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a ConferenceError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ConferenceError {
	if err == nil {
		return nil
	}

	if confErr, ok := AsConferenceError(err); ok {
		return confErr
	}

	return Wrap(err, category, code, message)
}
