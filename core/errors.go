package core

import (
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError reports malformed or missing input, optionally with field-level details.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			msgs := make([]string, 0, len(err.Fields))
			for _, f := range err.Fields {
				msgs = append(msgs, f.Field+": "+f.Error)
			}
			return strings.Join(msgs, "; ")
		}
		return ""
	}
	return err.Err.Error()
}

// RuleError is a business rule violation: the input is well-formed but not acceptable
// in the current state (e.g. amount exceeds due, payment already cancelled).
type RuleError struct {
	msg string
}

func NewRuleError(msg string) *RuleError {
	return &RuleError{msg: msg}
}

func (err RuleError) Error() string {
	return err.msg
}

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	msg string
}

func NewNotFoundError(msg string) *NotFoundError {
	return &NotFoundError{msg: msg}
}

func (err NotFoundError) Error() string {
	return err.msg
}

// ForbiddenError is returned when the acting user may not perform an operation.
type ForbiddenError struct {
	msg string
}

func NewForbiddenError(msg string) *ForbiddenError {
	return &ForbiddenError{msg: msg}
}

func (err ForbiddenError) Error() string {
	return err.msg
}

// ConflictError reports a lost unique-constraint race. Callers may retry.
type ConflictError struct {
	Err error
}

func NewConflictError(err error) error {
	return &ConflictError{Err: err}
}

func (err ConflictError) Error() string {
	if err.Err == nil {
		return "conflict"
	}
	return err.Err.Error()
}

func (err ConflictError) Unwrap() error { return err.Err }

// pgUniqueViolation is the postgres error code for unique_violation.
const pgUniqueViolation = "23505"

// TrapUniqueViolation maps postgres unique violations to a ConflictError; any other error is wrapped with msg.
func TrapUniqueViolation(err error, msg string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return NewConflictError(errors.Wrap(err, msg))
	}
	return errors.Wrap(err, msg)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
