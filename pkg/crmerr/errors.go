// Package crmerr defines the error kinds returned by the commission and pipeline packages.
package crmerr

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or out-of-domain input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an id that is not present in the in-memory store.
type NotFoundError struct {
	Kind string // e.g. "lead", "commission entry"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InvalidStageError reports a stage identifier outside the pipeline.
type InvalidStageError struct {
	Stage string
}

func (e *InvalidStageError) Error() string {
	return fmt.Sprintf("invalid pipeline stage %q", e.Stage)
}

// ExternalServiceError wraps a failure of the persistence, payment or identity collaborator.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// Validation reports an input that breaks a domain rule.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound reports a missing record of the given kind.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// InvalidStage reports a stage id that is not on the board.
func InvalidStage(stage string) error {
	return &InvalidStageError{Stage: stage}
}

// External wraps a failure of the storage collaborator.
func External(op string, err error) error {
	return &ExternalServiceError{Op: op, Err: err}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsInvalidStage reports whether err is or wraps an InvalidStageError.
func IsInvalidStage(err error) bool {
	var target *InvalidStageError
	return errors.As(err, &target)
}

// IsExternal reports whether err is or wraps an ExternalServiceError.
func IsExternal(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}
