package quizforge

import (
	"errors"
	"fmt"
)

// Pipeline failure kinds. Match with errors.Is.
var (
	ErrValidation  = errors.New("validation error")
	ErrExtraction  = errors.New("extraction error")
	ErrSynthesis   = errors.New("synthesis error")
	ErrIdentity    = errors.New("identity error")
	ErrPersistence = errors.New("persistence error")
)

// Store sentinels
var (
	ErrQuizNotFound = errors.New("quiz not found")
	ErrQuizExists   = errors.New("quiz already exists")
	ErrForbidden    = errors.New("forbidden")
)

// PipelineError is returned by every failing pipeline step.
type PipelineError struct {
	Kind   error
	Reason string
	Err    error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

func (e *PipelineError) Is(target error) bool {
	return target == e.Kind
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func validationError(reason string, err error) error {
	return &PipelineError{Kind: ErrValidation, Reason: reason, Err: err}
}

// extractionError never carries its cause; callers can't tell retrieval from parse failures.
func extractionError(reason string) error {
	return &PipelineError{Kind: ErrExtraction, Reason: reason}
}

func synthesisError(reason string, err error) error {
	return &PipelineError{Kind: ErrSynthesis, Reason: reason, Err: err}
}

func identityError(reason string) error {
	return &PipelineError{Kind: ErrIdentity, Reason: reason}
}

func persistenceError(reason string, err error) error {
	return &PipelineError{Kind: ErrPersistence, Reason: reason, Err: err}
}
