package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrArticleNotFound is returned by writes that target a missing article.
	// Reads report absence through their bool result instead.
	ErrArticleNotFound = errors.New("article not found")

	// ErrInvalidCredentials does not say which half of the pair was wrong.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")
	ErrEmailAlreadyExists = errors.New("email already exists")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// ValidationError reports a missing or malformed input field. It is raised
// before any I/O and is never worth retrying.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return e.Field + " is required"
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// OperationError is the generic failure callers see when a backend call
// fails. Status is an HTTP-style severity.
type OperationError struct {
	Op     string
	Status int
	Err    error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

func operationError(op string, err error) error {
	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	return &OperationError{Op: op, Status: status, Err: err}
}

func required(fields ...[2]string) error {
	for _, f := range fields {
		if isBlank(f[1]) {
			return &ValidationError{Field: f[0]}
		}
	}
	return nil
}
