package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for transport mapping.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindUnauthorized ErrorKind = "unauthorized"
	KindConflict     ErrorKind = "conflict"
	KindInternal     ErrorKind = "internal"
)

// AppError carries a kind and a user-safe message. Err holds the cause, if any.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg}
}

// NewValidationError builds an ad-hoc validation failure.
func NewValidationError(msg string) *AppError {
	return newError(KindValidation, msg)
}

// KindOf reports the kind of the first AppError in err's chain.
// Anything else is internal.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf returns the user-safe message for err. Internal failures get
// the fallback so driver text never leaves the process.
func MessageOf(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return fallback
}
