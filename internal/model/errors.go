package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrInactiveExam     = errors.New("exam is not active")
	ErrImmutableAttempt = errors.New("attempt is immutable")
	ErrMalformedAnswer  = errors.New("malformed answer data")
	ErrUnknownItem      = errors.New("item not in exam")
	ErrNotActive        = errors.New("session is not active")
	ErrExpired          = errors.New("exam time has expired")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalid          = errors.New("invalid request")
	ErrUnauthorized     = errors.New("unauthorized")
)

// TransientError marks a failed network call that may succeed on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is or wraps a *TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ErrorCode returns the stable wire code for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, ErrInactiveExam):
		return "inactive_exam"
	case errors.Is(err, ErrImmutableAttempt):
		return "immutable_attempt"
	case errors.Is(err, ErrMalformedAnswer):
		return "malformed_answer"
	case errors.Is(err, ErrUnknownItem):
		return "unknown_item"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	}
	return "internal"
}

// ErrorFromCode maps a wire code back to its sentinel, or nil if unknown.
func ErrorFromCode(code string) error {
	switch code {
	case "not_found":
		return ErrNotFound
	case "already_submitted":
		return ErrAlreadySubmitted
	case "inactive_exam":
		return ErrInactiveExam
	case "immutable_attempt":
		return ErrImmutableAttempt
	case "malformed_answer":
		return ErrMalformedAnswer
	case "unknown_item":
		return ErrUnknownItem
	case "forbidden":
		return ErrForbidden
	case "invalid":
		return ErrInvalid
	case "unauthorized":
		return ErrUnauthorized
	}
	return nil
}
