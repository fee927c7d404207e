package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNotFound   Kind = "not_found"
	KindRemote     Kind = "remote"
)

// AppError is the error type every core operation returns.
type AppError struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another *AppError by code, so callers can write
// errors.Is(err, domain.ErrNoActiveSession).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNoActiveSession = &AppError{Kind: KindAuth, Code: "NO_ACTIVE_SESSION", Message: "no active session"}
	ErrInvalidKey      = &AppError{Kind: KindAuth, Code: "INVALID_KEY", Message: "invalid manager key"}
)

func ErrValidation(code, msg string) *AppError {
	return &AppError{Kind: KindValidation, Code: code, Message: msg}
}

func ErrAuth(code, msg string) *AppError {
	return &AppError{Kind: KindAuth, Code: code, Message: msg}
}

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Kind: KindNotFound, Code: "NOT_FOUND", Message: fmt.Sprintf("%s %s not found", entity, id)}
}

func ErrRemote(msg string, cause error) *AppError {
	return &AppError{Kind: KindRemote, Code: "REMOTE_ERROR", Message: msg, Cause: cause}
}

// KindOf reports the kind of err, or "" when err is not an *AppError.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

func IsKind(err error, k Kind) bool { return KindOf(err) == k }
