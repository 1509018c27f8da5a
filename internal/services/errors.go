package services

import (
	"errors"
	"log"
)

// Kind classifies a rejected operation.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindStorage       Kind = "storage"
)

// Error is a rejection with a reason meant for the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind when the target carries no message,
// so errors.Is(err, ErrNotFound) works for every not-found rejection.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrStorage       = &Error{Kind: KindStorage}
)

// KindOf returns the kind of err, or KindStorage for unclassified errors.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindStorage
}

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func authorizationError(msg string) error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

func notFoundError(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func conflictError(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func storageError(op string, err error) error {
	log.Printf("storage failure op=%s: %v", op, err)
	return &Error{Kind: KindStorage, Message: "could not " + op, Err: err}
}
