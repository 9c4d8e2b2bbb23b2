package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidInput
	KindInvalidCredentials
	KindUnauthorized
	KindSessionNotAvailable
	KindInvalidSession
	KindForbidden
	KindConflict
	KindTaskFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "EntityNotFound"
	case KindInvalidInput:
		return "BadRequest"
	case KindInvalidCredentials:
		return "InvalidCredentials"
	case KindUnauthorized:
		return "Unauthorized"
	case KindSessionNotAvailable:
		return "SessionNotAvailable"
	case KindInvalidSession:
		return "InvalidSession"
	case KindForbidden:
		return "AccountForbidden"
	case KindConflict:
		return "EntityAlreadyExists"
	case KindTaskFailed, KindInternal:
		return "InternalServerError"
	default:
		return "InternalServerError"
	}
}

// HTTPStatus maps a kind to the status code the HTTP layer responds with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput, KindInvalidCredentials:
		return http.StatusBadRequest
	case KindUnauthorized, KindSessionNotAvailable, KindInvalidSession:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed failure carried up the call chain. Detail is safe to show
// to clients for every kind except Internal and TaskFailed.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func NotFound(detail string) *Error {
	return New(KindNotFound, detail)
}

func InvalidInput(detail string) *Error {
	return New(KindInvalidInput, detail)
}

func Unauthorized(detail string) *Error {
	return New(KindUnauthorized, detail)
}

func Internal(detail string, err error) *Error {
	return Wrap(KindInternal, detail, err)
}

// KindOf reports the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// DetailOf returns the client-facing detail for err. Internal failures never
// expose their detail.
func DetailOf(err error) string {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return ""
	}
	if appErr.Kind == KindInternal || appErr.Kind == KindTaskFailed {
		return ""
	}
	return appErr.Detail
}
