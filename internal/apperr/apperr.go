// Package apperr описывает типизированные ошибки бизнес-логики и их отображение в HTTP.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error несёт вид ошибки, сообщение для клиента и (опционально) исходную причину.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func Validation(msg string) error   { return newError(KindValidation, msg) }
func Unauthorized(msg string) error { return newError(KindUnauthorized, msg) }
func Forbidden(msg string) error    { return newError(KindForbidden, msg) }
func NotFound(msg string) error     { return newError(KindNotFound, msg) }
func Conflict(msg string) error     { return newError(KindConflict, msg) }
func RateLimited(msg string) error  { return newError(KindRateLimited, msg) }

// Internal оборачивает неожиданную ошибку хранилища; клиент видит только общее сообщение.
func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Message: "internal server error", Err: fmt.Errorf("%s: %w", op, err)}
}

func Validationf(format string, args ...any) error {
	return Validation(fmt.Sprintf(format, args...))
}

// KindOf возвращает вид ошибки; всё, что не *Error, считается внутренней ошибкой.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message возвращает безопасный для клиента текст.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
