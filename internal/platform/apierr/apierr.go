package apierr

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/yungbote/tutorbridge-backend/internal/pkg/errors"
)

const (
	CodeInvalidRequest    = "invalid_request"
	CodeMissingField      = "missing_field"
	CodeInvalidInvite     = "invalid_invite_code"
	CodeNotFound          = "not_found"
	CodeForbidden         = "forbidden"
	CodeUnauthorized      = "unauthorized"
	CodeInvalidTransition = "invalid_transition"
	CodeUpstream          = "upstream_error"
	CodeParse             = "parse_error"
)

type Error struct {
	Status int
	Code   string
	Err    error
	// Raw carries the offending provider output for parse failures.
	Raw string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Client wraps err as a 400. The sentinel ErrInvalidArgument stays reachable via errors.Is.
func Client(code string, format string, args ...any) *Error {
	return New(http.StatusBadRequest, code, fmt.Errorf("%w: %s", pkgerrors.ErrInvalidArgument, fmt.Sprintf(format, args...)))
}

// MissingField reports the first required field that was absent.
func MissingField(name string) *Error {
	return Client(CodeMissingField, "%s is required", name)
}

func NotFound(what string, id any) *Error {
	return New(http.StatusNotFound, CodeNotFound, fmt.Errorf("%s %v: %w", what, id, pkgerrors.ErrNotFound))
}

func Forbidden(format string, args ...any) *Error {
	return New(http.StatusForbidden, CodeForbidden, fmt.Errorf("%w: %s", pkgerrors.ErrForbidden, fmt.Sprintf(format, args...)))
}

func Unauthorized(format string, args ...any) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, fmt.Errorf("%w: %s", pkgerrors.ErrUnauthorized, fmt.Sprintf(format, args...)))
}

func Conflict(format string, args ...any) *Error {
	return New(http.StatusConflict, CodeInvalidTransition, fmt.Errorf("%w: %s", pkgerrors.ErrInvalidTransition, fmt.Sprintf(format, args...)))
}

func Upstream(op string, err error) *Error {
	return New(http.StatusInternalServerError, CodeUpstream, fmt.Errorf("%s: %w", op, err))
}

func Parse(err error, raw string) *Error {
	e := New(http.StatusInternalServerError, CodeParse, fmt.Errorf("malformed model output: %w", err))
	e.Raw = raw
	return e
}

// From maps any error onto the taxonomy. Unclassified errors become upstream failures.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		return New(http.StatusNotFound, CodeNotFound, err)
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		return New(http.StatusBadRequest, CodeInvalidRequest, err)
	case errors.Is(err, pkgerrors.ErrForbidden):
		return New(http.StatusForbidden, CodeForbidden, err)
	case errors.Is(err, pkgerrors.ErrUnauthorized):
		return New(http.StatusUnauthorized, CodeUnauthorized, err)
	case errors.Is(err, pkgerrors.ErrInvalidTransition):
		return New(http.StatusConflict, CodeInvalidTransition, err)
	default:
		return New(http.StatusInternalServerError, CodeUpstream, err)
	}
}
