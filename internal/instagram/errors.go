package instagram

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
)

// ErrorType classifies Instagram failures.
type ErrorType string

const (
	ErrorTypeInvalidURL  ErrorType = "invalid_url"
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeChallenge   ErrorType = "challenge"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is returned by every Client call that fails.
type Error struct {
	Type    ErrorType
	Message string
	// Code is the HTTP status, 0 when no response was received.
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("instagram %s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("instagram %s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode returns the error type; handler summaries log it as err_code.
func (e *Error) ErrorCode() string { return string(e.Type) }

func newError(t ErrorType, code int, format string, args ...any) *Error {
	return &Error{Type: t, Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(t ErrorType, err error, format string, args ...any) *Error {
	e := newError(t, 0, format, args...)
	e.Err = err
	return e
}

// IsType reports whether err carries an *Error of type t.
func IsType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// statusError maps a non-2xx response status to an *Error.
func statusError(code int) *Error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return newError(ErrorTypeAuth, code, "authentication required")
	case code == http.StatusNotFound:
		return newError(ErrorTypeNotFound, code, "resource not found")
	case code == http.StatusTooManyRequests:
		return newError(ErrorTypeRateLimit, code, "rate limit exceeded")
	case code >= 500:
		return newError(ErrorTypeServerError, code, "server error")
	default:
		return newError(ErrorTypeUnknown, code, "unexpected status code: %d", code)
	}
}

// classify turns transport and breaker failures into an *Error, leaving
// existing *Error values untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	switch {
	case errors.As(err, &e):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return wrapError(ErrorTypeRateLimit, err, "instagram temporarily unavailable, backing off")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return wrapError(ErrorTypeNetwork, err, "request cancelled: %v", err)
	default:
		return wrapError(ErrorTypeNetwork, err, "network error: %v", err)
	}
}

// UserMessage renders err as a chat reply.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong while fetching the post. Please try again."
	}
	switch e.Type {
	case ErrorTypeInvalidURL:
		return "That doesn't look like an Instagram post link. Send a link like https://www.instagram.com/p/SHORTCODE/"
	case ErrorTypeNetwork:
		return "Instagram could not be reached. Please try again in a moment."
	case ErrorTypeRateLimit:
		return "Instagram is rate limiting requests. Please wait a few minutes and try again."
	case ErrorTypeAuth:
		return "Instagram requires a valid login to fetch this post. The bot operator needs to log in again."
	case ErrorTypeChallenge:
		return "Instagram asked for a security check on the bot account. The operator must confirm it in the Instagram app."
	case ErrorTypeNotFound:
		return "The post was not found. It may be private or deleted."
	case ErrorTypeParsing:
		return "The post was found but its media could not be read."
	case ErrorTypeServerError:
		return "Instagram is having problems right now. Please try again later."
	default:
		return "Something went wrong while fetching the post. Please try again."
	}
}
