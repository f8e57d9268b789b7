// Package mcperr is the MCP-facing error taxonomy (spec §7): a closed set of
// kinds every tool handler's failures collapse into, each carrying a
// machine-readable code and a client-safe message. Ground: internal/mcp's
// SanitizeError, generalized from ad-hoc pattern matching into a typed
// error the dispatcher can inspect directly instead of re-classifying a
// plain error's text.
package mcperr

import (
	"errors"
	"fmt"

	"github.com/dicklesworthstone/agentmail/internal/logger"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

// Kind is the closed taxonomy of envelope kinds a tool result may carry.
type Kind string

const (
	InvalidArgument Kind = "InvalidArgument"
	NotFound        Kind = "NotFound"
	Forbidden       Kind = "Forbidden"
	Conflict        Kind = "Conflict"
	Expired         Kind = "Expired"
	Timeout         Kind = "Timeout"
	Unavailable     Kind = "Unavailable"
)

// Error is the error type every tool handler returns on failure. Message is
// always safe to show a caller; Kind lets the dispatcher pick the right
// result envelope shape.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func Invalid(format string, args ...any) *Error  { return Newf(InvalidArgument, format, args...) }
func NotFoundf(format string, args ...any) *Error { return Newf(NotFound, format, args...) }
func Forbiddenf(format string, args ...any) *Error { return Newf(Forbidden, format, args...) }

// As reports whether err (or something it wraps) is an *Error, returning it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// sensitivePatterns flag error substrings that must never reach a client
// verbatim, ground: internal/mcp/errors.go's sensitivePatterns list.
var sensitivePatterns = []string{
	"token", "password", "secret", "credential", "bearer", "authorization",
}

var internalErrorPatterns = []string{
	"failed to exec", "connection refused", "no such file", "permission denied",
	"context canceled", "EOF", "database is locked",
}

// FromStoreErr maps a store-layer failure onto the MCP taxonomy, sanitizing
// the detail via logger and returning only a generic message for anything
// that isn't already a recoverable, call-site-safe classification (spec
// §4.1: "ConstraintViolation is recoverable at call sites; others surface
// as opaque 500-equivalents").
func FromStoreErr(operation string, err error) *Error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return Wrap(NotFound, "the requested record does not exist", err)
	case errors.Is(err, store.ErrConstraintViolation):
		return Wrap(InvalidArgument, "the request violates a uniqueness or referential constraint", err)
	case errors.Is(err, store.ErrTimeout):
		return Wrap(Timeout, "the store did not respond in time", err)
	case errors.Is(err, store.ErrMigrationFailed), errors.Is(err, store.ErrUnavailable):
		logger.Printf("mcperr: %s: store unavailable: %v", operation, err)
		return Wrap(Unavailable, "the store is temporarily unavailable", err)
	default:
		logger.Printf("mcperr: %s: unclassified store error: %v", operation, err)
		return Wrap(Unavailable, "an internal error occurred", err)
	}
}

// Sanitize classifies a generic error that did not originate as a
// store.Err* or *mcperr.Error, logging the full detail. Errors matching a
// sensitive or internal pattern get a generic message; any other error's
// text is returned truncated to 200 characters — ground: SanitizeError's
// substring classification.
func Sanitize(operation string, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	msg := err.Error()
	logger.Printf("mcperr: %s failed: %v", operation, err)
	for _, pat := range sensitivePatterns {
		if containsFold(msg, pat) {
			return New(Unavailable, "an internal error occurred")
		}
	}
	for _, pat := range internalErrorPatterns {
		if containsFold(msg, pat) {
			return New(Unavailable, "an internal error occurred while processing "+operation)
		}
	}
	return New(Unavailable, truncate(msg, 200))
}

func containsFold(s, substr string) bool {
	sl, subl := toLower(s), toLower(substr)
	return indexOf(sl, subl) >= 0
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
