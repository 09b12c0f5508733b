package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies failures by how the sync job reacts to them
type Kind string

const (
	// KindTransientIO covers snapshot read/parse failures; the prior state is treated as empty
	KindTransientIO Kind = "transient_io"
	// KindSource covers data source failures; the run stops at the last good page
	KindSource Kind = "source"
	// KindConfig covers missing lookup tables or invalid settings; fatal
	KindConfig Kind = "config"
	// KindSerialization covers snapshot write failures; the snapshot handle is not updated
	KindSerialization Kind = "serialization"
	// KindLocked means another run holds the sync lock
	KindLocked Kind = "locked"
)

// SourceType narrows down a source error
type SourceType string

const (
	SourceNetwork   SourceType = "network"
	SourceRateLimit SourceType = "rate_limit"
	SourceAuth      SourceType = "auth"
	SourceParsing   SourceType = "parsing"
	SourceNotFound  SourceType = "not_found"
	SourceServer    SourceType = "server_error"
	SourceGraphQL   SourceType = "graphql"
	SourceShape     SourceType = "shape"
	SourceUnknown   SourceType = "unknown"
)

// Error is the typed error used across the sync job
type Error struct {
	Kind    Kind
	Source  SourceType
	Op      string
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}

	prefix := string(e.Kind)
	if e.Source != "" {
		prefix = fmt.Sprintf("%s/%s", e.Kind, e.Source)
	}
	if e.Code != 0 {
		prefix = fmt.Sprintf("%s (code %d)", prefix, e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s error: %s", e.Op, prefix, msg)
	}
	return fmt.Sprintf("%s error: %s", prefix, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an error of the given kind
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a kind to an underlying error
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Source builds a data source error
func Source(typ SourceType, code int, message string) *Error {
	return &Error{Kind: KindSource, Source: typ, Code: code, Message: message}
}

// Configf builds a configuration error
func Configf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first typed error in the chain
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable reports whether a source error is worth retrying in-process
func IsRetryable(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) || e.Kind != KindSource {
		return false
	}
	switch e.Source {
	case SourceNetwork, SourceRateLimit, SourceServer:
		return true
	default:
		return false
	}
}

// SourceTypeForStatus maps an HTTP status code to a source error type
func SourceTypeForStatus(statusCode int) SourceType {
	switch {
	case statusCode == 0:
		return SourceNetwork
	case statusCode == 401 || statusCode == 403:
		return SourceAuth
	case statusCode == 404:
		return SourceNotFound
	case statusCode == 429:
		return SourceRateLimit
	case statusCode >= 500:
		return SourceServer
	default:
		return SourceUnknown
	}
}
