package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFile is returned for uploads that are neither PDF nor plain text.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrFileTooLarge indicates an upload above the configured size cap.
	ErrFileTooLarge = errors.New("file too large")
	// ErrEmptyFile indicates an upload with no content.
	ErrEmptyFile = errors.New("file is empty")
	// ErrOracleTimeout is reported when an oracle call exceeds its deadline.
	ErrOracleTimeout = errors.New("oracle call timed out")
	// ErrOracleEmpty is reported when the oracle returns no usable text.
	ErrOracleEmpty = errors.New("oracle returned an empty response")
)

// IngestErrorKind classifies why an upload could not be turned into a payload.
type IngestErrorKind int

const (
	IngestUnreadable IngestErrorKind = iota
	IngestUnsupported
	IngestTooLarge
	IngestEmpty
)

func (k IngestErrorKind) String() string {
	switch k {
	case IngestUnsupported:
		return "unsupported"
	case IngestTooLarge:
		return "too_large"
	case IngestEmpty:
		return "empty"
	default:
		return "unreadable"
	}
}

// IngestError is the only failure surfaced to the user. It blocks the
// upload transition; the user may retry with another file.
type IngestError struct {
	Kind     IngestErrorKind
	FileName string
	Err      error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %q: %v", e.FileName, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// Reason is a short user-facing explanation of the failure.
func (e *IngestError) Reason() string {
	switch e.Kind {
	case IngestUnsupported:
		return "Only PDF and plain-text material is accepted."
	case IngestTooLarge:
		return "The file exceeds the permitted size."
	case IngestEmpty:
		return "The file contains no data."
	default:
		return "The file could not be read."
	}
}

// OracleErrorKind classifies recoverable oracle failures.
type OracleErrorKind int

const (
	OracleParse OracleErrorKind = iota
	OracleEmpty
	OracleTimeout
	OracleTransport
)

func (k OracleErrorKind) String() string {
	switch k {
	case OracleEmpty:
		return "empty"
	case OracleTimeout:
		return "timeout"
	case OracleTransport:
		return "transport"
	default:
		return "parse"
	}
}

// OracleError never crosses the oracle package boundary as a failure; it is
// logged and replaced by the task's fallback value.
type OracleError struct {
	Kind OracleErrorKind
	Task string
	Err  error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s (%s): %v", e.Task, e.Kind, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }
