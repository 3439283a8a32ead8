package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the HTTP boundary can pick a status and message.
type Kind string

const (
	KindInvalidInput        Kind = "InvalidInput"
	KindMetadataFetchFailed Kind = "MetadataFetchFailed"
	KindMetadataParseFailed Kind = "MetadataParseFailed"
	KindExtractionFailed    Kind = "ExtractionFailed"
	KindOutputMissing       Kind = "OutputMissing"
	KindLyricsQueryFailed   Kind = "LyricsQueryFailed"
	KindInternal            Kind = "Internal"
)

// Error is a user-facing failure. Details carries captured tool output,
// Hint a remediation suggestion.
type Error struct {
	Kind    Kind
	Message string
	Details string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
