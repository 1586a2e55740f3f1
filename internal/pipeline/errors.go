// Package pipeline runs upload analysis and role queries over the core
// packages.
package pipeline

import "errors"

// Error kinds returned by the pipelines. Match with errors.Is.
var (
	// ErrInput marks malformed or missing request data.
	ErrInput = errors.New("invalid input")
	// ErrCapabilityUnavailable marks a missing or failing classifier or
	// embedder.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	// ErrExtractionEmpty marks a PDF that produced no usable text runs.
	ErrExtractionEmpty = errors.New("no extractable text")
)

// Error pairs an error kind with the message shown to clients. The cause, if
// any, is only logged.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func inputError(msg string) error {
	return &Error{Kind: ErrInput, Message: msg}
}

func unavailable(msg string, cause error) error {
	return &Error{Kind: ErrCapabilityUnavailable, Message: msg, Err: cause}
}

func emptyExtraction(cause error) error {
	return &Error{Kind: ErrExtractionEmpty, Message: "No extractable text", Err: cause}
}

// Message returns the client-facing text for err, or "" when err is not a
// pipeline error.
func Message(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return ""
}
