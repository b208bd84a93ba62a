package rag

import (
	"errors"
	"fmt"
)

// Stage identifies which half of the pipeline produced an error.
type Stage int

const (
	// StageRetrieval covers reformulation, embedding, vector search and
	// chunk hydration.
	StageRetrieval Stage = iota

	// StageGeneration covers the final answer generation call.
	StageGeneration
)

// String returns the string representation of Stage.
func (s Stage) String() string {
	switch s {
	case StageRetrieval:
		return "retrieval"
	case StageGeneration:
		return "generation"
	default:
		return "unknown"
	}
}

// Error is the classified pipeline error. Every external call site wraps
// its backend failures into an *Error before returning, so raw backend
// errors never escape uninterpreted. The orchestrator propagates these
// unchanged; retry decisions belong to the caller.
//
// Retryable means re-attempting the same operation could plausibly
// succeed without intervention (rate limits, transient unavailability).
// Unclassified failures are treated as non-retryable by default.
type Error struct {
	Stage     Stage
	Retryable bool
	Message   string
	Err       error // wrapped backend failure, nil for pure input errors
}

// Error implements the error interface.
func (e *Error) Error() string {
	kind := "non-retryable"
	if e.Retryable {
		kind = "retryable"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s error: %s: %v", kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s error: %s", kind, e.Stage, e.Message)
}

// Unwrap returns the wrapped backend failure for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// RetryableRetrieval wraps err as a transient retrieval failure.
func RetryableRetrieval(msg string, err error) *Error {
	return &Error{Stage: StageRetrieval, Retryable: true, Message: msg, Err: err}
}

// NonRetryableRetrieval wraps err as a permanent retrieval failure.
func NonRetryableRetrieval(msg string, err error) *Error {
	return &Error{Stage: StageRetrieval, Retryable: false, Message: msg, Err: err}
}

// RetryableGeneration wraps err as a transient generation failure.
func RetryableGeneration(msg string, err error) *Error {
	return &Error{Stage: StageGeneration, Retryable: true, Message: msg, Err: err}
}

// NonRetryableGeneration wraps err as a permanent generation failure.
func NonRetryableGeneration(msg string, err error) *Error {
	return &Error{Stage: StageGeneration, Retryable: false, Message: msg, Err: err}
}

// IsRetryable reports whether err is a classified pipeline error that a
// caller may retry by re-invoking the whole pipeline.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// StageOf returns the pipeline stage of a classified error.
// The second return value is false if err is not a classified *Error.
func StageOf(err error) (Stage, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage, true
	}
	return 0, false
}
