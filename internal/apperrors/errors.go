// Package apperrors defines the failure taxonomy shared by the ingestion and
// retrieval pipeline.
//
// Every failure carries a Code. errors.Is matches on the code, so callers can
// test against the exported sentinels regardless of message or cause:
//
//	if errors.Is(err, apperrors.ErrUnsupportedFormat) { ... }
package apperrors

import (
	"errors"
	"fmt"
)

// Code identifies a failure kind.
type Code string

const (
	CodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	CodeExtraction        Code = "EXTRACTION_FAILURE"
	CodeEmbedding         Code = "EMBEDDING_FAILURE"
	CodeIndexWrite        Code = "INDEX_WRITE_FAILURE"
	CodeIndexSearch       Code = "INDEX_SEARCH_FAILURE"
	CodeLedger            Code = "LEDGER_FAILURE"
	CodeLanguageModel     Code = "LANGUAGE_MODEL_FAILURE"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidInput      Code = "INVALID_INPUT"
)

// Error is a coded pipeline failure.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrUnsupportedFormat = &Error{Code: CodeUnsupportedFormat, Message: "unsupported format"}
	ErrExtraction        = &Error{Code: CodeExtraction, Message: "extraction failure"}
	ErrEmbedding         = &Error{Code: CodeEmbedding, Message: "embedding failure"}
	ErrIndexWrite        = &Error{Code: CodeIndexWrite, Message: "index write failure"}
	ErrIndexSearch       = &Error{Code: CodeIndexSearch, Message: "index search failure"}
	ErrLedger            = &Error{Code: CodeLedger, Message: "ledger failure"}
	ErrLanguageModel     = &Error{Code: CodeLanguageModel, Message: "language model failure"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidInput      = &Error{Code: CodeInvalidInput, Message: "invalid input"}
)

// UnsupportedFormat reports a file extension the extractor cannot read.
func UnsupportedFormat(extension string) *Error {
	return &Error{
		Code:    CodeUnsupportedFormat,
		Message: fmt.Sprintf("unsupported file format: .%s", extension),
	}
}

// ExtractionFailure wraps a failure to turn a stored file into text.
func ExtractionFailure(message string, cause error) *Error {
	return &Error{Code: CodeExtraction, Message: message, Cause: cause}
}

// EmbeddingFailure wraps a failure of the embedding model.
func EmbeddingFailure(message string, cause error) *Error {
	return &Error{Code: CodeEmbedding, Message: message, Cause: cause}
}

// IndexWriteFailure wraps a failed vector index append or delete.
func IndexWriteFailure(message string, cause error) *Error {
	return &Error{Code: CodeIndexWrite, Message: message, Cause: cause}
}

// IndexSearchFailure wraps a failed vector index query.
func IndexSearchFailure(message string, cause error) *Error {
	return &Error{Code: CodeIndexSearch, Message: message, Cause: cause}
}

// LedgerFailure wraps a failed relational store operation.
func LedgerFailure(message string, cause error) *Error {
	return &Error{Code: CodeLedger, Message: message, Cause: cause}
}

// LanguageModelFailure wraps a failed call to the language model.
func LanguageModelFailure(message string, cause error) *Error {
	return &Error{Code: CodeLanguageModel, Message: message, Cause: cause}
}

// NotFound reports a missing notebook or attachment.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// InvalidInput reports a rejected request.
func InvalidInput(message string) *Error {
	return &Error{Code: CodeInvalidInput, Message: message}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
