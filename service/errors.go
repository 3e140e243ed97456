package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that need identity checks across the
// batch and handler layers.
var (
	// ErrInvalidCredential means the upstream rejected the API key.
	// Fatal for the current call, never retried.
	ErrInvalidCredential = errors.New("extraction API key was rejected")

	// ErrCredentialMissing means a batch was started without any API key.
	ErrCredentialMissing = errors.New("credential not set")

	// ErrNoTextExtracted means the PDF had no extractable text layer.
	ErrNoTextExtracted = errors.New("no text could be extracted from document")

	// ErrBatchRunning guards single-flight batch/clear/export operations.
	ErrBatchRunning = errors.New("a batch is already running")

	// ErrExportRunning rejects clearing while an archive is being built.
	ErrExportRunning = errors.New("an export is in progress")

	// ErrExportEmpty means no completed file resolved into any folder.
	ErrExportEmpty = errors.New("no completed files to export")
)

// maxRawPreview bounds how much raw model output an error may carry, so
// malformed responses stay diagnosable without unbounded log growth.
const maxRawPreview = 800

// TransientError marks an upstream failure that is worth retrying
// (server-side or unknown error reported by the extraction API).
type TransientError struct {
	StatusCode int
	Message    string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("extraction service error (status %d): %s", e.StatusCode, e.Message)
}

// ParseError means the model response was not valid JSON even after
// fence stripping. Not retried: malformed output will not become
// well-formed on a second attempt.
type ParseError struct {
	Cause error
	Raw   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("model response is not valid JSON: %v; raw: %s", e.Cause, rawPreview(e.Raw))
}

func (e *ParseError) Unwrap() error { return e.Cause }

// SchemaError means the model response parsed as JSON but failed
// structural validation. Not retried.
type SchemaError struct {
	Reason string
	Raw    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("model response failed schema validation: %s; raw: %s", e.Reason, rawPreview(e.Raw))
}

func rawPreview(raw string) string {
	if len(raw) > maxRawPreview {
		return raw[:maxRawPreview] + "..."
	}
	return raw
}

// IsRetryable reports whether an extraction attempt failed for a
// transient server-side reason. Credential, parse and schema failures
// are final from the first attempt.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
