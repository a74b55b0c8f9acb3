package domain

import "fmt"

// ValidationError reports malformed caller input: mismatched vector and
// metadata lengths, a vector whose dimension differs from the store's, or an
// upload that cannot be parsed for its claimed type. It is always surfaced.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// TransientStoreError reports a storage-engine hiccup that is recoverable by
// resetting the store and retrying once. A second occurrence is fatal.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error during %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// ModelUnavailableError reports that an embedding or reranking backend failed
// to initialize or execute, after any automatic fallback was exhausted.
type ModelUnavailableError struct {
	Model string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model %s unavailable: %v", e.Model, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// SourceReadError reports a single unreadable file in a directory scan.
// It is logged and skipped; the batch continues.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("cannot read source %s: %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }
