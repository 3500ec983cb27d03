package pipeline

import "errors"

// Sentinel errors shared across the pipeline. Callers wrap them with context
// and test with errors.Is.
var (
	// ErrTransport marks a connection or timeout failure below HTTP.
	ErrTransport = errors.New("transport failure")
	// ErrRetriesExhausted marks a fetch that never saw a 200 within its budget.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrNonRetryableStatus marks a status the retry policy refuses to retry.
	ErrNonRetryableStatus = errors.New("non-retryable status")
	// ErrMalformedPayload marks a body or raw object that is not valid JSON.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrObjectNotFound marks a GetObject call for a key that does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrNoRawObjects marks a source with nothing staged.
	ErrNoRawObjects = errors.New("no raw objects")
	// ErrInvalidField marks a record whose field cannot satisfy its rule.
	ErrInvalidField = errors.New("invalid field")
	// ErrSchemaViolation marks a value that does not match its declared type.
	ErrSchemaViolation = errors.New("schema violation")
)
