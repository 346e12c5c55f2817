// Package errs holds the sentinel errors and the tagged backend-error
// enum shared across the transcription and diarization pipelines.
package errs

import "errors"

var (
	// ErrEmptyTranscription is returned when a backend call succeeds but
	// yields no usable text.
	ErrEmptyTranscription = errors.New("transcription returned empty text")

	// ErrNoCredential is returned when a provider's API key environment
	// variable is unset; no other credential source is consulted.
	ErrNoCredential = errors.New("no credential configured for provider")

	// ErrNoAudioSource is returned when none of the audio resolution
	// steps (provided bytes, merged container, merged pcm, chunk merge)
	// produced any bytes.
	ErrNoAudioSource = errors.New("no audio source available")

	// ErrNoRecording is returned when a finalizer runs against a
	// meeting id with no recording directory or storage prefix.
	ErrNoRecording = errors.New("no recording found for meeting")

	// ErrDiarizationDisabled is returned when the diarization feature
	// flag is off.
	ErrDiarizationDisabled = errors.New("diarization is disabled")
)

// BackendErrorKind tags a transcription/diarization backend failure so
// callers can map it to a wire error code without inspecting message
// text.
type BackendErrorKind int

const (
	// Other is the zero value: an error that doesn't fit a more
	// specific kind and should be logged and otherwise swallowed.
	Other BackendErrorKind = iota
	// TransientNetwork covers connection resets, timeouts, and 5xx
	// responses that are safe to retry.
	TransientNetwork
	// RateLimited covers HTTP 429 / provider-reported throttling.
	RateLimited
	// InvalidCredential covers HTTP 401 and provider-reported
	// invalid/missing API keys.
	InvalidCredential
	// BadRequest covers HTTP 4xx other than 401/429 — not retryable.
	BadRequest
)

// BackendError wraps an underlying error with a BackendErrorKind so
// the caller can branch on it instead of sniffing substrings out of
// the error message.
type BackendError struct {
	Kind BackendErrorKind
	Err  error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return "backend error"
	}
	return e.Err.Error()
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewBackendError constructs a BackendError of the given kind.
func NewBackendError(kind BackendErrorKind, err error) *BackendError {
	return &BackendError{Kind: kind, Err: err}
}

// AsBackendError unwraps err into a *BackendError if possible.
func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
