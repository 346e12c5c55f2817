// Package sttbackend defines the transcription-backend contract used
// by the streaming manager and the post-meeting reference-transcript
// fetch, plus the Groq and OpenAI Whisper-compatible implementations.
package sttbackend

import "context"

// TranscribeOptions carries the per-call hints the manager supplies:
// a bounded context prompt built from recently finalized text, and
// whether code-switched audio should be translated directly to
// English rather than transcribed in its source language.
type TranscribeOptions struct {
	// Prompt is up to the last 100 characters of already-finalized
	// text, used as backend context to bias continuation.
	Prompt string
	// Translate requests direct-to-English translation instead of
	// same-language transcription.
	Translate bool
}

// Result is a backend's transcription of one audio window.
type Result struct {
	Text             string
	Confidence       float64
	DetectedLanguage string
}

// Backend transcribes a single buffered audio window. Implementations
// must distinguish transient/credential/rate-limit failures via
// *errs.BackendError so the manager can map them to wire error codes
// without string-matching the error message.
type Backend interface {
	Transcribe(ctx context.Context, pcm []byte, opts TranscribeOptions) (Result, error)
	Name() string
}
