package sttbackend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashing-labs/meetscribe/pkg/errs"
)

func TestGroqTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(struct {
			Text     string `json:"text"`
			Language string `json:"language"`
		}{Text: "hello world", Language: "en"})
	}))
	defer server.Close()

	g := &Groq{apiKey: "test-key", url: server.URL, model: "whisper-large-v3-turbo", sampleRate: 16000, client: http.DefaultClient}

	result, err := g.Transcribe(context.Background(), make([]byte, 320), TranscribeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("Text = %q, want %q", result.Text, "hello world")
	}
	if result.DetectedLanguage != "en" {
		t.Errorf("DetectedLanguage = %q, want %q", result.DetectedLanguage, "en")
	}
	if g.Name() != "groq" {
		t.Errorf("Name() = %q, want groq", g.Name())
	}
}

func TestGroqTranscribeInvalidCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "invalid key", "code": "invalid_api_key"}})
	}))
	defer server.Close()

	g := &Groq{apiKey: "bad-key", url: server.URL, model: "whisper-large-v3-turbo", sampleRate: 16000, client: http.DefaultClient}

	_, err := g.Transcribe(context.Background(), make([]byte, 320), TranscribeOptions{})
	be, ok := errs.AsBackendError(err)
	if !ok {
		t.Fatalf("expected a *errs.BackendError, got %v", err)
	}
	if be.Kind != errs.InvalidCredential {
		t.Errorf("Kind = %v, want InvalidCredential", be.Kind)
	}
}

func TestGroqTranscribeRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "slow down", "code": "rate_limit_exceeded"}})
	}))
	defer server.Close()

	g := &Groq{apiKey: "test-key", url: server.URL, model: "whisper-large-v3-turbo", sampleRate: 16000, client: http.DefaultClient}

	_, err := g.Transcribe(context.Background(), make([]byte, 320), TranscribeOptions{})
	be, ok := errs.AsBackendError(err)
	if !ok {
		t.Fatalf("expected a *errs.BackendError, got %v", err)
	}
	if be.Kind != errs.RateLimited {
		t.Errorf("Kind = %v, want RateLimited", be.Kind)
	}
}
