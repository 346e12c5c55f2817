package sttbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/hashing-labs/meetscribe/pkg/audio"
	"github.com/hashing-labs/meetscribe/pkg/errs"
)

// Groq is the primary transcription backend: Groq's Whisper-compatible
// endpoint, used both for live streaming windows and the post-meeting
// "gold standard" reference transcript consumed by the alignment
// engine.
type Groq struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
	client     *http.Client
}

// NewGroq constructs a Groq backend. apiKey must be non-empty; callers
// are expected to have already surfaced GROQ_KEY_REQUIRED before
// constructing one.
func NewGroq(apiKey, model string) *Groq {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &Groq{
		apiKey:     apiKey,
		url:        "https://api.groq.com/openai/v1/audio/transcriptions",
		model:      model,
		sampleRate: 16000,
		client:     http.DefaultClient,
	}
}

func (g *Groq) Name() string { return "groq" }

func (g *Groq) Transcribe(ctx context.Context, pcm []byte, opts TranscribeOptions) (Result, error) {
	wavData := audio.NewWavBuffer(pcm, g.sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", g.model); err != nil {
		return Result{}, err
	}
	if opts.Prompt != "" {
		if err := writer.WriteField("prompt", opts.Prompt); err != nil {
			return Result{}, err
		}
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return Result{}, err
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Result{}, err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return Result{}, err
	}
	if err := writer.Close(); err != nil {
		return Result{}, err
	}

	endpoint := g.url
	if opts.Translate {
		endpoint = "https://api.groq.com/openai/v1/audio/translations"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, errs.NewBackendError(errs.TransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, mapGroqError(resp)
	}

	var parsed struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, errs.NewBackendError(errs.Other, err)
	}

	return Result{
		Text:             parsed.Text,
		Confidence:       0.9, // Whisper-family endpoints don't report a scalar confidence
		DetectedLanguage: parsed.Language,
	}, nil
}

func mapGroqError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	json.Unmarshal(bodyBytes, &parsed)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || parsed.Error.Code == "rate_limit_exceeded":
		return errs.NewBackendError(errs.RateLimited, fmt.Errorf("groq: %s", parsed.Error.Message))
	case resp.StatusCode == http.StatusUnauthorized || parsed.Error.Code == "invalid_api_key":
		return errs.NewBackendError(errs.InvalidCredential, fmt.Errorf("groq: %s", parsed.Error.Message))
	case resp.StatusCode >= 500:
		return errs.NewBackendError(errs.TransientNetwork, fmt.Errorf("groq: status %d: %s", resp.StatusCode, string(bodyBytes)))
	default:
		return errs.NewBackendError(errs.BadRequest, fmt.Errorf("groq: status %d: %s", resp.StatusCode, string(bodyBytes)))
	}
}
