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

// OpenAI is a secondary Whisper-compatible backend, selectable via
// configuration alongside Groq.
type OpenAI struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
	client     *http.Client
}

func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAI{
		apiKey:     apiKey,
		url:        "https://api.openai.com/v1/audio/transcriptions",
		model:      model,
		sampleRate: 16000,
		client:     http.DefaultClient,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, pcm []byte, opts TranscribeOptions) (Result, error) {
	wavData := audio.NewWavBuffer(pcm, o.sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", o.model); err != nil {
		return Result{}, err
	}
	if opts.Prompt != "" {
		if err := writer.WriteField("prompt", opts.Prompt); err != nil {
			return Result{}, err
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Result{}, err
	}
	if _, err := part.Write(wavData); err != nil {
		return Result{}, err
	}
	writer.Close()

	endpoint := o.url
	if opts.Translate {
		endpoint = "https://api.openai.com/v1/audio/translations"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return Result{}, errs.NewBackendError(errs.TransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		bodyErr := fmt.Errorf("openai: status %d: %s", resp.StatusCode, string(respBody))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return Result{}, errs.NewBackendError(errs.RateLimited, bodyErr)
		case resp.StatusCode == http.StatusUnauthorized:
			return Result{}, errs.NewBackendError(errs.InvalidCredential, bodyErr)
		case resp.StatusCode >= 500:
			return Result{}, errs.NewBackendError(errs.TransientNetwork, bodyErr)
		default:
			return Result{}, errs.NewBackendError(errs.BadRequest, bodyErr)
		}
	}

	var parsed struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, errs.NewBackendError(errs.Other, err)
	}

	return Result{Text: parsed.Text, Confidence: 0.9, DetectedLanguage: parsed.Language}, nil
}
