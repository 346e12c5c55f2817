package diarization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashing-labs/meetscribe/pkg/errs"
)

const assemblyAIPollInterval = 500 * time.Millisecond

// AssemblyAIProvider is the two-stage upload-then-poll diarization
// provider: audio is uploaded once, a transcript job is submitted
// against the resulting URL with speaker_labels enabled, then the job
// is polled until it completes or errors.
type AssemblyAIProvider struct {
	apiKey string
	client *http.Client
}

// NewAssemblyAIProvider constructs a Provider-A client.
func NewAssemblyAIProvider(apiKey string) *AssemblyAIProvider {
	return &AssemblyAIProvider{apiKey: apiKey, client: &http.Client{Timeout: 60 * time.Second}}
}

func (a *AssemblyAIProvider) Name() string { return "assemblyai" }

func (a *AssemblyAIProvider) Diarize(ctx context.Context, wav []byte) ([]Segment, int, error) {
	uploadURL, err := a.upload(ctx, wav)
	if err != nil {
		return nil, 0, err
	}
	jobID, err := a.submit(ctx, uploadURL)
	if err != nil {
		return nil, 0, err
	}
	return a.poll(ctx, jobID)
}

func (a *AssemblyAIProvider) upload(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.assemblyai.com/v2/upload", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", errs.NewBackendError(errs.TransientNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("assemblyai: upload status %d", resp.StatusCode)
	}

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.UploadURL, nil
}

func (a *AssemblyAIProvider) submit(ctx context.Context, uploadURL string) (string, error) {
	payload := map[string]interface{}{
		"audio_url":      uploadURL,
		"speaker_labels": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.assemblyai.com/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", errs.NewBackendError(errs.TransientNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("assemblyai: submit status %d", resp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.ID, nil
}

type assemblyAITranscript struct {
	Status     string `json:"status"`
	Error      string `json:"error"`
	Utterances []struct {
		Speaker    string  `json:"speaker"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"utterances"`
}

func (a *AssemblyAIProvider) poll(ctx context.Context, jobID string) ([]Segment, int, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(assemblyAIPollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.assemblyai.com/v2/transcript/"+jobID, nil)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Authorization", a.apiKey)

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, 0, errs.NewBackendError(errs.TransientNetwork, err)
		}
		var result assemblyAITranscript
		decodeErr := json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, 0, decodeErr
		}

		switch result.Status {
		case "completed":
			speakers := map[string]struct{}{}
			segs := make([]Segment, 0, len(result.Utterances))
			for _, u := range result.Utterances {
				speakers[u.Speaker] = struct{}{}
				segs = append(segs, Segment{
					Speaker:    "speaker_" + u.Speaker,
					Start:      u.Start / 1000,
					End:        u.End / 1000,
					Text:       u.Text,
					Confidence: u.Confidence,
					WordCount:  len(strings.Fields(u.Text)),
				})
			}
			return segs, len(speakers), nil
		case "error":
			return nil, 0, fmt.Errorf("assemblyai: transcription failed: %s", result.Error)
		}
	}
}
