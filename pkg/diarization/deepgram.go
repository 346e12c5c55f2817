package diarization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashing-labs/meetscribe/pkg/errs"
)

const (
	deepgramTimeout     = 300 * time.Second
	deepgramMaxAttempts = 4 // the first try plus up to 3 retries
)

var deepgramBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// DeepgramProvider is the single-request, content-typed diarization
// provider: the whole WAV body is POSTed once and the response
// carries diarized, punctuated utterances directly.
type DeepgramProvider struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

// NewDeepgramProvider constructs a Provider-D client. The transport is
// forced to dial IPv4 only, matching spec §4.7's networking policy.
func NewDeepgramProvider(apiKey, model string) *DeepgramProvider {
	if model == "" {
		model = "nova-2"
	}
	dialer := &net.Dialer{}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp4", addr)
		},
	}
	return &DeepgramProvider{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/listen",
		model:  model,
		client: &http.Client{Timeout: deepgramTimeout, Transport: transport},
	}
}

func (d *DeepgramProvider) Name() string { return "deepgram" }

// Diarize POSTs wav once, retrying up to 3 times with exponential
// backoff on network errors only — never on a 4xx response.
func (d *DeepgramProvider) Diarize(ctx context.Context, wav []byte) ([]Segment, int, error) {
	var lastErr error
	for attempt := 0; attempt < deepgramMaxAttempts; attempt++ {
		segs, count, err := d.attempt(ctx, wav)
		if err == nil {
			return segs, count, nil
		}
		if be, ok := errs.AsBackendError(err); ok && be.Kind != errs.TransientNetwork {
			return nil, 0, err
		}
		lastErr = err
		if attempt < deepgramMaxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(deepgramBackoff[attempt]):
			}
		}
	}
	return nil, 0, lastErr
}

func (d *DeepgramProvider) attempt(ctx context.Context, wav []byte) ([]Segment, int, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return nil, 0, err
	}
	params := u.Query()
	params.Set("model", d.model)
	params.Set("diarize", "true")
	params.Set("punctuate", "true")
	params.Set("utterances", "true")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(wav))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", contentTypeFromMagicBytes(wav))

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, errs.NewBackendError(errs.TransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		kind := errs.BadRequest
		if resp.StatusCode >= 500 {
			kind = errs.TransientNetwork
		} else if resp.StatusCode == http.StatusUnauthorized {
			kind = errs.InvalidCredential
		} else if resp.StatusCode == http.StatusTooManyRequests {
			kind = errs.RateLimited
		}
		return nil, 0, errs.NewBackendError(kind, fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, string(body)))
	}

	var payload deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, err
	}
	return parseDeepgramResponse(payload)
}

// contentTypeFromMagicBytes infers a content type from a small audio
// container's magic bytes, since the caller may hand diarization a
// WAV, MP3, or OGG container depending on upstream conversion.
func contentTypeFromMagicBytes(data []byte) string {
	switch {
	case len(data) >= 4 && string(data[0:4]) == "RIFF":
		return "audio/wav"
	case len(data) >= 3 && (string(data[0:3]) == "ID3" || (data[0] == 0xff && data[1]&0xe0 == 0xe0)):
		return "audio/mpeg"
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

type deepgramResponse struct {
	Results struct {
		Utterances []struct {
			Speaker    int     `json:"speaker"`
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Text       string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"utterances"`
		Channels []struct {
			Alternatives []struct {
				Words []struct {
					Word       string  `json:"word"`
					Start      float64 `json:"start"`
					End        float64 `json:"end"`
					Speaker    int     `json:"speaker"`
					Confidence float64 `json:"confidence"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// parseDeepgramResponse prefers utterance-level segments; if the
// response carries none (diarize requested without utterances, or an
// older API shape), it reconstructs segments from word-level output
// grouped by contiguous speaker runs.
func parseDeepgramResponse(payload deepgramResponse) ([]Segment, int, error) {
	speakers := map[int]struct{}{}

	if len(payload.Results.Utterances) > 0 {
		segs := make([]Segment, 0, len(payload.Results.Utterances))
		for _, u := range payload.Results.Utterances {
			speakers[u.Speaker] = struct{}{}
			text := strings.TrimSpace(u.Text)
			segs = append(segs, Segment{
				Speaker:    fmt.Sprintf("speaker_%d", u.Speaker),
				Start:      u.Start,
				End:        u.End,
				Text:       text,
				Confidence: u.Confidence,
				WordCount:  len(strings.Fields(text)),
			})
		}
		return segs, len(speakers), nil
	}

	if len(payload.Results.Channels) == 0 || len(payload.Results.Channels[0].Alternatives) == 0 {
		return nil, 0, nil
	}

	var segs []Segment
	var cur *Segment
	var confidenceSum float64
	for _, w := range payload.Results.Channels[0].Alternatives[0].Words {
		speakers[w.Speaker] = struct{}{}
		label := fmt.Sprintf("speaker_%d", w.Speaker)
		if cur == nil || cur.Speaker != label {
			if cur != nil {
				cur.Confidence = confidenceSum / float64(cur.WordCount)
				segs = append(segs, *cur)
			}
			cur = &Segment{Speaker: label, Start: w.Start, End: w.End, Text: w.Word, WordCount: 1}
			confidenceSum = w.Confidence
			continue
		}
		cur.End = w.End
		cur.Text += " " + w.Word
		cur.WordCount++
		confidenceSum += w.Confidence
	}
	if cur != nil {
		cur.Confidence = confidenceSum / float64(cur.WordCount)
		segs = append(segs, *cur)
	}
	return segs, len(speakers), nil
}
