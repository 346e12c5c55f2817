package diarization

import (
	"context"

	"github.com/hashing-labs/meetscribe/pkg/sttbackend"
)

// ReferenceSegment is one coarse timed line from a quick reference
// transcript, used to sanity-check alignment rather than as a
// transcript of record.
type ReferenceSegment struct {
	Start float64
	End   float64
	Text  string
}

// TranscribeReference produces a single-pass reference transcript for
// wav using the same STT backend the live streaming manager uses,
// rather than a dedicated diarization-provider transcript. It returns
// one segment spanning the whole clip; callers needing finer
// granularity should prefer a provider's own utterance timestamps.
func TranscribeReference(ctx context.Context, backend sttbackend.Backend, wav []byte, durationSeconds float64) ([]ReferenceSegment, error) {
	result, err := backend.Transcribe(ctx, wav, sttbackend.TranscribeOptions{})
	if err != nil {
		return nil, err
	}
	if result.Text == "" {
		return nil, nil
	}
	return []ReferenceSegment{{Start: 0, End: durationSeconds, Text: result.Text}}, nil
}
