// Package diarization attributes speakers to time ranges of a meeting
// recording via a cloud provider, with two distinct network patterns:
// a single-request content-typed POST (Provider-D, Deepgram-shaped)
// and a two-stage upload-then-poll flow (Provider-A, AssemblyAI-shaped).
package diarization

import (
	"context"
	"fmt"

	"github.com/hashing-labs/meetscribe/pkg/errs"
	"github.com/hashing-labs/meetscribe/pkg/recorder"
	"github.com/hashing-labs/meetscribe/pkg/storage"
)

// Segment is one attributed speaker turn.
type Segment struct {
	Speaker    string
	Start      float64
	End        float64
	Text       string
	Confidence float64
	WordCount  int
}

// Status is the terminal outcome of a diarization run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDisabled  Status = "disabled"
)

// Result is returned by Service.Diarize.
type Result struct {
	Status                  Status
	SpeakerCount            int
	Segments                []Segment
	ProcessingTimeSeconds   float64
	Provider                string
	Error                   string
}

// Provider performs the network call for one diarization backend.
type Provider interface {
	Name() string
	Diarize(ctx context.Context, wav []byte) ([]Segment, int, error)
}

// Service resolves audio for a meeting and dispatches to a Provider.
type Service struct {
	enabled  bool
	provider Provider
	store    storage.Backend
}

// NewService constructs a diarization Service. When enabled is false,
// Diarize always returns StatusDisabled without making network calls.
func NewService(enabled bool, provider Provider, store storage.Backend) *Service {
	return &Service{enabled: enabled, provider: provider, store: store}
}

// Diarize resolves audio for meetingID — preferring providedWAV, then
// falling back to a previously merged container, then merged PCM
// re-wrapped into a container, then a fresh chunk merge — and runs it
// through the configured provider.
func (s *Service) Diarize(ctx context.Context, meetingID string, providedWAV []byte, sampleRate int) Result {
	if !s.enabled || s.provider == nil {
		return Result{Status: StatusDisabled}
	}

	wav, err := s.resolveAudio(ctx, meetingID, providedWAV, sampleRate)
	if err != nil {
		return Result{Status: StatusFailed, Provider: s.provider.Name(), Error: err.Error()}
	}

	segments, speakerCount, err := s.provider.Diarize(ctx, wav)
	if err != nil {
		return Result{Status: StatusFailed, Provider: s.provider.Name(), Error: err.Error()}
	}

	return Result{
		Status:       StatusCompleted,
		SpeakerCount: speakerCount,
		Segments:     mergeAdjacentSameSpeaker(segments, 5.0),
		Provider:     s.provider.Name(),
	}
}

// resolveAudio implements the audio source resolution order from
// spec §4.7: provided bytes, merged container, merged PCM re-wrapped,
// or a fresh chunk merge. Returns errs.ErrNoAudioSource if none exist.
func (s *Service) resolveAudio(ctx context.Context, meetingID string, providedWAV []byte, sampleRate int) ([]byte, error) {
	if len(providedWAV) > 0 {
		return providedWAV, nil
	}

	wavKey := meetingID + "/recording.wav"
	if exists, err := s.store.FileExists(ctx, wavKey); err == nil && exists {
		return s.store.DownloadBytes(ctx, wavKey)
	}

	pcm, err := recorder.MergeChunks(ctx, s.store, meetingID)
	if err != nil {
		return nil, fmt.Errorf("diarization: resolve audio: %w", err)
	}
	if pcm == nil {
		return nil, errs.ErrNoAudioSource
	}

	wav := recorder.ConvertPCMToWAV(pcm, sampleRate)
	_ = s.store.UploadBytes(ctx, wavKey, wav, "audio/wav")
	return wav, nil
}

// mergeAdjacentSameSpeaker collapses consecutive segments from the
// same speaker separated by a gap smaller than maxGapSeconds, per
// spec §4.7's result-parsing step.
func mergeAdjacentSameSpeaker(segs []Segment, maxGapSeconds float64) []Segment {
	if len(segs) == 0 {
		return segs
	}
	merged := []Segment{segs[0]}
	lastDuration := segs[0].End - segs[0].Start
	for _, seg := range segs[1:] {
		last := &merged[len(merged)-1]
		if seg.Speaker == last.Speaker && seg.Start-last.End < maxGapSeconds {
			segDuration := seg.End - seg.Start
			if total := lastDuration + segDuration; total > 0 {
				last.Confidence = (last.Confidence*lastDuration + seg.Confidence*segDuration) / total
			}
			last.WordCount += seg.WordCount
			last.End = seg.End
			if seg.Text != "" {
				if last.Text != "" {
					last.Text += " "
				}
				last.Text += seg.Text
			}
			lastDuration += segDuration
			continue
		}
		merged = append(merged, seg)
		lastDuration = seg.End - seg.Start
	}
	return merged
}
