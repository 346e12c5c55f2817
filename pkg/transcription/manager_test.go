package transcription

import (
	"context"
	"testing"

	"github.com/hashing-labs/meetscribe/pkg/sttbackend"
	"github.com/hashing-labs/meetscribe/pkg/vad"
)

type stubBackend struct {
	text       string
	confidence float64
	err        error
}

func (s *stubBackend) Name() string { return "stub" }
func (s *stubBackend) Transcribe(ctx context.Context, pcm []byte, opts sttbackend.TranscribeOptions) (sttbackend.Result, error) {
	if s.err != nil {
		return sttbackend.Result{}, s.err
	}
	return sttbackend.Result{Text: s.text, Confidence: s.confidence}, nil
}

// silentVAD never reports speech, keeping these handleTranscript-focused
// tests independent of the VAD frame-gating path.
func silentVAD() vad.Detector {
	return vad.NewAmplitudeDetector(1.0)
}

func TestHandleTranscriptDropsEmptyAndShortText(t *testing.T) {
	m := New(&stubBackend{}, silentVAD(), nil, nil)
	m.handleTranscript("a", 0.9)
	select {
	case seg := <-m.final:
		t.Fatalf("expected no final segment for too-short text, got %+v", seg)
	default:
	}
}

func TestHandleTranscriptPunctuationTrigger(t *testing.T) {
	m := New(&stubBackend{}, silentVAD(), nil, nil)
	m.speechStartTime = 0
	m.speechEndTime = 3.0 // 3000ms >= punctuationMinSpeechMs
	m.handleTranscript("Hello, world.", 0.9)

	select {
	case seg := <-m.final:
		if seg.Reason != ReasonPunctuation {
			t.Errorf("Reason = %v, want punctuation", seg.Reason)
		}
		if seg.Text != "Hello, world." {
			t.Errorf("Text = %q, want %q", seg.Text, "Hello, world.")
		}
	default:
		t.Fatalf("expected a final segment to be emitted")
	}
}

func TestHandleTranscriptStabilityTrigger(t *testing.T) {
	m := New(&stubBackend{}, silentVAD(), nil, nil)
	m.speechStartTime = 0
	m.speechEndTime = 1.0 // below punctuation/timeout thresholds

	// The first call only records the text as last_partial (count 0);
	// each identical repeat increments same_text_count, so the count
	// reaches stabilityCount on call stabilityCount+1.
	for i := 0; i < stabilityCount; i++ {
		m.handleTranscript("still talking", 0.9)
		select {
		case seg := <-m.final:
			t.Fatalf("unexpected early final segment: %+v", seg)
		default:
		}
	}
	m.handleTranscript("still talking", 0.9)

	select {
	case seg := <-m.final:
		if seg.Reason != ReasonStability {
			t.Errorf("Reason = %v, want stability", seg.Reason)
		}
	default:
		t.Fatalf("expected a final segment once same_text_count reached stabilityCount")
	}
}

func TestHandleTranscriptDedupsAlreadyFinalized(t *testing.T) {
	m := New(&stubBackend{}, silentVAD(), nil, nil)
	m.speechStartTime = 0
	m.speechEndTime = 3.0
	m.handleTranscript("Hello, world.", 0.9)
	<-m.final // drain first final

	m.speechStartTime = m.speechEndTime
	m.speechEndTime += 3.0
	m.handleTranscript("Hello, world.", 0.9)

	select {
	case seg := <-m.final:
		t.Fatalf("expected duplicate text to be dropped, got %+v", seg)
	default:
	}
}

func TestForceFlushSkipsShortBuffer(t *testing.T) {
	m := New(&stubBackend{text: "irrelevant"}, silentVAD(), nil, nil)
	_, ok := m.ForceFlush(context.Background())
	if ok {
		t.Errorf("expected ForceFlush to skip an empty/short buffer")
	}
}

func TestReset(t *testing.T) {
	m := New(&stubBackend{}, silentVAD(), nil, nil)
	m.lastPartial = "partial"
	m.lastFinalConcatenated = "final text"
	m.sameTextCount = 3
	m.isSpeaking = true
	m.finalizedHashes["abc"] = struct{}{}

	m.Reset()

	if m.lastPartial != "" || m.lastFinalConcatenated != "" || m.sameTextCount != 0 || m.isSpeaking {
		t.Errorf("Reset did not clear dedup state: %+v", m)
	}
	if len(m.finalizedHashes) != 0 {
		t.Errorf("Reset did not clear finalizedHashes")
	}
}
