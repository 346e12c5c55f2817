package alignment

import "github.com/google/uuid"

// Transcript is one input segment to AlignBatch; AudioStartTime and
// AudioEndTime name their fields after pkg/transcription.FinalSegment
// so callers can map one into the other without an adapter struct. ID
// is optional — a caller that already has a stable identity for the
// segment (e.g. a persisted version's row id) can set it; AlignBatch
// fills one in when it's empty.
type Transcript struct {
	ID             string
	Text           string
	AudioStartTime float64
	AudioEndTime   float64
}

// AlignedTranscript is a Transcript annotated with its alignment
// outcome. ID is always populated on output, even when the input
// Transcript left it empty, so a client always has a stable identity
// to key rendering on.
type AlignedTranscript struct {
	Transcript
	Speaker           string
	SpeakerConfidence float64
	AlignmentMethod   Method
	AlignmentState    State
}

// BatchMetrics summarizes a batch alignment run.
type BatchMetrics struct {
	TotalSegments   int
	ConfidentCount  int
	UncertainCount  int
	OverlapCount    int
	UnknownCount    int
	AvgConfidence   float64
	MethodBreakdown map[Method]int
}

// AlignBatch aligns every transcript against segments and returns the
// annotated transcripts alongside aggregate metrics.
func (e *Engine) AlignBatch(transcripts []Transcript, segments []SpeakerSegment) ([]AlignedTranscript, BatchMetrics) {
	metrics := BatchMetrics{
		TotalSegments:   len(transcripts),
		MethodBreakdown: make(map[Method]int),
	}

	aligned := make([]AlignedTranscript, 0, len(transcripts))
	var totalConfidence float64

	for _, t := range transcripts {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		result := e.AlignSegment(t.Text, t.AudioStartTime, t.AudioEndTime, segments)

		metrics.MethodBreakdown[result.Method]++
		switch result.State {
		case StateConfident:
			metrics.ConfidentCount++
		case StateUncertain:
			metrics.UncertainCount++
		case StateOverlap:
			metrics.OverlapCount++
		case StateUnknownSpeaker:
			metrics.UnknownCount++
		}
		totalConfidence += result.Confidence

		aligned = append(aligned, AlignedTranscript{
			Transcript:        t,
			Speaker:           result.Speaker,
			SpeakerConfidence: result.Confidence,
			AlignmentMethod:   result.Method,
			AlignmentState:    result.State,
		})
	}

	if len(transcripts) > 0 {
		metrics.AvgConfidence = totalConfidence / float64(len(transcripts))
	}

	return aligned, metrics
}
