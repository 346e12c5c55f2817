package alignment

import "testing"

func TestAlignSegmentClearTurns(t *testing.T) {
	e := NewEngine()
	segments := []SpeakerSegment{
		{Speaker: "Speaker 0", Start: 0, End: 2},
		{Speaker: "Speaker 1", Start: 2, End: 4},
	}

	a := e.AlignSegment("A A A", 0, 2, segments)
	if a.State != StateConfident || a.Speaker != "Speaker 0" || a.Method != MethodTimeOverlap {
		t.Errorf("segment A: got %+v", a)
	}
	if a.Confidence < 0.6 {
		t.Errorf("segment A confidence = %v, want >= 0.6", a.Confidence)
	}

	b := e.AlignSegment("B B B", 2, 4, segments)
	if b.State != StateConfident || b.Speaker != "Speaker 1" || b.Method != MethodTimeOverlap {
		t.Errorf("segment B: got %+v", b)
	}
}

func TestAlignSegmentSimultaneousSpeechIsOverlap(t *testing.T) {
	e := NewEngine()
	segments := []SpeakerSegment{
		{Speaker: "Speaker 0", Start: 0, End: 3},
		{Speaker: "Speaker 1", Start: 1, End: 4},
	}

	result := e.AlignSegment("X X X X", 0, 4, segments)
	if result.State != StateOverlap {
		t.Fatalf("State = %v, want OVERLAP", result.State)
	}
	// Speaker 1 overlaps [1,4) => 3s; Speaker 0 overlaps [0,3) => 3s.
	// Both have equal overlap here: ties resolve by segments' input
	// order, so Speaker 0 (listed first) always wins.
	if result.Speaker != "Speaker 0" {
		t.Errorf("Speaker = %q, want Speaker 0 (first in segments, tie-break order)", result.Speaker)
	}
	if result.Confidence <= 0 {
		t.Errorf("Confidence = %v, want > 0", result.Confidence)
	}
}

func TestAlignSegmentNoSpeakers(t *testing.T) {
	e := NewEngine()
	result := e.AlignSegment("hello", 0, 1, nil)
	if result.State != StateUnknownSpeaker || result.Method != MethodNoSpeakers {
		t.Errorf("got %+v", result)
	}
}

func TestAlignSegmentUncertainOnWeakOverlap(t *testing.T) {
	e := NewEngine()
	segments := []SpeakerSegment{{Speaker: "Speaker 0", Start: 0, End: 1}}
	// transcript spans [0,10) but only 1s overlaps the speaker window,
	// and the text is too short for word-density to rescue it.
	result := e.AlignSegment("hi", 0, 10, segments)
	if result.State != StateUncertain {
		t.Errorf("State = %v, want UNCERTAIN", result.State)
	}
}

func TestAlignBatchMetrics(t *testing.T) {
	e := NewEngine()
	segments := []SpeakerSegment{
		{Speaker: "Speaker 0", Start: 0, End: 2},
		{Speaker: "Speaker 1", Start: 2, End: 4},
	}
	transcripts := []Transcript{
		{Text: "A A A", AudioStartTime: 0, AudioEndTime: 2},
		{Text: "B B B", AudioStartTime: 2, AudioEndTime: 4},
	}

	aligned, metrics := e.AlignBatch(transcripts, segments)
	if len(aligned) != 2 {
		t.Fatalf("expected 2 aligned transcripts, got %d", len(aligned))
	}
	if metrics.TotalSegments != 2 || metrics.ConfidentCount != 2 {
		t.Errorf("metrics = %+v", metrics)
	}
	if metrics.AvgConfidence <= 0 {
		t.Errorf("AvgConfidence = %v, want > 0", metrics.AvgConfidence)
	}
	if metrics.MethodBreakdown[MethodTimeOverlap] != 2 {
		t.Errorf("MethodBreakdown = %+v", metrics.MethodBreakdown)
	}
	if aligned[0].ID == "" || aligned[1].ID == "" {
		t.Errorf("expected a generated id on every aligned item, got %+v", aligned)
	}
	if aligned[0].ID == aligned[1].ID {
		t.Errorf("expected distinct generated ids, got the same id for both items: %q", aligned[0].ID)
	}
}

func TestAlignBatchPreservesProvidedID(t *testing.T) {
	e := NewEngine()
	segments := []SpeakerSegment{{Speaker: "Speaker 0", Start: 0, End: 2}}
	transcripts := []Transcript{{ID: "row-42", Text: "A A A", AudioStartTime: 0, AudioEndTime: 2}}

	aligned, _ := e.AlignBatch(transcripts, segments)
	if aligned[0].ID != "row-42" {
		t.Errorf("ID = %q, want the caller-provided id to be preserved", aligned[0].ID)
	}
}

func TestAlignBatchEmpty(t *testing.T) {
	e := NewEngine()
	aligned, metrics := e.AlignBatch(nil, nil)
	if len(aligned) != 0 || metrics.AvgConfidence != 0 {
		t.Errorf("expected zero-value metrics for empty batch, got %+v, %+v", aligned, metrics)
	}
}
