// Package vad implements voice-activity detection with a fallback
// chain across three backends: a native C-library binding, an ONNX
// ML model, and an amplitude-based heuristic. Exactly one backend is
// selected at construction; the streaming pipeline never fails for
// lack of VAD — it degrades to the next backend in the chain instead.
package vad

// Detector decides whether a PCM frame contains speech. Implementations
// must be safe to reuse across frames within a single stream; any
// internal ML state is reset on each IsSpeech call so results don't
// leak across sessions sharing a backend instance.
type Detector interface {
	// IsSpeech reports whether frame (16-bit PCM, 16kHz mono) contains
	// speech. The frame is split into the backend's native frame size;
	// if any sub-frame exceeds the detection threshold, IsSpeech
	// returns true. Frames shorter than the native size are
	// zero-padded.
	IsSpeech(frame []int16) (bool, error)

	// GetSpeechSegments scans an entire audio buffer offline and
	// returns speech intervals, merging runs shorter than minSpeechMs
	// into silence and silence gaps shorter than minSilenceMs into
	// adjoining speech.
	GetSpeechSegments(audio []int16, minSpeechMs, minSilenceMs int) []Segment

	// Name identifies the backend for logging ("native", "ml", "amplitude").
	Name() string
}

// Segment is an offline speech interval in milliseconds from the
// start of the scanned audio.
type Segment struct {
	StartMs int
	EndMs   int
}

const sampleRate = 16000

// msToSamples converts a millisecond duration to a sample count at
// the pipeline's fixed 16kHz rate.
func msToSamples(ms int) int {
	return ms * sampleRate / 1000
}

// samplesToMs converts a sample count to milliseconds at 16kHz.
func samplesToMs(samples int) int {
	return samples * 1000 / sampleRate
}

// segmentsFromFrameDecisions merges a dense per-frame speech/silence
// decision sequence into coalesced segments, applying minSpeechMs and
// minSilenceMs as the shortest run lengths worth keeping. frameMs is
// the duration each decision covers.
func segmentsFromFrameDecisions(decisions []bool, frameMs, minSpeechMs, minSilenceMs int) []Segment {
	if len(decisions) == 0 {
		return nil
	}

	type run struct {
		speech     bool
		startFrame int
		endFrame   int // exclusive
	}
	var runs []run
	cur := run{speech: decisions[0], startFrame: 0}
	for i := 1; i < len(decisions); i++ {
		if decisions[i] != cur.speech {
			cur.endFrame = i
			runs = append(runs, cur)
			cur = run{speech: decisions[i], startFrame: i}
		}
	}
	cur.endFrame = len(decisions)
	runs = append(runs, cur)

	minSpeechFrames := minSpeechMs / frameMs
	minSilenceFrames := minSilenceMs / frameMs

	// Drop short silence runs by merging the neighboring speech runs.
	merged := make([]run, 0, len(runs))
	for _, r := range runs {
		if !r.speech && (r.endFrame-r.startFrame) < minSilenceFrames && len(merged) > 0 && merged[len(merged)-1].speech {
			merged[len(merged)-1].endFrame = r.endFrame
			continue
		}
		merged = append(merged, r)
	}

	var segs []Segment
	for _, r := range merged {
		if !r.speech {
			continue
		}
		if (r.endFrame - r.startFrame) < minSpeechFrames {
			continue
		}
		segs = append(segs, Segment{
			StartMs: r.startFrame * frameMs,
			EndMs:   r.endFrame * frameMs,
		})
	}
	return segs
}
