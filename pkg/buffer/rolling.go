// Package buffer implements the rolling/sliding PCM window consumed
// by the streaming transcription manager: a fixed-capacity ring that
// accumulates samples and reports when enough new audio has arrived
// to justify another transcription call.
package buffer

import "encoding/binary"

const (
	// DefaultWindowMs is the rolling buffer's capacity in milliseconds.
	DefaultWindowMs = 6000
	// DefaultSlideMs is the minimum amount of new audio, in
	// milliseconds, that must accumulate before the window is eligible
	// for another transcription call.
	DefaultSlideMs = 2000
	// DefaultSampleRate is the only sample rate the pipeline accepts.
	DefaultSampleRate = 16000
	// viableFraction is the minimum fill ratio (relative to window
	// size) before a window is considered meaningful enough to
	// transcribe.
	viableFraction = 0.9
)

// RollingBuffer is a fixed-capacity ring of int16 PCM samples. It is
// not safe for concurrent use; callers serialize access (the
// transcription manager owns one per session and drives it from a
// single goroutine).
type RollingBuffer struct {
	windowSize int
	slideSize  int
	sampleRate int

	samples        []int16
	sinceLastSlide int
}

// New constructs a RollingBuffer sized for windowMs of audio at
// sampleRate, triggering every slideMs of newly appended audio.
func New(windowMs, slideMs, sampleRate int) *RollingBuffer {
	return &RollingBuffer{
		windowSize: windowMs * sampleRate / 1000,
		slideSize:  slideMs * sampleRate / 1000,
		sampleRate: sampleRate,
		samples:    make([]int16, 0, windowMs*sampleRate/1000),
	}
}

// NewDefault builds a RollingBuffer using the pipeline's default
// window/slide/sample-rate configuration.
func NewDefault() *RollingBuffer {
	return New(DefaultWindowMs, DefaultSlideMs, DefaultSampleRate)
}

// AddSamples appends frame to the buffer, evicting the oldest samples
// once capacity is exceeded, and reports whether enough new audio has
// accumulated since the last slide to justify another transcription
// call. The internal counter resets whenever it reports true.
func (b *RollingBuffer) AddSamples(frame []int16) bool {
	b.samples = append(b.samples, frame...)
	if over := len(b.samples) - b.windowSize; over > 0 {
		b.samples = b.samples[over:]
	}

	b.sinceLastSlide += len(frame)
	if b.sinceLastSlide >= b.slideSize {
		b.sinceLastSlide = 0
		return true
	}
	return false
}

// AddSamplesBytes is AddSamples over little-endian 16-bit PCM bytes.
func (b *RollingBuffer) AddSamplesBytes(frame []byte) bool {
	return b.AddSamples(bytesToInt16(frame))
}

// GetWindow returns the current window, zero-padded at the head when
// the buffer isn't yet full. The returned slice is a copy; callers
// may retain it.
func (b *RollingBuffer) GetWindow() []int16 {
	window := make([]int16, b.windowSize)
	pad := b.windowSize - len(b.samples)
	if pad < 0 {
		pad = 0
	}
	copy(window[pad:], b.samples)
	return window
}

// GetWindowBytes is GetWindow encoded as little-endian 16-bit PCM
// bytes, suitable for handing to a WAV encoder or transcription
// backend.
func (b *RollingBuffer) GetWindowBytes() []byte {
	return int16ToBytes(b.GetWindow())
}

// IsViable reports whether the buffer is at least 90% full — below
// this fill level a transcription call would mostly process silence
// padding.
func (b *RollingBuffer) IsViable() bool {
	return float64(len(b.samples)) >= viableFraction*float64(b.windowSize)
}

// Clear empties the buffer and resets the slide counter.
func (b *RollingBuffer) Clear() {
	b.samples = b.samples[:0]
	b.sinceLastSlide = 0
}

// GetBufferDurationMs returns the current fill expressed as
// milliseconds of audio.
func (b *RollingBuffer) GetBufferDurationMs() int {
	return len(b.samples) * 1000 / b.sampleRate
}

// GetAllSamplesBytes returns every sample currently buffered (no
// zero-padding), for diagnostics and terminal flush.
func (b *RollingBuffer) GetAllSamplesBytes() []byte {
	return int16ToBytes(b.samples)
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return out
}

func int16ToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(v))
	}
	return out
}
