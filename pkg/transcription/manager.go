package transcription

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hashing-labs/meetscribe/pkg/buffer"
	"github.com/hashing-labs/meetscribe/pkg/errs"
	"github.com/hashing-labs/meetscribe/pkg/observability"
	"github.com/hashing-labs/meetscribe/pkg/sttbackend"
	"github.com/hashing-labs/meetscribe/pkg/vad"
)

const (
	silenceThresholdMs       = 1000
	minTranscriptionInterval = 3 * time.Second
	punctuationMinSpeechMs   = 2000
	timeoutSpeechMs          = 6000
	stabilityCount           = 4
	sentenceCompleteCount    = 2
	maxInFlightBackendCalls  = 2
	bytesPerSecond           = 32000 // 16kHz * 2 bytes/sample * 1 channel
)

// Manager orchestrates VAD → rolling buffer → remote transcription for
// a single streaming session, emitting FinalSegments through typed
// output channels rather than callbacks. It owns no network
// connection; the session layer feeds it frames and drains its
// channels.
type Manager struct {
	mu sync.Mutex

	buf     *buffer.RollingBuffer
	vad     vad.Detector
	backend sttbackend.Backend
	log     observability.Logger
	metrics *observability.Metrics

	sem *semaphore.Weighted

	lastPartial           string
	lastFinalConcatenated string
	sameTextCount         int
	silenceMs             float64
	isSpeaking            bool

	finalizedHashes map[string]struct{}

	sessionStart              time.Time
	lastChunkTimestamp        float64
	speechStartTime           float64
	speechEndTime             float64
	lastTranscriptionWallTime time.Time

	final  chan FinalSegment
	errors chan BackendErrorEvent

	wg sync.WaitGroup
}

// New constructs a Manager bound to a single backend and VAD detector.
func New(backend sttbackend.Backend, detector vad.Detector, log observability.Logger, metrics *observability.Metrics) *Manager {
	if log == nil {
		log = observability.NoOpLogger{}
	}
	return &Manager{
		buf:             buffer.NewDefault(),
		vad:             detector,
		backend:         backend,
		log:             log,
		metrics:         metrics,
		sem:             semaphore.NewWeighted(maxInFlightBackendCalls),
		finalizedHashes: make(map[string]struct{}),
		sessionStart:    time.Now(),
		final:           make(chan FinalSegment, 32),
		errors:          make(chan BackendErrorEvent, 8),
	}
}

// Final is the channel FinalSegments are published on.
func (m *Manager) Final() <-chan FinalSegment { return m.final }

// Errors is the channel backend error events are published on.
func (m *Manager) Errors() <-chan BackendErrorEvent { return m.errors }

// ProcessFrame implements spec §4.4's "Processing a frame" algorithm.
// pcm is raw 16-bit LE PCM; clientTimestamp is seconds since session
// start, or a negative value if absent (the manager's own clock is then
// used).
func (m *Manager) ProcessFrame(ctx context.Context, pcm []byte, clientTimestamp float64) {
	m.mu.Lock()

	if clientTimestamp < 0 {
		clientTimestamp = time.Since(m.sessionStart).Seconds()
	}
	if clientTimestamp < m.lastChunkTimestamp {
		clientTimestamp = m.lastChunkTimestamp + 0.1
	}
	m.lastChunkTimestamp = clientTimestamp

	durationSec := float64(len(pcm)) / bytesPerSecond

	frame := bytesToInt16(pcm)
	speech, err := m.vad.IsSpeech(frame)
	if err != nil {
		m.log.Warn("vad backend failed, treating frame as silence", "error", err.Error())
		speech = false
	}

	triggered := m.buf.AddSamplesBytes(pcm)

	if speech {
		if !m.isSpeaking {
			m.speechStartTime = clientTimestamp
			m.isSpeaking = true
		}
		m.speechEndTime = clientTimestamp + durationSec
		m.silenceMs = 0
	} else if m.isSpeaking {
		m.silenceMs += durationSec * 1000
		if m.silenceMs > silenceThresholdMs && m.lastPartial != "" {
			hash := normalizedHash(m.lastPartial)
			if _, already := m.finalizedHashes[hash]; !already {
				m.emitFinal(FinalSegment{
					Text:           m.lastPartial,
					Reason:         ReasonSilence,
					AudioStartTime: m.speechStartTime,
					AudioEndTime:   m.speechEndTime,
					Duration:       m.speechEndTime - m.speechStartTime,
				}, hash)
			}
			m.lastPartial = ""
			m.isSpeaking = false
			m.speechStartTime = 0
		}
	}

	shouldCall := m.shouldInvokeBackend(triggered)
	m.mu.Unlock()

	if shouldCall {
		m.wg.Add(1)
		go m.invokeBackend(ctx)
	}
}

// shouldInvokeBackend must be called with m.mu held.
func (m *Manager) shouldInvokeBackend(triggered bool) bool {
	if !triggered {
		return false
	}
	if !m.buf.IsViable() {
		return false
	}
	if time.Since(m.lastTranscriptionWallTime) < minTranscriptionInterval {
		return false
	}

	recentSpeech := m.isSpeaking || (m.speechEndTime > 0 && (m.lastChunkTimestamp-m.speechEndTime) < float64(buffer.DefaultWindowMs)/1000)
	m.lastTranscriptionWallTime = time.Now()
	return recentSpeech
}

// invokeBackend runs a single bounded-concurrency backend call against
// the current window.
func (m *Manager) invokeBackend(ctx context.Context) {
	defer m.wg.Done()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	windowBytes := m.buf.GetWindowBytes()
	prompt := lastNChars(m.lastFinalConcatenated, 100)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.TranscriptionInFlight.Add(ctx, 1)
		defer m.metrics.TranscriptionInFlight.Add(ctx, -1)
	}

	start := time.Now()
	result, err := m.backend.Transcribe(ctx, windowBytes, sttbackend.TranscribeOptions{Prompt: prompt})
	if m.metrics != nil {
		m.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	}

	if err != nil {
		m.handleBackendError(ctx, err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.handleTranscript(result.Text, result.Confidence)
}

func (m *Manager) handleBackendError(ctx context.Context, err error) {
	be, ok := errs.AsBackendError(err)
	if !ok {
		m.log.Warn("transcription backend error", "error", err.Error())
		return
	}
	if m.metrics != nil {
		m.metrics.RecordBackendError(ctx, m.backend.Name(), kindLabel(be.Kind))
	}
	switch be.Kind {
	case errs.RateLimited:
		m.errors <- BackendErrorEvent{Kind: ErrorGroqRateLimit, Message: be.Error()}
	case errs.InvalidCredential:
		m.errors <- BackendErrorEvent{Kind: ErrorGroqKeyRequired, Message: be.Error()}
	default:
		m.log.Warn("transcription transient failure, skipping window", "error", be.Error())
	}
}

func kindLabel(k errs.BackendErrorKind) string {
	switch k {
	case errs.TransientNetwork:
		return "transient_network"
	case errs.RateLimited:
		return "rate_limited"
	case errs.InvalidCredential:
		return "invalid_credential"
	case errs.BadRequest:
		return "bad_request"
	default:
		return "other"
	}
}

// handleTranscript implements spec §4.4's handleTranscript algorithm.
// Caller must hold m.mu.
func (m *Manager) handleTranscript(text string, confidence float64) {
	text = strings.TrimSpace(text)
	if len(text) < 2 {
		return
	}
	if isHallucination(text) {
		return
	}

	text = strings.TrimSpace(removeOverlap(text, m.lastFinalConcatenated))
	if len(text) < 3 {
		return
	}

	hash := normalizedHash(text)
	if _, dup := m.finalizedHashes[hash]; dup {
		return
	}

	if isNearDuplicate(text, m.lastFinalConcatenated) {
		return
	}

	if text == m.lastPartial {
		m.sameTextCount++
	} else {
		m.sameTextCount = 0
		m.lastPartial = text
	}

	speechDurationMs := (m.speechEndTime - m.speechStartTime) * 1000

	var reason TriggerReason
	switch {
	case endsWithSentenceTerminal(text) && speechDurationMs >= punctuationMinSpeechMs:
		reason = ReasonPunctuation
	case speechDurationMs >= timeoutSpeechMs:
		reason = ReasonTimeout
	case m.sameTextCount >= stabilityCount:
		reason = ReasonStability
	case m.sameTextCount >= sentenceCompleteCount && endsWithSentenceTerminal(text):
		reason = ReasonSentenceComplete
	default:
		return
	}

	if _, already := m.finalizedHashes[hash]; already {
		return
	}

	m.emitFinal(FinalSegment{
		Text:           text,
		Confidence:     confidence,
		Reason:         reason,
		AudioStartTime: m.speechStartTime,
		AudioEndTime:   m.speechEndTime,
		Duration:       m.speechEndTime - m.speechStartTime,
	}, hash)

	m.sameTextCount = 0
	m.speechStartTime = m.speechEndTime
}

// emitFinal records the hash, advances last_final_concatenated, and
// publishes the segment. Caller must hold m.mu.
func (m *Manager) emitFinal(seg FinalSegment, hash string) {
	m.finalizedHashes[hash] = struct{}{}
	if m.lastFinalConcatenated == "" {
		m.lastFinalConcatenated = seg.Text
	} else {
		m.lastFinalConcatenated = m.lastFinalConcatenated + " " + seg.Text
	}
	m.lastPartial = ""

	select {
	case m.final <- seg:
	default:
		m.log.Warn("final segment channel full, dropping this segment; consumer is too slow")
	}
}

// ForceFlush encodes whatever remains in the buffer (if more than
// 0.5s) and synchronously transcribes it, returning a terminal
// FinalSegment with reason=flush. Never returns an error to the
// caller; backend failures are reported on the error channel.
func (m *Manager) ForceFlush(ctx context.Context) (FinalSegment, bool) {
	m.mu.Lock()
	durationMs := m.buf.GetBufferDurationMs()
	if durationMs < 500 {
		m.mu.Unlock()
		return FinalSegment{}, false
	}
	pcm := m.buf.GetAllSamplesBytes()
	startTime := m.speechStartTime
	endTime := m.speechEndTime
	m.mu.Unlock()

	result, err := m.backend.Transcribe(ctx, pcm, sttbackend.TranscribeOptions{})
	if err != nil {
		m.handleBackendError(ctx, err)
		return FinalSegment{}, false
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return FinalSegment{}, false
	}

	seg := FinalSegment{
		Text:           text,
		Confidence:     result.Confidence,
		Reason:         ReasonFlush,
		AudioStartTime: startTime,
		AudioEndTime:   endTime,
		Duration:       endTime - startTime,
	}

	m.mu.Lock()
	m.emitFinal(seg, normalizedHash(text))
	m.mu.Unlock()

	return seg, true
}

// Reset clears the buffer, dedup state, and trigger clocks.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buf.Clear()
	m.lastPartial = ""
	m.lastFinalConcatenated = ""
	m.sameTextCount = 0
	m.silenceMs = 0
	m.isSpeaking = false
	m.finalizedHashes = make(map[string]struct{})
	m.speechStartTime = 0
	m.speechEndTime = 0
}

// Wait blocks until all in-flight backend calls launched by
// ProcessFrame have completed, for use during session shutdown after
// the worker has stopped enqueueing new frames.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func lastNChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
	}
	return out
}
