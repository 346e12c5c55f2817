// Package recorder durably captures raw PCM audio for a meeting in
// bounded-duration chunks, in parallel with live transcription,
// without slowing the transcription path: addChunk never awaits I/O
// on the bytes it was handed, only the buffer-swap decision.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashing-labs/meetscribe/pkg/observability"
	"github.com/hashing-labs/meetscribe/pkg/storage"
)

const (
	sampleRate          = 16000
	bytesPerSample      = 2
	channels            = 1
	defaultChunkSeconds = 30
)

// ChunkMeta describes one persisted chunk, as recorded in the
// recording's metadata.json sidecar.
type ChunkMeta struct {
	Index       int       `json:"chunk_index"`
	Key         string    `json:"key"`
	StartOffset float64   `json:"start_offset"`
	EndOffset   float64   `json:"end_offset"`
	Duration    float64   `json:"duration"`
	SizeBytes   int       `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Metadata is the full recording manifest written by Stop.
type Metadata struct {
	MeetingID     string      `json:"meeting_id"`
	Chunks        []ChunkMeta `json:"chunks"`
	SampleRate    int         `json:"sample_rate"`
	Channels      int         `json:"channels"`
	BitsPerSample int         `json:"bits_per_sample"`
}

// Status reports a recorder's live state for diagnostics.
type Status struct {
	Active          bool
	ElapsedSeconds  float64
	ChunksSaved     int
	StagingDuration float64
}

// Recorder durably persists PCM for a single meeting. One Recorder
// exists per active meeting; the process-wide table mapping meeting
// id to Recorder lives in pkg/runtime, not here.
type Recorder struct {
	meetingID       string
	store           storage.Backend
	log             observability.Logger
	metrics         *observability.Metrics
	chunkPrefix     string
	targetChunkSize int

	mu        sync.Mutex
	staging   []byte
	started   bool
	startedAt time.Time
	chunkIdx  int
	chunks    []ChunkMeta
	bytesDone int
}

// New constructs a Recorder for meetingID against the given storage
// backend, targeting chunkSeconds of audio per persisted chunk
// (defaulting to 30s when chunkSeconds <= 0).
func New(meetingID string, store storage.Backend, chunkSeconds int, log observability.Logger, metrics *observability.Metrics) *Recorder {
	if chunkSeconds <= 0 {
		chunkSeconds = defaultChunkSeconds
	}
	if log == nil {
		log = observability.NoOpLogger{}
	}
	return &Recorder{
		meetingID:       meetingID,
		store:           store,
		log:             log,
		metrics:         metrics,
		chunkPrefix:     meetingID + "/pcm_chunks/",
		targetChunkSize: chunkSeconds * sampleRate * bytesPerSample * channels,
	}
}

// Start marks the recorder active. It is idempotent; calling Start
// twice is a no-op returning false the second time.
func (r *Recorder) Start(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return false, nil
	}
	r.started = true
	r.startedAt = time.Now()
	r.log.Info("recording started", "meeting_id", r.meetingID)
	return true, nil
}

// AddChunk appends bytes to the in-memory staging buffer. Once the
// buffer reaches the target chunk size it is atomically swapped for
// an empty one and the swapped bytes are persisted asynchronously —
// the swap itself is synchronous with this call so no caller ever
// races another chunk boundary.
func (r *Recorder) AddChunk(ctx context.Context, pcm []byte) {
	r.mu.Lock()
	r.staging = append(r.staging, pcm...)

	var toSave []byte
	var startOffset float64
	var idx int
	claimed := false
	if len(r.staging) >= r.targetChunkSize {
		toSave = r.staging
		r.staging = nil
		startOffset = float64(r.bytesDone) / (sampleRate * bytesPerSample * channels)
		r.bytesDone += len(toSave)
		idx = r.chunkIdx
		r.chunkIdx++
		claimed = true
	}
	r.mu.Unlock()

	if !claimed {
		return
	}
	go r.persistChunk(ctx, idx, toSave, startOffset)
}

// persistChunk writes one chunk to its own key. No lock is held across
// the write: chunks claimed by fast-following boundary hits are written
// by separate goroutines that may run at the same time and finish in
// any order. idx is claimed synchronously by the caller at the
// buffer-swap point, so it is never re-derived here.
func (r *Recorder) persistChunk(ctx context.Context, idx int, data []byte, startOffset float64) {
	key := fmt.Sprintf("%schunk_%05d.pcm", r.chunkPrefix, idx)
	if err := r.store.UploadBytes(ctx, key, data, "application/octet-stream"); err != nil {
		r.log.Warn("failed to persist audio chunk, its index is left without a file", "meeting_id", r.meetingID, "index", idx, "error", err.Error())
		return
	}

	duration := float64(len(data)) / (sampleRate * bytesPerSample * channels)
	meta := ChunkMeta{
		Index:       idx,
		Key:         key,
		StartOffset: startOffset,
		EndOffset:   startOffset + duration,
		Duration:    duration,
		SizeBytes:   len(data),
		CreatedAt:   time.Now(),
	}

	r.mu.Lock()
	r.chunks = append(r.chunks, meta)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecorderChunksWritten.Add(ctx, 1)
	}
}

// Stop flushes any residual staging bytes as a final chunk and writes
// the metadata.json manifest.
func (r *Recorder) Stop(ctx context.Context) (Metadata, error) {
	r.mu.Lock()
	residual := r.staging
	r.staging = nil
	startOffset := float64(r.bytesDone) / (sampleRate * bytesPerSample * channels)
	r.bytesDone += len(residual)
	r.started = false
	var idx int
	if len(residual) > 0 {
		idx = r.chunkIdx
		r.chunkIdx++
	}
	r.mu.Unlock()

	if len(residual) > 0 {
		r.persistChunk(ctx, idx, residual, startOffset)
	}

	r.mu.Lock()
	chunks := make([]ChunkMeta, len(r.chunks))
	copy(chunks, r.chunks)
	r.mu.Unlock()

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })

	meta := Metadata{
		MeetingID:     r.meetingID,
		Chunks:        chunks,
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: bytesPerSample * 8,
	}

	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return meta, fmt.Errorf("recorder: marshal metadata: %w", err)
	}
	metaKey := r.meetingID + "/pcm_chunks/metadata.json"
	if err := r.store.UploadBytes(ctx, metaKey, raw, "application/json"); err != nil {
		r.log.Warn("failed to persist recording metadata", "meeting_id", r.meetingID, "error", err.Error())
		return meta, err
	}
	return meta, nil
}

// GetStatus reports the recorder's live state.
func (r *Recorder) GetStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := 0.0
	if r.started {
		elapsed = time.Since(r.startedAt).Seconds()
	}
	return Status{
		Active:          r.started,
		ElapsedSeconds:  elapsed,
		ChunksSaved:     len(r.chunks),
		StagingDuration: float64(len(r.staging)) / (sampleRate * bytesPerSample * channels),
	}
}
