// Package finalizer runs the idempotent post-recording pipeline:
// merge chunks, write a WAV container, optionally push it to cloud
// storage, optionally hand off to diarization.
package finalizer

import (
	"context"
	"fmt"

	"github.com/hashing-labs/meetscribe/pkg/observability"
	"github.com/hashing-labs/meetscribe/pkg/recorder"
	"github.com/hashing-labs/meetscribe/pkg/storage"
)

// Status is the terminal outcome of a Finalize call.
type Status string

const (
	StatusOK               Status = "ok"
	StatusNoRecording      Status = "no_recording"
	StatusMergeFailed      Status = "merge_failed"
	StatusConversionFailed Status = "conversion_failed"
)

// Result reports what Finalize did.
type Result struct {
	Status        Status
	RecordingKey  string
	SampleRate    int
	DiarizationOK bool
	Err           error
}

// DiarizeFunc dispatches a detached diarization job; the finalizer
// never blocks on its completion.
type DiarizeFunc func(ctx context.Context, meetingID string, wav []byte)

// Options configures one Finalize run.
type Options struct {
	SampleRate int
	// UploadToCloud, when set, copies recording.wav to CloudStore after
	// writing it locally/canonically.
	UploadToCloud   bool
	CloudStore      storage.Backend
	DeleteChunks    bool
	DispatchDiarize DiarizeFunc
}

// Finalize runs the 5-step pipeline for meetingID against store (the
// canonical storage backend the recording lives in). It is safe to
// call more than once: each step checks for already-completed work
// before repeating it.
func Finalize(ctx context.Context, store storage.Backend, meetingID string, opts Options, log observability.Logger) Result {
	if log == nil {
		log = observability.NoOpLogger{}
	}
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}

	pcm, err := recorder.MergeChunks(ctx, store, meetingID)
	if err != nil {
		log.Error("finalize: merge chunks failed", "meeting_id", meetingID, "error", err.Error())
		return Result{Status: StatusMergeFailed, Err: err}
	}
	if pcm == nil {
		log.Warn("finalize: no recording found", "meeting_id", meetingID)
		return Result{Status: StatusNoRecording}
	}

	wavKey := meetingID + "/recording.wav"
	exists, err := store.FileExists(ctx, wavKey)
	if err != nil {
		return Result{Status: StatusConversionFailed, Err: err}
	}

	var wavBytes []byte
	if !exists {
		wavBytes = recorder.ConvertPCMToWAV(pcm, sampleRate)
		if err := store.UploadBytes(ctx, wavKey, wavBytes, "audio/wav"); err != nil {
			log.Error("finalize: write recording.wav failed", "meeting_id", meetingID, "error", err.Error())
			return Result{Status: StatusConversionFailed, Err: err}
		}
	} else {
		wavBytes, err = store.DownloadBytes(ctx, wavKey)
		if err != nil {
			return Result{Status: StatusConversionFailed, Err: err}
		}
	}

	if opts.UploadToCloud && opts.CloudStore != nil {
		if err := opts.CloudStore.UploadBytes(ctx, wavKey, wavBytes, "audio/wav"); err != nil {
			log.Error("finalize: cloud upload failed", "meeting_id", meetingID, "error", err.Error())
		} else if opts.DeleteChunks {
			if err := store.DeletePrefix(ctx, fmt.Sprintf("%s/pcm_chunks/", meetingID)); err != nil {
				log.Warn("finalize: failed to clean up local chunks after cloud upload", "meeting_id", meetingID, "error", err.Error())
			}
		}
	}

	if opts.DispatchDiarize != nil {
		go opts.DispatchDiarize(context.WithoutCancel(ctx), meetingID, wavBytes)
	}

	return Result{Status: StatusOK, RecordingKey: wavKey, SampleRate: sampleRate, DiarizationOK: opts.DispatchDiarize != nil}
}
