package finalizer

import (
	"context"
	"testing"

	"github.com/hashing-labs/meetscribe/pkg/storage"
)

func newTestStore(t *testing.T) storage.Backend {
	t.Helper()
	s, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return s
}

func TestFinalizeNoRecording(t *testing.T) {
	store := newTestStore(t)
	res := Finalize(context.Background(), store, "meeting-none", Options{}, nil)
	if res.Status != StatusNoRecording {
		t.Errorf("Status = %v, want %v", res.Status, StatusNoRecording)
	}
}

func TestFinalizeHappyPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	store.UploadBytes(ctx, "meeting-1/pcm_chunks/chunk_00000.pcm", make([]byte, 1000), "")

	res := Finalize(ctx, store, "meeting-1", Options{SampleRate: 16000}, nil)
	if res.Status != StatusOK {
		t.Fatalf("Status = %v, err = %v", res.Status, res.Err)
	}
	exists, err := store.FileExists(ctx, "meeting-1/recording.wav")
	if err != nil || !exists {
		t.Errorf("expected recording.wav to be written, exists=%v err=%v", exists, err)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	store.UploadBytes(ctx, "meeting-2/pcm_chunks/chunk_00000.pcm", make([]byte, 1000), "")

	first := Finalize(ctx, store, "meeting-2", Options{}, nil)
	second := Finalize(ctx, store, "meeting-2", Options{}, nil)
	if first.Status != StatusOK || second.Status != StatusOK {
		t.Fatalf("expected both calls to succeed: %v, %v", first, second)
	}
	if first.RecordingKey != second.RecordingKey {
		t.Errorf("expected stable recording key across idempotent calls")
	}
}

func TestFinalizeDispatchesDiarization(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	store.UploadBytes(ctx, "meeting-3/pcm_chunks/chunk_00000.pcm", make([]byte, 1000), "")

	done := make(chan string, 1)
	res := Finalize(ctx, store, "meeting-3", Options{
		DispatchDiarize: func(ctx context.Context, meetingID string, wav []byte) {
			done <- meetingID
		},
	}, nil)

	if res.Status != StatusOK || !res.DiarizationOK {
		t.Fatalf("expected OK with diarization dispatched, got %+v", res)
	}
	select {
	case id := <-done:
		if id != "meeting-3" {
			t.Errorf("dispatched meeting id = %q", id)
		}
	default:
		// dispatch runs in a goroutine; a synchronous drain is not
		// guaranteed here, so absence alone is not a failure.
	}
}
