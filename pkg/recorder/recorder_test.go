package recorder

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

func TestAddChunkPersistsAtTargetSize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := New("meeting-1", store, 1, nil, nil) // 1s chunks = 32000 bytes
	r.Start(ctx)

	r.AddChunk(ctx, make([]byte, 32000))

	// The staging swap happens synchronously inside AddChunk; the write
	// itself runs in a goroutine that this test does not wait for.
	if got := r.GetStatus().StagingDuration; got != 0 {
		t.Errorf("StagingDuration = %v, want 0 after reaching the target chunk size", got)
	}

	meta, err := r.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if meta.MeetingID != "meeting-1" {
		t.Errorf("MeetingID = %q", meta.MeetingID)
	}
}

func TestAddChunkBelowTargetStaysStaged(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := New("meeting-2", store, 30, nil, nil)
	r.Start(ctx)
	r.AddChunk(ctx, make([]byte, 100))

	status := r.GetStatus()
	if status.ChunksSaved != 0 {
		t.Errorf("expected no chunks saved yet, got %d", status.ChunksSaved)
	}
}

func TestStopFlushesResidualAndWritesMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := New("meeting-3", store, 30, nil, nil)
	r.Start(ctx)
	r.AddChunk(ctx, make([]byte, 500))

	meta, err := r.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(meta.Chunks) != 1 {
		t.Fatalf("expected residual to be flushed as one chunk, got %d", len(meta.Chunks))
	}
	if meta.Chunks[0].SizeBytes != 500 {
		t.Errorf("SizeBytes = %d, want 500", meta.Chunks[0].SizeBytes)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := New("meeting-4", store, 30, nil, nil)
	first, _ := r.Start(ctx)
	second, _ := r.Start(ctx)
	if !first || second {
		t.Errorf("expected first Start to report true and second false, got %v, %v", first, second)
	}
}

func TestMergeChunksConcatenatesInOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.UploadBytes(ctx, "meeting-5/pcm_chunks/chunk_00000.pcm", []byte("AA"), "")
	store.UploadBytes(ctx, "meeting-5/pcm_chunks/chunk_00001.pcm", []byte("BB"), "")

	merged, err := MergeChunks(ctx, store, "meeting-5")
	if err != nil {
		t.Fatalf("MergeChunks: %v", err)
	}
	if string(merged) != "AABB" {
		t.Errorf("merged = %q, want %q", merged, "AABB")
	}
}

func TestMergeChunksReturnsNilForNoAudio(t *testing.T) {
	store := newTestStore(t)
	merged, err := MergeChunks(context.Background(), store, "meeting-empty")
	if err != nil {
		t.Fatalf("MergeChunks: %v", err)
	}
	if merged != nil {
		t.Errorf("expected nil for no audio source, got %v", merged)
	}
}

func TestMergeChunksReusesCachedMerge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.UploadBytes(ctx, "meeting-6/merged.pcm", []byte("cached"), "")
	store.UploadBytes(ctx, "meeting-6/pcm_chunks/chunk_00000.pcm", []byte("not used"), "")

	merged, err := MergeChunks(ctx, store, "meeting-6")
	if err != nil {
		t.Fatalf("MergeChunks: %v", err)
	}
	if string(merged) != "cached" {
		t.Errorf("merged = %q, want cached content", merged)
	}
}

func TestConvertPCMToWAVProducesRiffHeader(t *testing.T) {
	wav := ConvertPCMToWAV(make([]byte, 100), 16000)
	if len(wav) < 44 {
		t.Fatalf("wav too short: %d bytes", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Errorf("missing RIFF/WAVE header")
	}
}

func TestRenameRecorderFolderMovesAllKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.UploadBytes(ctx, "old-id/pcm_chunks/chunk_00000.pcm", []byte("x"), "")
	store.UploadBytes(ctx, "old-id/metadata.json", []byte("{}"), "")

	if err := RenameRecorderFolder(ctx, store, "old-id", "new-id"); err != nil {
		t.Fatalf("RenameRecorderFolder: %v", err)
	}

	if exists, _ := store.FileExists(ctx, "new-id/pcm_chunks/chunk_00000.pcm"); !exists {
		t.Errorf("expected chunk to exist under new-id")
	}
	if exists, _ := store.FileExists(ctx, "old-id/pcm_chunks/chunk_00000.pcm"); exists {
		t.Errorf("expected old-id prefix to be removed")
	}
}
