package recorder

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashing-labs/meetscribe/pkg/audio"
	"github.com/hashing-labs/meetscribe/pkg/storage"
)

const mergedPCMKey = "merged.pcm"

// MergeChunks returns the concatenated raw PCM for a meeting. If a
// previously merged file already exists it is returned as-is;
// otherwise every chunk_*.pcm under the meeting's pcm_chunks prefix is
// concatenated in lexicographic (== numeric, given the zero-padded
// index) order, the result cached as merged.pcm, and returned. An
// empty, nil-error result means no audio source exists for meetingID.
func MergeChunks(ctx context.Context, store storage.Backend, meetingID string) ([]byte, error) {
	mergedKey := meetingID + "/" + mergedPCMKey
	if exists, err := store.FileExists(ctx, mergedKey); err != nil {
		return nil, fmt.Errorf("recorder: check merged file: %w", err)
	} else if exists {
		return store.DownloadBytes(ctx, mergedKey)
	}

	prefix := meetingID + "/pcm_chunks/"
	files, err := store.ListFiles(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("recorder: list chunks: %w", err)
	}

	var chunkKeys []string
	for _, f := range files {
		if strings.HasSuffix(f.Key, ".pcm") && strings.Contains(f.Key, "chunk_") {
			chunkKeys = append(chunkKeys, f.Key)
		}
	}
	if len(chunkKeys) == 0 {
		return nil, nil
	}

	var merged []byte
	for _, key := range chunkKeys {
		data, err := store.DownloadBytes(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("recorder: read chunk %s: %w", key, err)
		}
		merged = append(merged, data...)
	}

	if err := store.UploadBytes(ctx, mergedKey, merged, "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("recorder: cache merged pcm: %w", err)
	}
	return merged, nil
}

// ConvertPCMToWAV wraps raw PCM bytes in a WAV container at the given
// sample rate, delegating the actual encoding to pkg/audio.
func ConvertPCMToWAV(pcm []byte, sampleRate int) []byte {
	return audio.NewWavBuffer(pcm, sampleRate)
}

// RenameRecorderFolder moves every object under oldID's meeting
// prefix to the equivalent key under newID, used when a meeting is
// assigned a durable id after recording has already started under a
// provisional one.
func RenameRecorderFolder(ctx context.Context, store storage.Backend, oldID, newID string) error {
	oldPrefix := oldID + "/"
	newPrefix := newID + "/"

	files, err := store.ListFiles(ctx, oldPrefix)
	if err != nil {
		return fmt.Errorf("recorder: list old prefix: %w", err)
	}
	for _, f := range files {
		newKey := newPrefix + strings.TrimPrefix(f.Key, oldPrefix)
		if err := store.CopyFile(ctx, f.Key, newKey); err != nil {
			return fmt.Errorf("recorder: copy %s: %w", f.Key, err)
		}
	}
	return store.DeletePrefix(ctx, oldPrefix)
}
