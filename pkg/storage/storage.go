// Package storage abstracts durable object storage for recordings,
// chunk staging, and exported artifacts behind a single interface so
// the recorder, finalizer, and diarization service never know whether
// they're writing to a local disk or a cloud bucket.
package storage

import (
	"context"
	"io"
	"time"
)

// FileInfo describes one object returned by ListFiles.
type FileInfo struct {
	Key          string
	SizeBytes    int64
	LastModified time.Time
}

// Backend is the storage collaborator contract consumed by the
// recorder, finalizer, and diarization packages. Keys are always
// forward-slash-separated and meeting-prefixed, e.g.
// "<meeting_id>/recording.wav" or
// "<meeting_id>/pcm_chunks/chunk_00003.pcm".
type Backend interface {
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) error
	UploadFile(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	DownloadBytes(ctx context.Context, key string) ([]byte, error)
	DownloadFile(ctx context.Context, key string, w io.Writer) error
	ListFiles(ctx context.Context, prefix string) ([]FileInfo, error)
	CopyFile(ctx context.Context, srcKey, dstKey string) error
	DeleteFile(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	FileExists(ctx context.Context, key string) (bool, error)
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
