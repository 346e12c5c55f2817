package session

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hashing-labs/meetscribe/pkg/errs"
	"github.com/hashing-labs/meetscribe/pkg/recorder"
	"github.com/hashing-labs/meetscribe/pkg/storage"
	"github.com/hashing-labs/meetscribe/pkg/sttbackend"
	"github.com/hashing-labs/meetscribe/pkg/transcription"
	"github.com/hashing-labs/meetscribe/pkg/vad"
)

// stubBackend always returns the same fixed transcript.
type stubBackend struct{ text string }

func (s *stubBackend) Name() string { return "stub" }
func (s *stubBackend) Transcribe(ctx context.Context, pcm []byte, opts sttbackend.TranscribeOptions) (sttbackend.Result, error) {
	return sttbackend.Result{Text: s.text, Confidence: 0.9}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		manager := transcription.New(&stubBackend{text: "hello there"}, vad.NewAmplitudeDetector(0), nil, nil)
		rec := recorder.New("meeting-test", store, 30, nil, nil)
		s := New("sess-1", "meeting-test", conn, manager, rec, nil, nil, nil)
		s.Run(r.Context())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func binaryFrame(pcm []byte, ts float64) []byte {
	buf := make([]byte, 8+len(pcm))
	binary.LittleEndian.PutUint64(buf, math.Float64bits(ts))
	copy(buf[8:], pcm)
	return buf
}

func TestSessionSendsConnectedOnOpen(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var msg Outbound
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != KindConnected {
		t.Errorf("Type = %q, want %q", msg.Type, KindConnected)
	}
}

func TestSessionRespondsToPing(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var connected Outbound
	wsjson.Read(ctx, conn, &connected)

	if err := wsjson.Write(ctx, conn, Inbound{Type: "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	var pong Outbound
	if err := wsjson.Read(ctx, conn, &pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != KindPong {
		t.Errorf("Type = %q, want %q", pong.Type, KindPong)
	}
}

func TestSessionStripsTimestampPrefixAndTranscribes(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var connected Outbound
	wsjson.Read(ctx, conn, &connected)

	// 32000 bytes/sec loud tone frames (int16 value 20000, well above
	// the amplitude detector's default RMS threshold). 30 frames of
	// 6400 bytes (0.2s each) fill the rolling buffer past its 90%
	// viable fraction and cross the 6s timeout trigger in the same
	// call, so the stub backend's transcript finalizes immediately.
	pcm := make([]byte, 6400)
	for i := 0; i+1 < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], 20000)
	}
	for i := 0; i < 30; i++ {
		frame := binaryFrame(pcm, float64(i)*0.2)
		if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
			t.Fatalf("write frame %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		readCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		var msg Outbound
		err := wsjson.Read(readCtx, conn, &msg)
		cancel()
		if err != nil {
			continue
		}
		if msg.Type == KindFinal {
			return
		}
	}
	t.Fatalf("did not observe a final segment in time")
}

func TestSessionShutsDownCleanlyOnClientClose(t *testing.T) {
	// Exercises the shutdown path (ForceFlush, worker drain, recorder
	// stop) triggered by a client-initiated close, rather than the
	// real 15s liveness timeout. A deadlock in shutdown would hang
	// this test past Go's default test timeout.
	srv := newTestServer(t)
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var connected Outbound
	if err := wsjson.Read(ctx, conn, &connected); err != nil {
		t.Fatalf("read connected: %v", err)
	}

	conn.Close(websocket.StatusNormalClosure, "client done")
}

func TestCredentialErrorMapsBackendErrorKinds(t *testing.T) {
	if _, ok := CredentialError(nil); ok {
		t.Errorf("expected ok=false for nil error")
	}
	if code, ok := CredentialError(errs.NewBackendError(errs.InvalidCredential, errors.New("bad key"))); !ok || code != "GROQ_KEY_REQUIRED" {
		t.Errorf("InvalidCredential: got (%q, %v), want (GROQ_KEY_REQUIRED, true)", code, ok)
	}
	if code, ok := CredentialError(errs.NewBackendError(errs.RateLimited, errors.New("slow down"))); !ok || code != "GROQ_RATE_LIMIT" {
		t.Errorf("RateLimited: got (%q, %v), want (GROQ_RATE_LIMIT, true)", code, ok)
	}
}
