package runtime

import (
	"testing"

	"github.com/hashing-labs/meetscribe/pkg/recorder"
	"github.com/hashing-labs/meetscribe/pkg/storage"
	"github.com/hashing-labs/meetscribe/pkg/transcription"
	"github.com/hashing-labs/meetscribe/pkg/vad"
)

func newManager() *transcription.Manager {
	return transcription.New(nil, vad.NewAmplitudeDetector(0), nil, nil)
}

func TestOpenSessionCreatesOnFirstConnection(t *testing.T) {
	rt := New()
	called := 0
	m, resumed := rt.OpenSession("s1", func() *transcription.Manager {
		called++
		return newManager()
	})
	if resumed {
		t.Errorf("expected resumed=false for a brand new session")
	}
	if called != 1 || m == nil {
		t.Errorf("expected newManager to be called once, got %d calls", called)
	}
	if rt.SessionCount() != 1 {
		t.Errorf("SessionCount = %d, want 1", rt.SessionCount())
	}
}

func TestOpenSessionResumesExistingManager(t *testing.T) {
	rt := New()
	first, _ := rt.OpenSession("s1", newManager)
	second, resumed := rt.OpenSession("s1", newManager)
	if !resumed {
		t.Errorf("expected resumed=true for a second connection to the same session id")
	}
	if first != second {
		t.Errorf("expected the same manager instance to be reused")
	}
}

func TestCloseSessionOnlyDestroysAtZeroConnections(t *testing.T) {
	rt := New()
	rt.OpenSession("s1", newManager)
	rt.OpenSession("s1", newManager) // second connection, count=2

	if destroyed := rt.CloseSession("s1"); destroyed {
		t.Errorf("expected first CloseSession to keep the session alive")
	}
	if rt.SessionCount() != 1 {
		t.Errorf("SessionCount = %d, want 1 after first close", rt.SessionCount())
	}

	if destroyed := rt.CloseSession("s1"); !destroyed {
		t.Errorf("expected second CloseSession to destroy the session")
	}
	if rt.SessionCount() != 0 {
		t.Errorf("SessionCount = %d, want 0 after second close", rt.SessionCount())
	}
}

func TestCloseSessionUnknownIDIsNoop(t *testing.T) {
	rt := New()
	if rt.CloseSession("never-opened") {
		t.Errorf("expected CloseSession on an unknown id to report false")
	}
}

func TestGetOrCreateRecorderReusesExisting(t *testing.T) {
	rt := New()
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	called := 0
	factory := func() *recorder.Recorder {
		called++
		return recorder.New("meeting-1", store, 30, nil, nil)
	}

	first := rt.GetOrCreateRecorder("meeting-1", factory)
	second := rt.GetOrCreateRecorder("meeting-1", factory)
	if called != 1 {
		t.Errorf("expected factory to run once, got %d calls", called)
	}
	if first != second {
		t.Errorf("expected the same recorder instance to be reused")
	}
	if rt.RecorderCount() != 1 {
		t.Errorf("RecorderCount = %d, want 1", rt.RecorderCount())
	}
}

func TestRemoveRecorderDropsEntry(t *testing.T) {
	rt := New()
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	rt.GetOrCreateRecorder("meeting-1", func() *recorder.Recorder {
		return recorder.New("meeting-1", store, 30, nil, nil)
	})
	rt.RemoveRecorder("meeting-1")
	if rt.RecorderCount() != 0 {
		t.Errorf("RecorderCount = %d, want 0 after removal", rt.RecorderCount())
	}
}
