// Package runtime holds the process-wide state the original system
// kept in module-level singletons: the live session table, its
// per-session connection counts, and the active-recorder table.
// Here that state lives in one value owned by the service process;
// sessions and recorders are handed a reference to it at construction
// instead of reaching for package-level globals.
package runtime

import (
	"sync"

	"github.com/hashing-labs/meetscribe/pkg/recorder"
	"github.com/hashing-labs/meetscribe/pkg/transcription"
)

type sessionEntry struct {
	manager     *transcription.Manager
	connections int
}

// Runtime is the process-wide registry of live sessions and active
// recorders. The zero value is not usable; construct with New.
type Runtime struct {
	mu        sync.Mutex
	sessions  map[string]*sessionEntry
	recorders map[string]*recorder.Recorder
}

// New constructs an empty Runtime.
func New() *Runtime {
	return &Runtime{
		sessions:  make(map[string]*sessionEntry),
		recorders: make(map[string]*recorder.Recorder),
	}
}

// OpenSession returns the manager for sessionID, creating it via
// newManager if this is the first connection to see that session id,
// and increments the connection count either way. resumed reports
// whether an existing manager was reused.
func (r *Runtime) OpenSession(sessionID string, newManager func() *transcription.Manager) (manager *transcription.Manager, resumed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[sessionID]
	if !ok {
		entry = &sessionEntry{manager: newManager()}
		r.sessions[sessionID] = entry
	}
	entry.connections++
	return entry.manager, ok
}

// CloseSession decrements sessionID's connection count and, once it
// reaches zero, removes the session from the table and reports true
// so the caller can destroy the manager.
func (r *Runtime) CloseSession(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	entry.connections--
	if entry.connections > 0 {
		return false
	}
	delete(r.sessions, sessionID)
	return true
}

// SessionCount reports how many sessions are currently registered, for
// diagnostics and metrics.
func (r *Runtime) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// GetOrCreateRecorder returns the active recorder for meetingID,
// constructing one via factory under the same lock if none exists yet.
func (r *Runtime) GetOrCreateRecorder(meetingID string, factory func() *recorder.Recorder) *recorder.Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.recorders[meetingID]
	if !ok {
		rec = factory()
		r.recorders[meetingID] = rec
	}
	return rec
}

// RemoveRecorder drops meetingID's recorder from the table once its
// session has stopped and handed off to the finalizer.
func (r *Runtime) RemoveRecorder(meetingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recorders, meetingID)
}

// RecorderCount reports how many recorders are currently active, for
// diagnostics and metrics.
func (r *Runtime) RecorderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recorders)
}
