// Package session implements the server side of one streaming
// transcription connection: a receiver task that reads frames off the
// socket, a worker task that drains them into the transcription
// manager, and a liveness monitor that closes idle connections — the
// same three-task split the spec calls for, adapted from the
// client-side read/write-loop shape this codebase already uses for
// outbound streaming STT connections.
package session

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/hashing-labs/meetscribe/pkg/errs"
	"github.com/hashing-labs/meetscribe/pkg/observability"
	"github.com/hashing-labs/meetscribe/pkg/recorder"
	"github.com/hashing-labs/meetscribe/pkg/transcription"
)

const (
	livenessTimeout = 15 * time.Second
	livenessTick    = time.Second
	frameQueueDepth = 160 // ≈5s of 32ms frames at the manager's own pacing
	workerDrainWait = 5 * time.Second
)

// frame is one inbound binary audio frame with its optional
// client-supplied timestamp, or the queue-terminator sentinel.
type frame struct {
	pcm             []byte
	clientTimestamp float64 // negative when absent
	terminator      bool
}

// PersistFunc durably stores a flushed-on-shutdown final segment for
// meetingID; failures are logged and swallowed per the shutdown
// failure semantics below.
type PersistFunc func(ctx context.Context, meetingID string, seg transcription.FinalSegment) error

// FinalizeFunc is dispatched as a detached task once a session's
// recorder has stopped.
type FinalizeFunc func(meetingID string)

// Session is one live streaming-audio connection: exactly one receiver
// task, one worker task, and one liveness monitor, all cancelled and
// awaited on shutdown.
type Session struct {
	id        string
	meetingID string

	conn    *websocket.Conn
	manager *transcription.Manager
	rec     *recorder.Recorder
	log     observability.Logger

	persist  PersistFunc
	finalize FinalizeFunc

	queue chan frame
	fwWg  sync.WaitGroup

	lastLivenessMu sync.Mutex
	lastLiveness   time.Time
}

// New constructs a Session bound to an accepted websocket connection.
func New(id, meetingID string, conn *websocket.Conn, manager *transcription.Manager, rec *recorder.Recorder, persist PersistFunc, finalize FinalizeFunc, log observability.Logger) *Session {
	if log == nil {
		log = observability.NoOpLogger{}
	}
	return &Session{
		id:           id,
		meetingID:    meetingID,
		conn:         conn,
		manager:      manager,
		rec:          rec,
		log:          log,
		persist:      persist,
		finalize:     finalize,
		queue:        make(chan frame, frameQueueDepth),
		lastLiveness: time.Now(),
	}
}

// Run drives the session to completion: sends `connected`, starts the
// receiver/worker/liveness tasks under one errgroup.Group, and blocks
// until the connection closes or ctx is cancelled, then runs the
// shutdown sequence. The two channel forwarders are relays rather than
// supervised tasks in their own right, so they're tracked separately
// with a plain WaitGroup.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := wsjson.Write(ctx, s.conn, connectedMessage(s.id)); err != nil {
		return err
	}

	if _, err := s.rec.Start(ctx); err != nil {
		s.log.Warn("recorder start failed", "session_id", s.id, "error", err.Error())
	}

	var g errgroup.Group

	var recvErr error
	recvDone := make(chan struct{})
	g.Go(func() error {
		recvErr = s.receiveLoop(ctx)
		close(recvDone)
		return recvErr
	})

	livenessCtx, stopLiveness := context.WithCancel(ctx)
	g.Go(func() error {
		s.livenessMonitor(livenessCtx, cancel)
		return nil
	})

	g.Go(func() error {
		s.workerLoop(ctx)
		return nil
	})

	s.fwWg.Add(2)
	go s.finalForwarder(ctx)
	go s.errorForwarder(ctx, cancel)

	<-recvDone

	// Step 1: cancel the liveness monitor (and, transitively via ctx,
	// the two forwarders — they must stop before ForceFlush below or
	// a forwarded segment could race the explicit emit there).
	stopLiveness()
	cancel()
	s.fwWg.Wait()

	s.shutdown(context.Background(), &g)
	return recvErr
}

// receiveLoop is the single receiver task: it owns the only Read call
// on the connection and is the only writer to s.queue.
func (s *Session) receiveLoop(ctx context.Context) error {
	for {
		msgType, data, err := s.conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		s.touchLiveness()

		switch msgType {
		case websocket.MessageBinary:
			f := parseFrame(data)
			select {
			case s.queue <- f:
			case <-ctx.Done():
				return nil
			}
		case websocket.MessageText:
			var in Inbound
			if err := json.Unmarshal(data, &in); err == nil && in.Type == "ping" {
				_ = wsjson.Write(ctx, s.conn, pongMessage())
			}
		}
	}
}

// parseFrame strips an optional 8-byte little-endian double client
// timestamp prefix from a binary frame.
func parseFrame(data []byte) frame {
	if len(data) >= 8 {
		bits := binary.LittleEndian.Uint64(data[:8])
		ts := math.Float64frombits(bits)
		if ts == ts && ts >= 0 && ts < 1e7 { // reject NaN and implausible values
			return frame{pcm: data[8:], clientTimestamp: ts}
		}
	}
	return frame{pcm: data, clientTimestamp: -1}
}

// workerLoop is the single worker task: it drains s.queue and invokes
// the manager and recorder in causal order. It exits only on the
// terminator sentinel shutdown enqueues, not on ctx cancellation —
// frames already queued when the connection closes still get
// processed so no audio between the last frame and the terminator is
// silently dropped.
func (s *Session) workerLoop(ctx context.Context) {
	for f := range s.queue {
		if f.terminator {
			return
		}
		s.rec.AddChunk(ctx, f.pcm)
		s.manager.ProcessFrame(ctx, f.pcm, f.clientTimestamp)
	}
}

// finalForwarder relays the manager's Final channel onto the wire. The
// manager never closes its channels, so this loop exits on ctx
// cancellation rather than channel closure.
func (s *Session) finalForwarder(ctx context.Context) {
	defer s.fwWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case seg := <-s.manager.Final():
			msg := finalMessage(seg)
			if err := wsjson.Write(ctx, s.conn, msg); err != nil {
				return
			}
		}
	}
}

// errorForwarder relays the manager's Errors channel as wire error
// frames. A rate-limit error keeps the session open; a missing-
// credential error is terminal and triggers the shutdown sequence via
// closeSession, mirroring the liveness monitor's own use of cancel.
func (s *Session) errorForwarder(ctx context.Context, closeSession context.CancelFunc) {
	defer s.fwWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.manager.Errors():
			code := "GROQ_RATE_LIMIT"
			if ev.Kind == transcription.ErrorGroqKeyRequired {
				code = "GROQ_KEY_REQUIRED"
			}
			_ = wsjson.Write(ctx, s.conn, errorMessage(code, ev.Message))
			if ev.Kind == transcription.ErrorGroqKeyRequired {
				s.log.Warn("missing transcription credential, closing session", "session_id", s.id)
				closeSession()
				return
			}
		}
	}
}

func (s *Session) livenessMonitor(ctx context.Context, onTimeout context.CancelFunc) {
	ticker := time.NewTicker(livenessTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.lastLivenessMu.Lock()
			idle := time.Since(s.lastLiveness)
			s.lastLivenessMu.Unlock()
			if idle > livenessTimeout {
				s.log.Warn("session liveness timeout, closing", "session_id", s.id)
				onTimeout()
				return
			}
		}
	}
}

func (s *Session) touchLiveness() {
	s.lastLivenessMu.Lock()
	s.lastLiveness = time.Now()
	s.lastLivenessMu.Unlock()
}

// shutdown implements the 5-step shutdown ordering (step 1, cancelling
// the liveness monitor, already happened by the time this runs):
// force-flush and persist, drain the worker, stop the recorder and
// hand off to the finalizer, then let the caller retire the session
// from the connection table. g is the errgroup supervising the worker
// and liveness-monitor tasks (the receiver already exited); its Wait
// is how the worker's drain is observed, bounded by workerDrainWait
// since a stalled backend call must not hang shutdown forever.
func (s *Session) shutdown(ctx context.Context, g *errgroup.Group) {
	if seg, ok := s.manager.ForceFlush(ctx); ok {
		if err := wsjson.Write(ctx, s.conn, finalMessage(seg)); err != nil {
			s.log.Warn("failed to deliver flush segment to client", "session_id", s.id, "error", err.Error())
		}
		if s.persist != nil {
			if err := s.persist(ctx, s.meetingID, seg); err != nil {
				s.log.Warn("failed to durably persist flush segment, client already saw it", "session_id", s.id, "error", err.Error())
			}
		}
	}

	s.queue <- frame{terminator: true}

	drained := make(chan error, 1)
	go func() { drained <- g.Wait() }()
	select {
	case err := <-drained:
		if err != nil {
			s.log.Warn("session tasks exited with error", "session_id", s.id, "error", err.Error())
		}
	case <-time.After(workerDrainWait):
		s.log.Warn("worker did not drain within timeout", "session_id", s.id)
	}
	s.manager.Wait()

	if _, err := s.rec.Stop(ctx); err != nil {
		s.log.Warn("recorder stop failed", "session_id", s.id, "error", err.Error())
	}
	if s.finalize != nil {
		go s.finalize(s.meetingID)
	}

	s.conn.Close(websocket.StatusNormalClosure, "session closed")
}

// CredentialError maps a backend error to the wire error code a client
// must recognize before a session can even start.
func CredentialError(err error) (code string, ok bool) {
	be, match := errs.AsBackendError(err)
	if !match {
		return "", false
	}
	switch be.Kind {
	case errs.InvalidCredential:
		return "GROQ_KEY_REQUIRED", true
	case errs.RateLimited:
		return "GROQ_RATE_LIMIT", true
	default:
		return "", false
	}
}
