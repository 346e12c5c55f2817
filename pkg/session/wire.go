package session

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hashing-labs/meetscribe/pkg/transcription"
)

// OutboundKind tags the outbound wire message types a client must
// handle.
type OutboundKind string

const (
	KindConnected OutboundKind = "connected"
	KindPartial   OutboundKind = "partial"
	KindFinal     OutboundKind = "final"
	KindError     OutboundKind = "error"
	KindPong      OutboundKind = "pong"
)

// Outbound is the envelope sent to the client over the websocket.
// Timestamp is ISO8601/RFC3339, matching the wire contract; it is
// distinct from AudioStartTime/AudioEndTime/Duration, which are
// seconds into the session's own audio clock.
type Outbound struct {
	Type           OutboundKind                `json:"type"`
	SessionID      string                      `json:"session_id,omitempty"`
	Text           string                      `json:"text,omitempty"`
	Confidence     float64                     `json:"confidence,omitempty"`
	IsStable       bool                        `json:"is_stable,omitempty"`
	Reason         transcription.TriggerReason `json:"reason,omitempty"`
	Timestamp      string                      `json:"timestamp,omitempty"`
	AudioStartTime float64                     `json:"audio_start_time,omitempty"`
	AudioEndTime   float64                     `json:"audio_end_time,omitempty"`
	Duration       float64                     `json:"duration,omitempty"`
	OriginalText   string                      `json:"original_text,omitempty"`
	Translated     bool                        `json:"translated,omitempty"`
	Code           string                      `json:"code,omitempty"`
	Message        string                      `json:"message,omitempty"`
}

// Inbound is a parsed text control frame from the client.
type Inbound struct {
	Type string `json:"type"`
}

func isoNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func connectedMessage(sessionID string) Outbound {
	return Outbound{
		Type:      KindConnected,
		SessionID: sessionID,
		Message:   "streaming session established",
		Timestamp: isoNow(),
	}
}

func pongMessage() Outbound {
	return Outbound{Type: KindPong}
}

func errorMessage(code, message string) Outbound {
	return Outbound{Type: KindError, Code: code, Message: message, Timestamp: isoNow()}
}

// RejectWithError sends `connected` followed by a JSON `error` frame
// and closes the connection, for callers that fail to start a session
// before a Session even exists (e.g. a missing transcription
// credential). This is the same connected/error wire shape a live
// Session's own errorForwarder uses for a terminal backend error.
func RejectWithError(ctx context.Context, conn *websocket.Conn, sessionID, code, message string) {
	_ = wsjson.Write(ctx, conn, connectedMessage(sessionID))
	_ = wsjson.Write(ctx, conn, errorMessage(code, message))
	_ = conn.Close(websocket.StatusNormalClosure, code)
}

func finalMessage(seg transcription.FinalSegment) Outbound {
	return Outbound{
		Type:           KindFinal,
		Text:           seg.Text,
		Confidence:     seg.Confidence,
		Reason:         seg.Reason,
		Timestamp:      isoNow(),
		AudioStartTime: seg.AudioStartTime,
		AudioEndTime:   seg.AudioEndTime,
		Duration:       seg.Duration,
		OriginalText:   seg.OriginalText,
		Translated:     seg.Translated,
	}
}
