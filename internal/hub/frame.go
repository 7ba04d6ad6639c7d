package hub

import (
	"encoding/json"
	"fmt"
)

// Event names carried on the push channel.
const (
	EventConnected    = "connected"
	EventNotification = "notification"
	EventUnreadCount  = "unread-count"
	EventError        = "error"
)

// heartbeatComment is the comment-only record keeping intermediaries from
// closing an idle connection. Clients ignore it.
const heartbeatComment = ": heartbeat\n\n"

// Frame is one framed record on the push channel. An empty Event marks a
// comment-only keepalive.
type Frame struct {
	Event string
	Data  []byte
}

// Heartbeat returns the keepalive comment frame.
func Heartbeat() Frame {
	return Frame{}
}

// NewFrame builds an event frame with a JSON-encoded body.
func NewFrame(event string, body any) (Frame, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}

// ConnectedFrame announces a successful registration back to the client.
func ConnectedFrame(userID string) Frame {
	f, _ := NewFrame(EventConnected, map[string]string{"userId": userID})
	return f
}

// ErrorFrame is the single terminal record sent before closing a rejected
// stream.
func ErrorFrame(message string) Frame {
	f, _ := NewFrame(EventError, map[string]string{"message": message})
	return f
}

// UnreadCountFrame carries a refreshed unread total.
func UnreadCountFrame(count int64) Frame {
	f, _ := NewFrame(EventUnreadCount, map[string]int64{"count": count})
	return f
}

// Label returns the metrics label for the frame.
func (f Frame) Label() string {
	if f.Event == "" {
		return "heartbeat"
	}
	return f.Event
}

// Encode renders the two-line wire record:
//
//	event: <name>
//	data: <json>
//
// followed by a blank line, or the heartbeat comment for comment frames.
func (f Frame) Encode() []byte {
	if f.Event == "" {
		return []byte(heartbeatComment)
	}
	buf := make([]byte, 0, len(f.Event)+len(f.Data)+16)
	buf = append(buf, "event: "...)
	buf = append(buf, f.Event...)
	buf = append(buf, '\n')
	buf = append(buf, "data: "...)
	buf = append(buf, f.Data...)
	buf = append(buf, '\n', '\n')
	return buf
}
