package hub

import (
	"strings"
	"testing"
)

func TestFrameEncode(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{
			name:  "connected",
			frame: ConnectedFrame("u1"),
			want:  "event: connected\ndata: {\"userId\":\"u1\"}\n\n",
		},
		{
			name:  "unread count",
			frame: UnreadCountFrame(7),
			want:  "event: unread-count\ndata: {\"count\":7}\n\n",
		},
		{
			name:  "terminal error",
			frame: ErrorFrame("Too many connections"),
			want:  "event: error\ndata: {\"message\":\"Too many connections\"}\n\n",
		},
		{
			name:  "heartbeat comment",
			frame: Heartbeat(),
			want:  ": heartbeat\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(tt.frame.Encode()); got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHeartbeatIsCommentOnly(t *testing.T) {
	encoded := string(Heartbeat().Encode())
	if strings.Contains(encoded, "event:") {
		t.Fatalf("heartbeat record must not carry an event line, got %q", encoded)
	}
	if !strings.HasPrefix(encoded, ":") {
		t.Fatalf("heartbeat record must start with a comment marker, got %q", encoded)
	}
}

func TestNewFrameRejectsUnencodableBody(t *testing.T) {
	if _, err := NewFrame(EventNotification, func() {}); err == nil {
		t.Fatal("NewFrame should fail for a body JSON cannot encode")
	}
}
