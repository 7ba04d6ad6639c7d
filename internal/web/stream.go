package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/veranda-social/pushgate/internal/hub"
	"github.com/veranda-social/pushgate/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Identity is established upstream; the stream carries no sensitive
	// origin-scoped state beyond what the API already exposes.
	CheckOrigin: func(r *http.Request) bool { return true },

	HandshakeTimeout: 10 * time.Second,
}

// handleStream serves the live push channel. The same endpoint speaks SSE by
// default and the identical frame stream over WebSocket when the client asks
// for an upgrade.
//
// Connection lifecycle: register with the hub (rejected at the per-user cap
// with a single terminal error frame), emit one connected frame, then hold
// the connection open emitting heartbeats until the peer disconnects or a
// write fails.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	userID := identityFrom(r.Context())

	if !h.handshakes.Allow() {
		http.Error(w, "server busy, retry shortly", http.StatusServiceUnavailable)
		return
	}

	if websocket.IsWebSocketUpgrade(r) {
		h.streamWebSocket(w, r, userID)
		return
	}
	h.streamSSE(w, r, userID)
}

func (h *Handler) streamSSE(w http.ResponseWriter, r *http.Request, userID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	conn := newStreamConn()
	if !h.register(w, userID, conn, func(frame []byte) {
		_, _ = w.Write(frame)
		flusher.Flush()
	}) {
		return
	}
	defer h.teardown(userID, conn, conn.close)

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case frame := <-conn.send:
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if err := h.registry.Heartbeat(userID, conn); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		case <-conn.done:
			// Evicted by the registry after a failed write.
			return
		}
	}
}

func (h *Handler) streamWebSocket(w http.ResponseWriter, r *http.Request, userID string) {
	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newWSConn(socket)
	if !h.registry.Register(userID, conn) {
		_ = conn.WriteFrame(hub.ErrorFrame("Too many connections"))
		conn.close()
		return
	}
	metrics.IncrementActiveStreams()
	defer h.teardown(userID, conn, conn.close)

	if err := conn.WriteFrame(hub.ConnectedFrame(userID)); err != nil {
		return
	}

	// Read pump: the client sends nothing meaningful, but reading is how
	// gorilla surfaces the peer's close.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		socket.SetReadLimit(512)
		for {
			if _, _, err := socket.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-heartbeat.C:
			if err := h.registry.Heartbeat(userID, conn); err != nil {
				return
			}
		case <-readDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// register performs the cap-checked hub registration for the SSE path and
// emits either the terminal error frame or the initial connected frame via
// writeDirect (the handler goroutine owns the socket at this point).
func (h *Handler) register(w http.ResponseWriter, userID string, conn *streamConn, writeDirect func([]byte)) bool {
	if !h.registry.Register(userID, conn) {
		w.WriteHeader(http.StatusOK)
		writeDirect(hub.ErrorFrame("Too many connections").Encode())
		return false
	}
	metrics.IncrementActiveStreams()
	writeDirect(hub.ConnectedFrame(userID).Encode())
	metrics.IncrementFramesPushed(hub.EventConnected)
	return true
}

// teardown is the single CLOSED transition: stop feeding the writer,
// deregister, update gauges. Unregister is idempotent, so racing triggers
// (peer abort versus registry eviction) are safe.
func (h *Handler) teardown(userID string, conn hub.Writer, closeConn func()) {
	closeConn()
	h.registry.Unregister(userID, conn)
	metrics.DecrementActiveStreams()
	h.log.Debug("stream closed", zap.String("user_id", userID))
}
