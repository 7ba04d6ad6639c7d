package web

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veranda-social/pushgate/internal/constants"
	"github.com/veranda-social/pushgate/internal/hub"
)

var (
	// ErrStreamClosed is returned for writes racing a disconnect.
	ErrStreamClosed = errors.New("stream connection closed")

	// ErrSlowConsumer is returned when the outbound buffer is full; the
	// registry treats it like any dead-connection write failure.
	ErrSlowConsumer = errors.New("stream consumer too slow")
)

// streamConn is the SSE-side writer. Frames are enqueued here and written to
// the socket by the single handler goroutine that owns the ResponseWriter,
// so a broadcast can never touch the response after the handler returns.
type streamConn struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newStreamConn() *streamConn {
	return &streamConn{
		send: make(chan []byte, constants.WriterBufferSize),
		done: make(chan struct{}),
	}
}

// WriteFrame implements hub.Writer. It never blocks: a closed connection or
// a full buffer fails immediately. A full buffer also closes the connection,
// so the registry's eviction and the handler's teardown stay in step.
func (c *streamConn) WriteFrame(f hub.Frame) error {
	encoded := f.Encode()
	select {
	case <-c.done:
		return ErrStreamClosed
	default:
	}
	select {
	case c.send <- encoded:
		return nil
	case <-c.done:
		return ErrStreamClosed
	default:
		c.close()
		return ErrSlowConsumer
	}
}

// close releases writers blocked on the connection. Idempotent; the peer
// abort path and the registry eviction path may race here.
func (c *streamConn) close() {
	c.once.Do(func() { close(c.done) })
}

// wsConn is the WebSocket-side writer. gorilla connections allow one writer
// at a time, so writes serialize on a mutex and carry a deadline; a peer
// that disconnects mid-write fails the write instead of blocking it.
type wsConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

// WriteFrame implements hub.Writer.
func (c *wsConn) WriteFrame(f hub.Frame) error {
	if c.closed.Load() {
		return ErrStreamClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(constants.StreamWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, f.Encode())
}

func (c *wsConn) close() {
	if c.closed.CompareAndSwap(false, true) {
		_ = c.conn.Close()
	}
}
