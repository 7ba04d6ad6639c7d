package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veranda-social/pushgate/internal/hub"
	"github.com/veranda-social/pushgate/internal/limiter"
	"github.com/veranda-social/pushgate/internal/models"
	"github.com/veranda-social/pushgate/internal/notification"
	"github.com/veranda-social/pushgate/internal/storage"
)

// memStore is an in-memory notification.Store.
type memStore struct {
	mu     sync.Mutex
	items  map[string]*models.Notification
	unread map[string]int64
	seq    int
}

func newMemStore() *memStore {
	return &memStore{
		items:  make(map[string]*models.Notification),
		unread: make(map[string]int64),
	}
}

func (s *memStore) CreateAndCount(_ context.Context, n *models.Notification) (*models.Notification, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	stored := *n
	stored.ID = fmt.Sprintf("n%03d", s.seq)
	stored.CreatedAt = time.Now().UTC()
	s.items[stored.ID] = &stored
	s.unread[stored.RecipientID]++
	return &stored, s.unread[stored.RecipientID], nil
}

func (s *memStore) UnreadCount(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[userID], nil
}

func (s *memStore) MarkRead(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok || n.RecipientID != userID {
		return storage.ErrNotFound
	}
	if n.ReadAt == nil {
		now := time.Now().UTC()
		n.ReadAt = &now
		if s.unread[userID] > 0 {
			s.unread[userID]--
		}
	}
	return nil
}

func (s *memStore) MarkAllRead(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, n := range s.items {
		if n.RecipientID == userID && n.ReadAt == nil {
			n.ReadAt = &now
		}
	}
	s.unread[userID] = 0
	return nil
}

func (s *memStore) List(_ context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.items {
		if n.RecipientID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// frameSink records frames pushed through the registry.
type frameSink struct {
	mu     sync.Mutex
	frames []hub.Frame
}

func (s *frameSink) WriteFrame(f hub.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *frameSink) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.Label()
	}
	return out
}

type testEnv struct {
	server   *httptest.Server
	registry *hub.Registry
	service  *notification.Service
	store    *memStore
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()

	store := newMemStore()
	registry := hub.NewRegistry(5)
	service := notification.NewService(store, registry, nil)

	opts := Options{
		Service:           service,
		Registry:          registry,
		NotifyPolicy:      limiter.Policy{Prefix: "notify", Window: time.Minute, Max: 1000},
		StreamPolicy:      limiter.Policy{Prefix: "stream", Window: time.Minute, Max: 1000},
		HeartbeatInterval: time.Hour,
		HandshakeBurst:    100,
	}
	if mutate != nil {
		mutate(&opts)
	}

	srv := httptest.NewServer(NewHandler(opts).Routes())
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, registry: registry, service: service, store: store}
}

// openStream starts an SSE connection and returns a reader over its body.
func (e *testEnv) openStream(t *testing.T, userID string) (*bufio.Reader, func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.server.URL+"/v1/notifications/stream", nil)
	if err != nil {
		cancel()
		t.Fatalf("build stream request: %v", err)
	}
	req.Header.Set("X-User-ID", userID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		cancel()
		t.Fatalf("stream status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		cancel()
		t.Fatalf("stream content type = %q", ct)
	}

	return bufio.NewReader(resp.Body), func() {
		cancel()
		resp.Body.Close()
	}
}

// readFrame reads one wire record. A heartbeat comes back as event
// "heartbeat" with empty data.
func readFrame(t *testing.T, br *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return event, data
		case line == ": heartbeat":
			event = "heartbeat"
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		default:
			t.Fatalf("unexpected stream line %q", line)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStreamHandshake(t *testing.T) {
	env := newTestEnv(t, nil)

	br, closeStream := env.openStream(t, "u1")
	event, data := readFrame(t, br)
	if event != "connected" {
		t.Fatalf("first frame event = %q, want connected", event)
	}
	if data != `{"userId":"u1"}` {
		t.Fatalf("connected data = %q", data)
	}
	if got := env.registry.ConnectionCount("u1"); got != 1 {
		t.Fatalf("connection count = %d, want 1", got)
	}

	closeStream()
	waitFor(t, "stream deregistration", func() bool {
		return env.registry.ConnectionCount("u1") == 0
	})
}

func TestStreamReceivesNotification(t *testing.T) {
	env := newTestEnv(t, nil)

	br, closeStream := env.openStream(t, "u1")
	defer closeStream()
	readFrame(t, br)

	if _, err := env.service.Notify(context.Background(), &models.Notification{
		RecipientID: "u1", ActorID: "u2", Kind: "like", SubjectID: "post-1",
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	event, data := readFrame(t, br)
	if event != "notification" {
		t.Fatalf("event = %q, want notification", event)
	}
	var n models.Notification
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		t.Fatalf("decode notification frame: %v", err)
	}
	if n.RecipientID != "u1" || n.Kind != "like" {
		t.Fatalf("unexpected notification payload: %+v", n)
	}

	event, data = readFrame(t, br)
	if event != "unread-count" || data != `{"count":1}` {
		t.Fatalf("second frame = %q %q, want unread-count {\"count\":1}", event, data)
	}
}

func TestStreamRejectedAtCap(t *testing.T) {
	env := newTestEnv(t, nil)

	for i := 0; i < 5; i++ {
		if !env.registry.Register("u1", &frameSink{}) {
			t.Fatalf("seed connection %d rejected", i)
		}
	}

	br, closeStream := env.openStream(t, "u1")
	defer closeStream()

	event, data := readFrame(t, br)
	if event != "error" {
		t.Fatalf("event = %q, want error", event)
	}
	if data != `{"message":"Too many connections"}` {
		t.Fatalf("error data = %q", data)
	}
	if got := env.registry.ConnectionCount("u1"); got != 5 {
		t.Fatalf("connection count = %d, want 5 (rejection must not register)", got)
	}
}

func TestStreamHeartbeat(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.HeartbeatInterval = 30 * time.Millisecond
	})

	br, closeStream := env.openStream(t, "u1")
	defer closeStream()
	readFrame(t, br)

	event, _ := readFrame(t, br)
	if event != "heartbeat" {
		t.Fatalf("event = %q, want heartbeat", event)
	}
}

func TestStreamRequiresIdentity(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.server.URL + "/v1/notifications/stream")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestWebSocketStream(t *testing.T) {
	env := newTestEnv(t, nil)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/notifications/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-User-ID": {"u1"}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read connected frame: %v", err)
	}
	if want := string(hub.ConnectedFrame("u1").Encode()); string(msg) != want {
		t.Fatalf("connected frame = %q, want %q", msg, want)
	}

	if _, err := env.service.Notify(context.Background(), &models.Notification{
		RecipientID: "u1", ActorID: "u2", Kind: "follow",
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read notification frame: %v", err)
	}
	if !bytes.HasPrefix(msg, []byte("event: notification\n")) {
		t.Fatalf("frame = %q, want notification event", msg)
	}
}

func TestUnreadCountEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	for i := 0; i < 3; i++ {
		if _, err := env.service.Notify(context.Background(), &models.Notification{
			RecipientID: "u1", ActorID: "u2", Kind: "comment",
		}); err != nil {
			t.Fatalf("notify %d: %v", i, err)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/v1/notifications/unread-count", nil)
	req.Header.Set("X-User-ID", "u1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["count"] != 3 {
		t.Fatalf("count = %d, want 3", body["count"])
	}
}

func TestMarkReadEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	stored, err := env.service.Notify(context.Background(), &models.Notification{
		RecipientID: "u1", ActorID: "u2", Kind: "mention",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	do := func(method, path string) *http.Response {
		t.Helper()
		req, _ := http.NewRequest(method, env.server.URL+path, nil)
		req.Header.Set("X-User-ID", "u1")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		resp.Body.Close()
		return resp
	}

	if resp := do(http.MethodPatch, "/v1/notifications/"+stored.ID+"/read"); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mark read status = %d, want 204", resp.StatusCode)
	}
	if count, _ := env.store.UnreadCount(context.Background(), "u1"); count != 0 {
		t.Fatalf("unread after mark read = %d, want 0", count)
	}

	if resp := do(http.MethodPatch, "/v1/notifications/n999/read"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want 404", resp.StatusCode)
	}

	if resp := do(http.MethodPost, "/v1/notifications/read-all"); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("read-all status = %d, want 204", resp.StatusCode)
	}
}

func TestListEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, kind := range []string{"like", "comment"} {
		if _, err := env.service.Notify(context.Background(), &models.Notification{
			RecipientID: "u1", ActorID: "u2", Kind: kind,
		}); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/v1/notifications?limit=1", nil)
	req.Header.Set("X-User-ID", "u1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Notifications []models.Notification `json:"notifications"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Notifications) != 1 {
		t.Fatalf("list returned %d items, want 1", len(body.Notifications))
	}
	if body.Notifications[0].Kind != "comment" {
		t.Fatalf("newest-first order broken, got kind %q", body.Notifications[0].Kind)
	}
}

func TestNotifyEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	sink := &frameSink{}
	if !env.registry.Register("u1", sink) {
		t.Fatal("seed connection rejected")
	}

	body := `{"recipientId":"u1","actorId":"u2","kind":"like","subjectId":"post-9"}`
	resp, err := http.Post(env.server.URL+"/v1/internal/notify", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var n models.Notification
	if err := json.NewDecoder(resp.Body).Decode(&n); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.ID == "" || n.RecipientID != "u1" {
		t.Fatalf("unexpected response body: %+v", n)
	}

	want := []string{"notification", "unread-count"}
	got := sink.events()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("pushed events = %v, want %v", got, want)
	}
}

func TestNotifyEndpointRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"recipientId":`},
		{"missing recipient", `{"kind":"like"}`},
		{"unknown kind", `{"recipientId":"u1","kind":"poke"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(env.server.URL+"/v1/internal/notify", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestNotifyEndpointRateLimited(t *testing.T) {
	fallback := limiter.NewFallbackStore()
	t.Cleanup(fallback.Stop)

	env := newTestEnv(t, func(o *Options) {
		o.Limiter = limiter.New(nil, fallback)
		o.NotifyPolicy = limiter.Policy{Prefix: "notify", Window: time.Minute, Max: 1}
	})

	body := `{"recipientId":"u1","actorId":"u2","kind":"like"}`
	first, err := http.Post(env.server.URL+"/v1/internal/notify", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first status = %d, want 201", first.StatusCode)
	}

	second, err := http.Post(env.server.URL+"/v1/internal/notify", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.StatusCode)
	}
	if second.Header.Get("Retry-After") == "" {
		t.Fatal("429 response missing Retry-After")
	}

	// The denied request must leave no durable trace.
	if count, _ := env.store.UnreadCount(context.Background(), "u1"); count != 1 {
		t.Fatalf("unread after denied request = %d, want 1", count)
	}
}

func TestClientIdentity(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr only", "198.51.100.7:52100", nil, "198.51.100.7"},
		{"forwarded chain", "10.0.0.1:1000", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"real ip", "10.0.0.1:1000", map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
		{"ipv6 mapped", "[::ffff:198.51.100.7]:443", nil, "198.51.100.7"},
		{"nothing usable", "", nil, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIdentity(req); got != tc.want {
				t.Fatalf("ClientIdentity = %q, want %q", got, tc.want)
			}
		})
	}
}
