// Package web is the HTTP boundary: the stream endpoint, the notification
// read API, and the internal ingress that creates and fans out notifications.
package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/veranda-social/pushgate/internal/errors"
	"github.com/veranda-social/pushgate/internal/hub"
	"github.com/veranda-social/pushgate/internal/limiter"
	"github.com/veranda-social/pushgate/internal/logger"
	"github.com/veranda-social/pushgate/internal/models"
	"github.com/veranda-social/pushgate/internal/notification"
)

// Options configures the handler. Limiter and Health may be nil, which
// disables throttling and the health route respectively.
type Options struct {
	Service  *notification.Service
	Registry *hub.Registry
	Limiter  *limiter.Limiter
	Health   http.Handler

	NotifyPolicy limiter.Policy
	StreamPolicy limiter.Policy

	HeartbeatInterval time.Duration
	HandshakeBurst    int
}

// Handler serves the public v1 API and the stream endpoint.
type Handler struct {
	service  *notification.Service
	registry *hub.Registry
	limiter  *limiter.Limiter
	health   http.Handler

	notifyPolicy limiter.Policy
	streamPolicy limiter.Policy

	heartbeatInterval time.Duration
	handshakes        *rate.Limiter

	log *zap.Logger
}

// NewHandler builds the handler from its wired dependencies.
func NewHandler(opts Options) *Handler {
	burst := opts.HandshakeBurst
	if burst <= 0 {
		burst = 1
	}
	return &Handler{
		service:           opts.Service,
		registry:          opts.Registry,
		limiter:           opts.Limiter,
		health:            opts.Health,
		notifyPolicy:      opts.NotifyPolicy,
		streamPolicy:      opts.StreamPolicy,
		heartbeatInterval: opts.HeartbeatInterval,
		handshakes:        rate.NewLimiter(rate.Limit(burst), burst),
		log:               logger.New("web"),
	}
}

// Routes mounts every endpoint on a fresh mux.
//
// The stream route is deliberately not wrapped by instrument: the recorder
// would hide the Hijacker a WebSocket upgrade needs, and per-request latency
// is meaningless for a connection held open for hours.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/notifications/stream",
		requireIdentity(h.rateLimit(h.streamPolicy, h.handleStream)))

	mux.HandleFunc("GET /v1/notifications",
		instrument("list", requireIdentity(h.handleList)))
	mux.HandleFunc("GET /v1/notifications/unread-count",
		instrument("unread_count", requireIdentity(h.handleUnreadCount)))
	mux.HandleFunc("PATCH /v1/notifications/{id}/read",
		instrument("mark_read", requireIdentity(h.handleMarkRead)))
	mux.HandleFunc("POST /v1/notifications/read-all",
		instrument("mark_all_read", requireIdentity(h.handleMarkAllRead)))

	// Service-to-service ingress; the platform network boundary keeps it
	// internal, the rate policy keeps a misbehaving producer in check.
	mux.HandleFunc("POST /v1/internal/notify",
		instrument("notify", h.rateLimit(h.notifyPolicy, h.handleNotify)))

	if h.health != nil {
		mux.Handle("GET /health", h.health)
	}

	return mux
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := identityFrom(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := h.service.List(r.Context(), userID, limit, offset)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.UnreadCount(r.Context(), identityFrom(r.Context()))
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.MarkRead(r.Context(), id, identityFrom(r.Context())); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkAllRead(r.Context(), identityFrom(r.Context())); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// notifyRequest is the internal ingress body.
type notifyRequest struct {
	RecipientID string `json:"recipientId"`
	ActorID     string `json:"actorId"`
	Kind        string `json:"kind"`
	SubjectID   string `json:"subjectId"`
	Body        string `json:"body"`
}

func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		apperrors.WriteHTTP(w, apperrors.ValidationError("malformed request body"))
		return
	}

	stored, err := h.service.Notify(r.Context(), &models.Notification{
		RecipientID: req.RecipientID,
		ActorID:     req.ActorID,
		Kind:        req.Kind,
		SubjectID:   req.SubjectID,
		Body:        req.Body,
	})
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("encode response", zap.Error(err))
	}
}
