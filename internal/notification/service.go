// Package notification creates notification records, keeps the unread
// counter, and fans new events out to live connections. Durable writes come
// first; the live push is best-effort and only ever reflects durable state.
package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/veranda-social/pushgate/internal/errors"
	"github.com/veranda-social/pushgate/internal/hub"
	"github.com/veranda-social/pushgate/internal/logger"
	"github.com/veranda-social/pushgate/internal/models"
	"github.com/veranda-social/pushgate/internal/storage"
	"github.com/veranda-social/pushgate/internal/workers"
)

// Store is the durable side of the service.
type Store interface {
	// CreateAndCount persists the notification and increments the
	// recipient's unread counter atomically, returning the stored record
	// and the refreshed total.
	CreateAndCount(ctx context.Context, n *models.Notification) (*models.Notification, int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
	List(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error)
}

// Service wires the store to the connection registry.
type Service struct {
	store    Store
	registry *hub.Registry
	pool     *workers.Pool

	log *zap.Logger
}

// NewService builds the service. The worker pool may be nil, in which case
// pushes run synchronously (used by tests).
func NewService(store Store, registry *hub.Registry, pool *workers.Pool) *Service {
	return &Service{
		store:    store,
		registry: registry,
		pool:     pool,
		log:      logger.New("notification"),
	}
}

// Notify persists the event, increments the recipient's unread counter, and
// pushes a notification frame plus the refreshed unread-count frame to every
// live connection of the recipient. Persistence failures abort the call with
// no push attempted; push failures never surface, the durable write already
// succeeded and the count stays fetchable.
func (s *Service) Notify(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if n.RecipientID == "" {
		return nil, apperrors.ValidationError("recipientId is required")
	}
	if !models.ValidKind(n.Kind) {
		return nil, apperrors.ValidationError(fmt.Sprintf("unknown notification kind %q", n.Kind))
	}

	stored, total, err := s.store.CreateAndCount(ctx, n)
	if err != nil {
		return nil, apperrors.PersistenceError("create", err)
	}

	notifFrame, err := hub.NewFrame(hub.EventNotification, stored)
	if err != nil {
		// The write landed; an unencodable frame only costs the push.
		s.log.Error("encode notification frame", zap.String("id", stored.ID), zap.Error(err))
		return stored, nil
	}
	countFrame := hub.UnreadCountFrame(total)

	recipient := stored.RecipientID
	push := func() {
		// Both frames in order: the count a client sees never precedes
		// its own notification's durable write.
		s.registry.Broadcast(recipient, notifFrame)
		s.registry.Broadcast(recipient, countFrame)
	}
	if s.pool != nil {
		if !s.pool.Submit(push) {
			s.log.Warn("fan-out queue full, push dropped",
				zap.String("recipient_id", recipient),
				zap.String("id", stored.ID))
		}
	} else {
		push()
	}

	return stored, nil
}

// UnreadCount is a read-through to the store; the source of truth whenever no
// live push can be assumed to have arrived.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, apperrors.PersistenceError("unread count", err)
	}
	return count, nil
}

// MarkRead marks one notification read. Durable-only; the live registry is
// never touched.
func (s *Service) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.store.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFoundError(id)
		}
		return apperrors.PersistenceError("mark read", err)
	}
	return nil
}

// MarkAllRead marks every notification for userID read. Durable-only.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.store.MarkAllRead(ctx, userID); err != nil {
		return apperrors.PersistenceError("mark all read", err)
	}
	return nil
}

// List returns the recipient's notification history, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.store.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.PersistenceError("list", err)
	}
	return items, nil
}
