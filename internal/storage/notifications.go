package storage

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/veranda-social/pushgate/internal/metrics"
	"github.com/veranda-social/pushgate/internal/models"
)

// ErrNotFound is returned when a notification row does not exist or does not
// belong to the caller.
var ErrNotFound = errors.New("notification not found")

// NotificationStore runs the durable notification operations against the
// pool. It satisfies the notification service's Store interface.
type NotificationStore struct {
	db *DB
}

// NewNotificationStore wires the store to an open DB.
func NewNotificationStore(db *DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// CreateAndCount inserts the notification row and bumps the recipient's
// unread counter in one transaction, returning the stored record and the
// refreshed total. Either both writes land or neither does.
func (s *NotificationStore) CreateAndCount(ctx context.Context, n *models.Notification) (*models.Notification, int64, error) {
	stored := *n
	stored.ID = ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	stored.CreatedAt = time.Now().UTC()
	stored.ReadAt = nil

	var total int64
	err := pgx.BeginFunc(ctx, s.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO notifications (id, recipient_id, actor_id, kind, subject_id, body, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			stored.ID, stored.RecipientID, stored.ActorID, stored.Kind, stored.SubjectID, stored.Body, stored.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO unread_counts (recipient_id, count) VALUES ($1, 1)
			 ON CONFLICT (recipient_id) DO UPDATE SET count = unread_counts.count + 1
			 RETURNING count`,
			stored.RecipientID,
		).Scan(&total); err != nil {
			return fmt.Errorf("increment unread count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	metrics.NotificationsCreated.Inc()
	metrics.DBOperations.WithLabelValues("notify").Inc()
	return &stored, total, nil
}

// UnreadCount returns the recipient's current unread total. Users with no
// counter row have zero unread notifications.
func (s *NotificationStore) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.Pool.QueryRow(ctx,
		`SELECT count FROM unread_counts WHERE recipient_id = $1`, userID,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read unread count: %w", err)
	}
	return count, nil
}

// MarkRead sets read_at on one unread notification owned by userID and
// decrements the counter. Marking an already-read notification is a no-op.
func (s *NotificationStore) MarkRead(ctx context.Context, id, userID string) error {
	return pgx.BeginFunc(ctx, s.db.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE notifications SET read_at = now()
			 WHERE id = $1 AND recipient_id = $2 AND read_at IS NULL`,
			id, userID,
		)
		if err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Distinguish "absent" from "already read".
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND recipient_id = $2)`,
				id, userID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("check notification: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE unread_counts SET count = GREATEST(count - 1, 0) WHERE recipient_id = $1`,
			userID,
		); err != nil {
			return fmt.Errorf("decrement unread count: %w", err)
		}
		metrics.DBOperations.WithLabelValues("mark_read").Inc()
		return nil
	})
}

// MarkAllRead sets read_at on every unread notification for userID and
// zeroes the counter.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string) error {
	return pgx.BeginFunc(ctx, s.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE notifications SET read_at = now()
			 WHERE recipient_id = $1 AND read_at IS NULL`,
			userID,
		); err != nil {
			return fmt.Errorf("mark all read: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO unread_counts (recipient_id, count) VALUES ($1, 0)
			 ON CONFLICT (recipient_id) DO UPDATE SET count = 0`,
			userID,
		); err != nil {
			return fmt.Errorf("reset unread count: %w", err)
		}
		metrics.DBOperations.WithLabelValues("mark_all_read").Inc()
		return nil
	})
}

// List returns the recipient's notifications, newest first.
func (s *NotificationStore) List(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, recipient_id, actor_id, kind, subject_id, body, created_at, read_at
		 FROM notifications
		 WHERE recipient_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]models.Notification, 0, limit)
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorID, &n.Kind, &n.SubjectID, &n.Body, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
