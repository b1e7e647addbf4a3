package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/model"
)

const notificationCols = `id, notification_type, notified_to, notified_by, content, message_id, order_id,
	conversation_id, is_read, read_at, is_accepted, created_at`

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func scanNotification(s scanner, n *model.Notification) error {
	var typ string
	if err := s.Scan(&n.ID, &typ, &n.NotifiedTo, &n.NotifiedBy, &n.Content, &n.MessageID, &n.OrderID,
		&n.ConversationID, &n.IsRead, &n.ReadAt, &n.IsAccepted, &n.CreatedAt); err != nil {
		return err
	}
	n.Type = model.NotificationType(typ)
	return nil
}

func collectNotifications(rows pgx.Rows, op string) ([]model.Notification, error) {
	defer rows.Close()
	out := make([]model.Notification, 0, 8)
	for rows.Next() {
		var n model.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, fmt.Errorf("notificationRepo.%s scan: %w", op, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notificationRepo.%s rows: %w", op, err)
	}
	return out, nil
}

// CreateMany вставляет записи одним батчем в транзакции: либо все, либо ни одной.
func (r *NotificationRepository) CreateMany(ctx context.Context, ns []*model.Notification) error {
	defer logger.DeferLogDuration("notification.CreateMany", time.Now())()
	if len(ns) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("notificationRepo.CreateMany begin: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, n := range ns {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		batch.Queue(
			`INSERT INTO notifications (`+notificationCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			n.ID, string(n.Type), nonNil(n.NotifiedTo), n.NotifiedBy, n.Content, n.MessageID, n.OrderID,
			n.ConversationID, n.IsRead, n.ReadAt, n.IsAccepted, n.CreatedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("notificationRepo.CreateMany batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("notificationRepo.CreateMany commit: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListByRecipient(ctx context.Context, userID string) ([]model.Notification, error) {
	defer logger.DeferLogDuration("notification.ListByRecipient", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+notificationCols+` FROM notifications WHERE $1 = ANY(notified_to) ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("notificationRepo.ListByRecipient: %w", err)
	}
	return collectNotifications(rows, "ListByRecipient")
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	defer logger.DeferLogDuration("notification.MarkRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		 WHERE id = $1 AND $2::text = ANY(notified_to)`, id, userID, at)
	if err != nil {
		return false, fmt.Errorf("notificationRepo.MarkRead: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	defer logger.DeferLogDuration("notification.MarkAllRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = $2
		 WHERE $1::text = ANY(notified_to) AND NOT is_read`, userID, at)
	if err != nil {
		return 0, fmt.Errorf("notificationRepo.MarkAllRead: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	defer logger.DeferLogDuration("notification.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND $2::text = ANY(notified_to)`, id, userID)
	if err != nil {
		return false, fmt.Errorf("notificationRepo.Delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NotificationRepository) DeleteAll(ctx context.Context, userID string) (int64, error) {
	defer logger.DeferLogDuration("notification.DeleteAll", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE $1::text = ANY(notified_to)`, userID)
	if err != nil {
		return 0, fmt.Errorf("notificationRepo.DeleteAll: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) ResolvePending(ctx context.Context, conversationID, acceptedBy string) ([]model.Notification, error) {
	defer logger.DeferLogDuration("notification.ResolvePending", time.Now())()
	rows, err := r.pool.Query(ctx,
		`UPDATE notifications SET is_accepted = ($2::text = ANY(notified_to))
		 WHERE conversation_id = $1 AND is_accepted IS NULL
		   AND notification_type IN ('customer_request', 'chat_transfer')
		 RETURNING `+notificationCols, conversationID, acceptedBy)
	if err != nil {
		return nil, fmt.Errorf("notificationRepo.ResolvePending: %w", err)
	}
	return collectNotifications(rows, "ResolvePending")
}

func (r *NotificationRepository) Decline(ctx context.Context, id, userID string) (bool, error) {
	defer logger.DeferLogDuration("notification.Decline", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_accepted = FALSE
		 WHERE id = $1 AND $2::text = ANY(notified_to) AND is_accepted IS NULL`, id, userID)
	if err != nil {
		return false, fmt.Errorf("notificationRepo.Decline: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
