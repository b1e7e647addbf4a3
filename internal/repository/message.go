package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/model"
)

const messageCols = `id, sender_id, receiver_ids, text, attachments, conversation_id, group_id, order_snapshot,
	is_read, read_by, delivered_at, read_at, is_deleted, created_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s scanner, m *model.Message) error {
	return s.Scan(&m.ID, &m.SenderID, &m.ReceiverIDs, &m.Text, &m.Attachments, &m.ConversationID, &m.GroupID,
		&m.Order, &m.IsRead, &m.ReadBy, &m.DeliveredAt, &m.ReadAt, &m.IsDeleted, &m.CreatedAt)
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("message.Create", time.Now())()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (`+messageCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		m.ID, m.SenderID, nonNil(m.ReceiverIDs), m.Text, nonNil(m.Attachments), m.ConversationID, m.GroupID,
		m.Order, m.IsRead, nonNil(m.ReadBy), m.DeliveredAt, m.ReadAt, m.IsDeleted, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("messageRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("message.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("messageRepo.GetByID: %w", err)
	}
	return m, nil
}

func (r *MessageRepository) ListByThread(ctx context.Context, threadID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("message.ListByThread", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE conversation_id = $1 OR group_id = $1
		 ORDER BY created_at, id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListByThread query: %w", err)
	}
	defer rows.Close()
	msgs := make([]model.Message, 0, 32)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("messageRepo.ListByThread scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messageRepo.ListByThread rows: %w", err)
	}
	return msgs, nil
}

// MarkThreadRead отмечает прочитанными все неудалённые сообщения треда, адресованные userID.
func (r *MessageRepository) MarkThreadRead(ctx context.Context, threadID, userID string, at time.Time) (int64, error) {
	defer logger.DeferLogDuration("message.MarkThreadRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET is_read = TRUE, read_at = $3, read_by = array_append(read_by, $2::text)
		 WHERE (conversation_id = $1 OR group_id = $1) AND NOT is_deleted
		   AND $2::text = ANY(receiver_ids) AND NOT ($2::text = ANY(read_by))`,
		threadID, userID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("messageRepo.MarkThreadRead: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) (*model.Message, error) {
	defer logger.DeferLogDuration("message.MarkRead", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx,
		`UPDATE messages SET is_read = TRUE, read_at = $3, read_by = array_append(read_by, $2::text)
		 WHERE id = $1 AND NOT is_deleted AND NOT ($2::text = ANY(read_by))
		 RETURNING `+messageCols,
		id, userID, at,
	)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// уже прочитано или удалено: возвращаем как есть
			return r.GetByID(ctx, id)
		}
		return nil, fmt.Errorf("messageRepo.MarkRead: %w", err)
	}
	return m, nil
}

func (r *MessageRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	defer logger.DeferLogDuration("message.SoftDelete", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET is_deleted = TRUE, text = $2, attachments = '{}' WHERE id = $1 AND NOT is_deleted`,
		id, model.DeletedMessageText,
	)
	if err != nil {
		return false, fmt.Errorf("messageRepo.SoftDelete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOr(ctx, r.pool, "messages", id)
	}
	return true, nil
}
