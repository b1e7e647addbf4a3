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

const conversationCols = `id, recipients, message_ids, last_message_id, unread, muted_users, typing_users, status, created_at, updated_at`

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func scanConversation(s scanner, c *model.Conversation) error {
	var status string
	if err := s.Scan(&c.ID, &c.Recipients, &c.MessageIDs, &c.LastMessageID, &c.Unread,
		&c.MutedUsers, &c.TypingUsers, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return err
	}
	c.Status = model.ConversationStatus(status)
	if c.Unread == nil {
		c.Unread = map[string]int{}
	}
	return nil
}

func (r *ConversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	defer logger.DeferLogDuration("conversation.Create", time.Now())()
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt
	if c.Status == "" {
		c.Status = model.ConversationActive
	}
	if c.Unread == nil {
		c.Unread = map[string]int{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversations (`+conversationCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Recipients, nonNil(c.MessageIDs), c.LastMessageID, c.Unread,
		nonNil(c.MutedUsers), nonNil(c.TypingUsers), string(c.Status), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.Create: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.GetByID", time.Now())()
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx, `SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversationRepo.GetByID: %w", err)
	}
	return c, nil
}

func (r *ConversationRepository) list(ctx context.Context, op, query string, args ...any) ([]model.Conversation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.%s: %w", op, err)
	}
	defer rows.Close()
	out := make([]model.Conversation, 0, 8)
	for rows.Next() {
		var c model.Conversation
		if err := scanConversation(rows, &c); err != nil {
			return nil, fmt.Errorf("conversationRepo.%s scan: %w", op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversationRepo.%s rows: %w", op, err)
	}
	return out, nil
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.ListByParticipant", time.Now())()
	return r.list(ctx, "ListByParticipant",
		`SELECT `+conversationCols+` FROM conversations
		 WHERE $1 = ANY(recipients) AND status <> 'deleted'
		 ORDER BY updated_at DESC, id`, userID)
}

func (r *ConversationRepository) ListAll(ctx context.Context) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.ListAll", time.Now())()
	return r.list(ctx, "ListAll",
		`SELECT `+conversationCols+` FROM conversations WHERE status <> 'deleted' ORDER BY updated_at DESC, id`)
}

// ClaimSlot: индексы в Postgres начинаются с 1. Строка обновится, только если слот всё ещё NULL.
func (r *ConversationRepository) ClaimSlot(ctx context.Context, id string, slot int, userID string) (bool, error) {
	defer logger.DeferLogDuration("conversation.ClaimSlot", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET recipients[$2::int] = $3::text, updated_at = NOW()
		 WHERE id = $1 AND $2::int <= cardinality(recipients) AND recipients[$2::int] IS NULL`,
		id, slot+1, userID,
	)
	if err != nil {
		return false, fmt.Errorf("conversationRepo.ClaimSlot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOr(ctx, r.pool, "conversations", id)
	}
	return true, nil
}

func (r *ConversationRepository) AppendRecipient(ctx context.Context, id, userID string) (bool, error) {
	defer logger.DeferLogDuration("conversation.AppendRecipient", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET recipients = array_append(recipients, $2::text), updated_at = NOW()
		 WHERE id = $1 AND cardinality(recipients) < $3 AND array_position(recipients, $2::text) IS NULL`,
		id, userID, model.MaxRecipients,
	)
	if err != nil {
		return false, fmt.Errorf("conversationRepo.AppendRecipient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOr(ctx, r.pool, "conversations", id)
	}
	return true, nil
}

func (r *ConversationRepository) ReleaseSlot(ctx context.Context, id, userID string) (bool, error) {
	defer logger.DeferLogDuration("conversation.ReleaseSlot", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET recipients = array_replace(recipients, $2::text, NULL::text),
		        unread = unread - $2::text, typing_users = array_remove(typing_users, $2::text), updated_at = NOW()
		 WHERE id = $1 AND $2::text = ANY(recipients)`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("conversationRepo.ReleaseSlot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOr(ctx, r.pool, "conversations", id)
	}
	return true, nil
}

// RecordMessage одним UPDATE дописывает сообщение и пересобирает unread:
// каждый получатель получает прежнее значение +1, остальные ключи исчезают.
func (r *ConversationRepository) RecordMessage(ctx context.Context, id, messageID string, receivers []string) error {
	defer logger.DeferLogDuration("conversation.RecordMessage", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations c SET
		    message_ids = array_append(c.message_ids, $2::text),
		    last_message_id = $2::text,
		    unread = COALESCE((SELECT jsonb_object_agg(rcv, COALESCE((c.unread->>rcv)::int, 0) + 1)
		                       FROM unnest($3::text[]) AS rcv), '{}'::jsonb),
		    updated_at = NOW()
		 WHERE c.id = $1`,
		id, messageID, nonNil(receivers),
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.RecordMessage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("conversationRepo.%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) ClearUnread(ctx context.Context, id, userID string) error {
	defer logger.DeferLogDuration("conversation.ClearUnread", time.Now())()
	return r.exec(ctx, "ClearUnread", `UPDATE conversations SET unread = unread - $2::text WHERE id = $1`, id, userID)
}

func (r *ConversationRepository) SetMuted(ctx context.Context, id, userID string, muted bool) error {
	defer logger.DeferLogDuration("conversation.SetMuted", time.Now())()
	return r.exec(ctx, "SetMuted", `UPDATE conversations SET muted_users = `+toggleSet("muted_users")+` WHERE id = $1`, id, userID, muted)
}

func (r *ConversationRepository) SetTyping(ctx context.Context, id, userID string, typing bool) error {
	defer logger.DeferLogDuration("conversation.SetTyping", time.Now())()
	return r.exec(ctx, "SetTyping", `UPDATE conversations SET typing_users = `+toggleSet("typing_users")+` WHERE id = $1`, id, userID, typing)
}

func (r *ConversationRepository) SetStatus(ctx context.Context, id string, status model.ConversationStatus) error {
	defer logger.DeferLogDuration("conversation.SetStatus", time.Now())()
	return r.exec(ctx, "SetStatus",
		`UPDATE conversations SET status = $2,
		        updated_at = CASE WHEN status = $2 THEN updated_at ELSE NOW() END
		 WHERE id = $1`, id, string(status))
}

// toggleSet строит выражение, которое добавляет ($3 = true) или убирает $2 из массива без дублей.
func toggleSet(col string) string {
	return `CASE WHEN $3::bool THEN
	            CASE WHEN $2::text = ANY(` + col + `) THEN ` + col + ` ELSE array_append(` + col + `, $2::text) END
	        ELSE array_remove(` + col + `, $2::text) END`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
