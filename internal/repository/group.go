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

const groupCols = `id, title, description, image, admin_id, members, message_ids, last_message_id, unread, muted_members, typing_users, created_at, updated_at`

type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

func scanGroup(s scanner, g *model.GroupConversation) error {
	if err := s.Scan(&g.ID, &g.Title, &g.Description, &g.Image, &g.AdminID, &g.Members, &g.MessageIDs,
		&g.LastMessageID, &g.Unread, &g.MutedMembers, &g.TypingUsers, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return err
	}
	if g.Unread == nil {
		g.Unread = map[string]int{}
	}
	return nil
}

func (r *GroupRepository) Create(ctx context.Context, g *model.GroupConversation) error {
	defer logger.DeferLogDuration("group.Create", time.Now())()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	g.UpdatedAt = g.CreatedAt
	if g.Unread == nil {
		g.Unread = map[string]int{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO group_conversations (`+groupCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		g.ID, g.Title, g.Description, g.Image, g.AdminID, nonNil(g.Members), nonNil(g.MessageIDs),
		g.LastMessageID, g.Unread, nonNil(g.MutedMembers), nonNil(g.TypingUsers), g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.Create: %w", err)
	}
	return nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*model.GroupConversation, error) {
	defer logger.DeferLogDuration("group.GetByID", time.Now())()
	g := &model.GroupConversation{}
	row := r.pool.QueryRow(ctx, `SELECT `+groupCols+` FROM group_conversations WHERE id = $1`, id)
	if err := scanGroup(row, g); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("groupRepo.GetByID: %w", err)
	}
	return g, nil
}

func (r *GroupRepository) ListByMember(ctx context.Context, userID string) ([]model.GroupConversation, error) {
	defer logger.DeferLogDuration("group.ListByMember", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+groupCols+` FROM group_conversations WHERE $1 = ANY(members) ORDER BY updated_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.ListByMember: %w", err)
	}
	defer rows.Close()
	out := make([]model.GroupConversation, 0, 4)
	for rows.Next() {
		var g model.GroupConversation
		if err := scanGroup(rows, &g); err != nil {
			return nil, fmt.Errorf("groupRepo.ListByMember scan: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.ListByMember rows: %w", err)
	}
	return out, nil
}

func (r *GroupRepository) AddMember(ctx context.Context, id, userID string) (bool, error) {
	defer logger.DeferLogDuration("group.AddMember", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE group_conversations SET members = array_append(members, $2::text), updated_at = NOW()
		 WHERE id = $1 AND NOT ($2::text = ANY(members))`, id, userID)
	if err != nil {
		return false, fmt.Errorf("groupRepo.AddMember: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOr(ctx, r.pool, "group_conversations", id)
	}
	return true, nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, id, userID string) (bool, error) {
	defer logger.DeferLogDuration("group.RemoveMember", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE group_conversations SET members = array_remove(members, $2::text),
		        muted_members = array_remove(muted_members, $2::text),
		        typing_users = array_remove(typing_users, $2::text),
		        unread = unread - $2::text, updated_at = NOW()
		 WHERE id = $1 AND $2::text = ANY(members)`, id, userID)
	if err != nil {
		return false, fmt.Errorf("groupRepo.RemoveMember: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOr(ctx, r.pool, "group_conversations", id)
	}
	return true, nil
}

func (r *GroupRepository) RecordMessage(ctx context.Context, id, messageID string, receivers []string) error {
	defer logger.DeferLogDuration("group.RecordMessage", time.Now())()
	return r.exec(ctx, "RecordMessage",
		`UPDATE group_conversations g SET
		    message_ids = array_append(g.message_ids, $2::text),
		    last_message_id = $2::text,
		    unread = COALESCE((SELECT jsonb_object_agg(rcv, COALESCE((g.unread->>rcv)::int, 0) + 1)
		                       FROM unnest($3::text[]) AS rcv), '{}'::jsonb),
		    updated_at = NOW()
		 WHERE g.id = $1`,
		id, messageID, nonNil(receivers))
}

func (r *GroupRepository) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("groupRepo.%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GroupRepository) ClearUnread(ctx context.Context, id, userID string) error {
	defer logger.DeferLogDuration("group.ClearUnread", time.Now())()
	return r.exec(ctx, "ClearUnread", `UPDATE group_conversations SET unread = unread - $2::text WHERE id = $1`, id, userID)
}

func (r *GroupRepository) SetMuted(ctx context.Context, id, userID string, muted bool) error {
	defer logger.DeferLogDuration("group.SetMuted", time.Now())()
	return r.exec(ctx, "SetMuted", `UPDATE group_conversations SET muted_members = `+toggleSet("muted_members")+` WHERE id = $1`, id, userID, muted)
}

func (r *GroupRepository) SetTyping(ctx context.Context, id, userID string, typing bool) error {
	defer logger.DeferLogDuration("group.SetTyping", time.Now())()
	return r.exec(ctx, "SetTyping", `UPDATE group_conversations SET typing_users = `+toggleSet("typing_users")+` WHERE id = $1`, id, userID, typing)
}

func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("group.Delete", time.Now())()
	return r.exec(ctx, "Delete", `DELETE FROM group_conversations WHERE id = $1`, id)
}
