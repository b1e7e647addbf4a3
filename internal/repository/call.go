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

const callCols = `id, caller_id, receiver_id, group_id, call_type, status, participants, missed_by,
	is_group_call, started_at, ended_at, duration_seconds, end_reason`

const defaultHistoryLimit = 50

type CallRepository struct {
	pool *pgxpool.Pool
}

func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

func scanCall(s scanner, c *model.Call) error {
	var (
		media, status string
		reason        *string
	)
	if err := s.Scan(&c.ID, &c.CallerID, &c.ReceiverID, &c.GroupID, &media, &status, &c.Participants,
		&c.MissedBy, &c.IsGroupCall, &c.StartedAt, &c.EndedAt, &c.DurationSeconds, &reason); err != nil {
		return err
	}
	c.Media = model.CallMedia(media)
	c.Status = model.CallStatus(status)
	if reason != nil {
		er := model.EndReason(*reason)
		c.EndReason = &er
	}
	return nil
}

func (r *CallRepository) Create(ctx context.Context, c *model.Call) error {
	defer logger.DeferLogDuration("call.Create", time.Now())()
	var reason *string
	if c.EndReason != nil {
		s := string(*c.EndReason)
		reason = &s
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO calls (`+callCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.CallerID, c.ReceiverID, c.GroupID, string(c.Media), string(c.Status), nonNil(c.Participants),
		nonNil(c.MissedBy), c.IsGroupCall, c.StartedAt, c.EndedAt, c.DurationSeconds, reason,
	)
	if err != nil {
		return fmt.Errorf("callRepo.Create: %w", err)
	}
	return nil
}

func (r *CallRepository) GetByID(ctx context.Context, id string) (*model.Call, error) {
	defer logger.DeferLogDuration("call.GetByID", time.Now())()
	c := &model.Call{}
	row := r.pool.QueryRow(ctx, `SELECT `+callCols+` FROM calls WHERE id = $1`, id)
	if err := scanCall(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("callRepo.GetByID: %w", err)
	}
	return c, nil
}

// Finish: условие status = 'active' делает повторное завершение безопасным.
func (r *CallRepository) Finish(ctx context.Context, id string, status model.CallStatus, reason model.EndReason, endedAt time.Time, missedBy []string) (bool, error) {
	defer logger.DeferLogDuration("call.Finish", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE calls SET status = $2, end_reason = $3, ended_at = $4::timestamptz,
		        duration_seconds = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($4::timestamptz - started_at))))::bigint,
		        missed_by = CASE WHEN cardinality($5::text[]) > 0 THEN $5::text[] ELSE missed_by END
		 WHERE id = $1 AND status = 'active'`,
		id, string(status), string(reason), endedAt, nonNil(missedBy),
	)
	if err != nil {
		return false, fmt.Errorf("callRepo.Finish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOr(ctx, r.pool, "calls", id)
	}
	return true, nil
}

func (r *CallRepository) AddParticipant(ctx context.Context, id, userID string) (bool, error) {
	defer logger.DeferLogDuration("call.AddParticipant", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE calls SET participants = array_append(participants, $2::text)
		 WHERE id = $1 AND status = 'active' AND NOT ($2::text = ANY(participants))`, id, userID)
	if err != nil {
		return false, fmt.Errorf("callRepo.AddParticipant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOr(ctx, r.pool, "calls", id)
	}
	return true, nil
}

func (r *CallRepository) RemoveParticipant(ctx context.Context, id, userID string) (bool, error) {
	defer logger.DeferLogDuration("call.RemoveParticipant", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE calls SET participants = array_remove(participants, $2::text)
		 WHERE id = $1 AND status = 'active' AND $2::text = ANY(participants)`, id, userID)
	if err != nil {
		return false, fmt.Errorf("callRepo.RemoveParticipant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOr(ctx, r.pool, "calls", id)
	}
	return true, nil
}

func (r *CallRepository) list(ctx context.Context, op, query string, args ...any) ([]model.Call, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("callRepo.%s: %w", op, err)
	}
	defer rows.Close()
	out := make([]model.Call, 0, 8)
	for rows.Next() {
		var c model.Call
		if err := scanCall(rows, &c); err != nil {
			return nil, fmt.Errorf("callRepo.%s scan: %w", op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("callRepo.%s rows: %w", op, err)
	}
	return out, nil
}

func (r *CallRepository) ListActive(ctx context.Context, userID string) ([]model.Call, error) {
	defer logger.DeferLogDuration("call.ListActive", time.Now())()
	return r.list(ctx, "ListActive",
		`SELECT `+callCols+` FROM calls
		 WHERE status = 'active' AND (caller_id = $1 OR $1 = ANY(participants))
		 ORDER BY started_at DESC, id`, userID)
}

func (r *CallRepository) ListHistory(ctx context.Context, userID string, limit int) ([]model.Call, error) {
	defer logger.DeferLogDuration("call.ListHistory", time.Now())()
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return r.list(ctx, "ListHistory",
		`SELECT `+callCols+` FROM calls
		 WHERE caller_id = $1 OR $1 = ANY(participants) OR $1 = ANY(missed_by)
		 ORDER BY started_at DESC, id LIMIT $2`, userID, limit)
}
