package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/model"
)

type PinnedRepository struct {
	pool *pgxpool.Pool
}

func NewPinnedRepository(pool *pgxpool.Pool) *PinnedRepository {
	return &PinnedRepository{pool: pool}
}

func (r *PinnedRepository) Pin(ctx context.Context, threadID, messageID, pinnedBy string) error {
	defer logger.DeferLogDuration("pinned.Pin", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO pinned_messages (thread_id, message_id, pinned_by, pinned_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		threadID, messageID, pinnedBy, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("pinnedRepo.Pin: %w", err)
	}
	return nil
}

func (r *PinnedRepository) Unpin(ctx context.Context, threadID, messageID string) error {
	defer logger.DeferLogDuration("pinned.Unpin", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM pinned_messages WHERE thread_id = $1 AND message_id = $2`,
		threadID, messageID,
	)
	if err != nil {
		return fmt.Errorf("pinnedRepo.Unpin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PinnedRepository) GetPinned(ctx context.Context, threadID string) ([]model.PinnedMessage, error) {
	defer logger.DeferLogDuration("pinned.GetPinned", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT pm.thread_id, pm.message_id, pm.pinned_by, pm.pinned_at,
		        m.id, m.sender_id, m.text, m.attachments, m.is_deleted, m.created_at
		 FROM pinned_messages pm
		 JOIN messages m ON m.id = pm.message_id
		 WHERE pm.thread_id = $1
		 ORDER BY pm.pinned_at DESC`, threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("pinnedRepo.GetPinned query: %w", err)
	}
	defer rows.Close()

	pins := make([]model.PinnedMessage, 0, 4)
	for rows.Next() {
		var p model.PinnedMessage
		msg := &model.Message{}
		if err := rows.Scan(&p.ThreadID, &p.MessageID, &p.PinnedBy, &p.PinnedAt,
			&msg.ID, &msg.SenderID, &msg.Text, &msg.Attachments, &msg.IsDeleted, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("pinnedRepo.GetPinned scan: %w", err)
		}
		p.Message = msg
		pins = append(pins, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pinnedRepo.GetPinned rows: %w", err)
	}
	return pins, nil
}
