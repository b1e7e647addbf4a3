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

// userCols: порядок соответствует scanUser.
const userCols = `id, name, email, role, is_online, socket_id, last_seen, is_banned, is_suspended, suspension_expires_at, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(s scanner, u *model.User) error {
	var role string
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &role, &u.IsOnline, &u.SocketID, &u.LastSeen,
		&u.IsBanned, &u.IsSuspended, &u.SuspensionExpiresAt, &u.CreatedAt); err != nil {
		return err
	}
	u.Role = model.Role(role)
	return nil
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (`+userCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Name, u.Email, string(u.Role), u.IsOnline, u.SocketID, u.LastSeen,
		u.IsBanned, u.IsSuspended, u.SuspensionExpiresAt, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

// ListStaff возвращает всех модераторов и администраторов, в том числе офлайн.
func (r *UserRepository) ListStaff(ctx context.Context) ([]model.User, error) {
	defer logger.DeferLogDuration("user.ListStaff", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userCols+` FROM users WHERE role IN ('moderator', 'admin', 'super_admin') ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("userRepo.ListStaff: %w", err)
	}
	defer rows.Close()
	users := make([]model.User, 0, 8)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.ListStaff scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.ListStaff rows: %w", err)
	}
	return users, nil
}

func (r *UserRepository) SetPresence(ctx context.Context, userID string, online bool, socketID *string) error {
	defer logger.DeferLogDuration("user.SetPresence", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_online = $1, socket_id = $2, last_seen = $3 WHERE id = $4`,
		online, socketID, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("userRepo.SetPresence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetPresence сбрасывает онлайн-статус всех пользователей (вызывается при старте сервера).
func (r *UserRepository) ResetPresence(ctx context.Context) error {
	defer logger.DeferLogDuration("user.ResetPresence", time.Now())()
	if _, err := r.pool.Exec(ctx, `UPDATE users SET is_online = FALSE, socket_id = NULL WHERE is_online OR socket_id IS NOT NULL`); err != nil {
		return fmt.Errorf("userRepo.ResetPresence: %w", err)
	}
	return nil
}

func (r *UserRepository) ClearSuspension(ctx context.Context, userID string) error {
	defer logger.DeferLogDuration("user.ClearSuspension", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_suspended = FALSE, suspension_expires_at = NULL WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("userRepo.ClearSuspension: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
