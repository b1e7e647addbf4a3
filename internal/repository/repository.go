// Package repository хранит данные чата в PostgreSQL через pgxpool.
// Условные обновления (занятие слота, завершение звонка) выполняются одним UPDATE.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type scanner interface{ Scan(dest ...any) error }

// exists различает «строки нет» и «условие UPDATE не выполнилось».
func exists(ctx context.Context, pool *pgxpool.Pool, table, id string) (bool, error) {
	var ok bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("exists %s: %w", table, err)
	}
	return ok, nil
}

// missingOr возвращает ErrNotFound, если строки нет, иначе false без ошибки.
func missingOr(ctx context.Context, pool *pgxpool.Pool, table, id string) (bool, error) {
	ok, err := exists(ctx, pool, table, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotFound
	}
	return false, nil
}
