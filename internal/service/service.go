// Package service содержит бизнес-логику чата поддержки. REST-обработчики и
// WebSocket-шлюз вызывают одни и те же методы.
package service

import (
	"errors"
	"slices"
	"strings"

	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/repository"
)

// storeErr превращает ошибку хранилища в ошибку для клиента.
func storeErr(op string, err error, notFound string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(notFound)
	}
	return apperr.Internal(op, err)
}

// uniqueIDs убирает пустые значения и дубли, сохраняя порядок.
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// pushAll рассылает событие всем из списка и возвращает число доставленных.
func pushAll(p Pusher, userIDs []string, ev model.Event) int {
	n := 0
	for _, id := range userIDs {
		if p.Send(id, ev) {
			n++
		}
	}
	return n
}
