// Package startup собирает зависимости процесса: подключения с повторами и миграции.
package startup

import (
	"fmt"
	"time"

	"github.com/supportdesk/internal/logger"
)

const maxBackoff = 30 * time.Second

// withRetry повторяет attempt с экспоненциальной паузой, пока не истечёт maxWait.
func withRetry(what string, maxWait time.Duration, attempt func() error) error {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		err := attempt()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s (gave up after %v): %w", what, maxWait, err)
		}
		logger.Errorf("%s failed, retry in %v: %v", what, backoff, err)
		time.Sleep(backoff)
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
