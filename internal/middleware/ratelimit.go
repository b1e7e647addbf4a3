package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/storage"
)

// RateLimitConfig: сколько запросов за окно разрешено одному IP и одному пользователю.
type RateLimitConfig struct {
	PerIP   int
	PerUser int
	Window  time.Duration
}

func clientIP(r *http.Request) string {
	// chi RealIP уже переписал RemoteAddr из X-Real-Ip / X-Forwarded-For.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit ограничивает запросы по IP и по пользователю (если он уже в контексте). 429 при превышении.
// Ошибка хранилища не блокирует запрос.
func RateLimit(store storage.Store, cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.PerIP > 0 && !allow(r, store, "ip:"+clientIP(r), cfg.PerIP, cfg.Window) {
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			if userID := GetUserID(r.Context()); userID != "" && cfg.PerUser > 0 {
				if !allow(r, store, "u:"+userID, cfg.PerUser, cfg.Window) {
					writeError(w, http.StatusTooManyRequests, "too many requests")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allow(r *http.Request, store storage.Store, key string, max int, window time.Duration) bool {
	ok, err := store.CheckRateLimit(r.Context(), key, max, window)
	if err != nil {
		logger.Errorf("rate limit %s: %v", key, err)
		return true
	}
	return ok
}
