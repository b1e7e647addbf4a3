package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/middleware"
	"github.com/supportdesk/internal/model"
	kv "github.com/supportdesk/internal/storage/memory"
)

// stubGate принимает единственный токен "good".
type stubGate struct {
	user *model.User
	seen string
}

func (g *stubGate) Authenticate(ctx context.Context, credential string) (*model.User, error) {
	g.seen = credential
	switch credential {
	case "":
		return nil, apperr.Unauthorized("authentication required")
	case "good":
		return g.user, nil
	default:
		return nil, apperr.Unauthorized("invalid token")
	}
}

var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(middleware.GetUserID(r.Context())))
})

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if body.Status != "error" {
		t.Fatalf("status field = %q", body.Status)
	}
	return body.Message
}

func TestAuthenticateBearerAndQuery(t *testing.T) {
	gate := &stubGate{user: &model.User{ID: "u1", Role: model.RoleCustomer}}
	h := middleware.Authenticate(gate)(echoUser)

	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "u1" {
		t.Fatalf("bearer: %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/ws?token=good", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || gate.seen != "good" {
		t.Fatalf("query token: %d seen=%q", rec.Code, gate.seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || errorMessage(t, rec) != "invalid token" {
		t.Fatalf("bad token: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequireStaff(t *testing.T) {
	h := middleware.RequireStaff(echoUser)
	for _, c := range []struct {
		role model.Role
		want int
	}{
		{model.RoleCustomer, http.StatusForbidden},
		{model.RoleModerator, http.StatusOK},
		{model.RoleSuperAdmin, http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(middleware.WithUser(req.Context(), &model.User{ID: "x", Role: c.role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Fatalf("role %s: got %d, want %d", c.role, rec.Code, c.want)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: got %d", rec.Code)
	}
}

func TestRateLimitPerIP(t *testing.T) {
	h := middleware.RateLimit(kv.New(), middleware.RateLimitConfig{PerIP: 2, Window: time.Minute})(echoUser)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests || errorMessage(t, rec) != "too many requests" {
		t.Fatalf("third request: %d %q", rec.Code, rec.Body.String())
	}

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "198.51.100.7:4000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("other ip limited: %d", rec.Code)
	}
}

func TestRateLimitPerUser(t *testing.T) {
	h := middleware.RateLimit(kv.New(), middleware.RateLimitConfig{PerUser: 1, Window: time.Minute})(echoUser)
	send := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(middleware.WithUser(req.Context(), &model.User{ID: userID}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := send("a"); code != http.StatusOK {
		t.Fatalf("first: %d", code)
	}
	if code := send("a"); code != http.StatusTooManyRequests {
		t.Fatalf("second: %d", code)
	}
	if code := send("b"); code != http.StatusOK {
		t.Fatalf("other user: %d", code)
	}
}

func TestRecoverJSON(t *testing.T) {
	h := middleware.RecoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError || errorMessage(t, rec) != "internal server error" {
		t.Fatalf("panic response: %d %q", rec.Code, rec.Body.String())
	}
}
