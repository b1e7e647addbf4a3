package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/supportdesk/internal/apperr"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("bad"), http.StatusBadRequest},
		{apperr.Unauthorized("no token"), http.StatusUnauthorized},
		{apperr.Forbidden("banned"), http.StatusForbidden},
		{apperr.NotFound("conversation not found"), http.StatusNotFound},
		{apperr.Conflict("exists"), http.StatusConflict},
		{apperr.RateLimited("slow down"), http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
		{apperr.Internal("repo.Get", errors.New("conn reset")), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := apperr.HTTPStatus(c.err); got != c.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", apperr.Forbidden("only the group admin can add users"))
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden kind, got %v", apperr.KindOf(err))
	}
	if got := apperr.Message(err); got != "only the group admin can add users" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestInternalMessageIsHidden(t *testing.T) {
	cause := errors.New("pq: relation does not exist")
	err := apperr.Internal("conversationRepo.GetByID", cause)
	if got := apperr.Message(err); got != "internal server error" {
		t.Fatalf("internal details leaked: %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause must stay reachable through Unwrap")
	}
}
