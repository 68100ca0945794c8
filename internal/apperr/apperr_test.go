package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestBodyMapsKindsToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{Auth(CodeInvalidToken, "no"), http.StatusUnauthorized},
		{Authorization("TRIAL_EXPIRED", "expired"), http.StatusForbidden},
		{NotFound("missing"), http.StatusNotFound},
		{Conflict("dup"), http.StatusConflict},
		{RateLimit("slow down", 3), http.StatusTooManyRequests},
		{Upstream("llm failed", errors.New("timeout")), http.StatusInternalServerError},
		{Canceled(errors.New("gone")), StatusClientClosedRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, body := Body(tc.err)
		if status != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, status)
		}
		if msg, _ := body["message"].(string); msg == "" {
			t.Fatalf("%v: expected non-empty message", tc.err)
		}
	}
}

func TestBodyHidesDetailsUnlessExposed(t *testing.T) {
	err := fmt.Errorf("handler: %w", Internal(errors.New("db down")))

	ExposeDetails(false)
	_, body := Body(err)
	if _, ok := body["details"]; ok {
		t.Fatalf("expected details hidden, got %v", body)
	}
	if body["message"] != "internal server error" {
		t.Fatalf("unexpected message %v", body["message"])
	}

	ExposeDetails(true)
	t.Cleanup(func() { ExposeDetails(false) })
	_, body = Body(err)
	if body["details"] != "db down" {
		t.Fatalf("expected details exposed, got %v", body)
	}
}

func TestWithCopiesFields(t *testing.T) {
	base := Authorization("TRIAL_EXPIRED", "expired")
	withFlag := base.With("trialExpired", true)
	if _, ok := base.Fields["trialExpired"]; ok {
		t.Fatalf("expected base error untouched")
	}
	_, body := Body(withFlag)
	if body["trialExpired"] != true || body["error"] != "TRIAL_EXPIRED" {
		t.Fatalf("unexpected body %v", body)
	}
}
