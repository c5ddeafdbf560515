package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{E(CodeInvalidArgument, "op", "bad", nil), http.StatusBadRequest},
		{E(CodeConfirmationRequired, "op", "pending", nil), http.StatusConflict},
		{E(CodeInvalidState, "op", "busy", nil), http.StatusConflict},
		{RateLimited("op", ReasonTooSoon), http.StatusTooManyRequests},
		{E(CodeProviderFailure, "op", "down", nil), http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", E(CodeNotFound, "op", "gone", nil)), http.StatusNotFound},
		{ErrNotFound, http.StatusNotFound},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRateLimitMessages(t *testing.T) {
	soon := RateLimited("RateLimiter.Check", ReasonTooSoon)
	quota := RateLimited("RateLimiter.Check", ReasonQuotaExhausted)

	if RateLimitReason(soon) != ReasonTooSoon || RateLimitReason(quota) != ReasonQuotaExhausted {
		t.Fatalf("reasons not carried")
	}
	if RateLimitReason(E(CodeInternal, "op", "x", nil)) != "" {
		t.Fatalf("non rate-limit error has a reason")
	}
	if UserMessage(soon) == UserMessage(quota) {
		t.Fatalf("cooldown and quota share a message")
	}
}

func TestErrorUnwrap(t *testing.T) {
	root := errors.New("dial tcp: refused")
	err := E(CodeToolExecution, "MCPExecutor.Execute", "delete_list", root)

	if !errors.Is(err, root) {
		t.Fatalf("root cause lost")
	}
	if CodeOf(err) != CodeToolExecution || CodeOf(root) != CodeInternal {
		t.Fatalf("CodeOf mismatch")
	}
	if err.Error() != "MCPExecutor.Execute: delete_list: dial tcp: refused" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if UserMessage(nil) != "" {
		t.Fatalf("nil error has a message")
	}
}
