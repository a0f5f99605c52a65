package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/api/responses"
	"github.com/angelmondragon/tradepost/pkg/logger"
)

func TestRequestIDKeepsWellFormedHeader(t *testing.T) {
	var seen string
	h := RequestID(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "edge-7f3a:42")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if seen != "edge-7f3a:42" {
		t.Fatalf("expected caller id in context, got %q", seen)
	}
	if got := resp.Header().Get(requestIDHeader); got != "edge-7f3a:42" {
		t.Fatalf("expected id echoed, got %q", got)
	}
}

func TestRequestIDReplacesSuspiciousHeader(t *testing.T) {
	for _, bad := range []string{"", "has space", "line\nbreak", strings.Repeat("a", maxRequestIDLen+1)} {
		h := RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, bad)
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)

		if _, err := uuid.Parse(resp.Header().Get(requestIDHeader)); err != nil {
			t.Errorf("header %q: expected a fresh uuid, got %q", bad, resp.Header().Get(requestIDHeader))
		}
	}
}

func TestRecovererWritesInternalEnvelope(t *testing.T) {
	h := RequestID(nil)(Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("listing index out of range")
	})))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings", nil)
	req.Header.Set(requestIDHeader, "req-1")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
	var body responses.ErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RequestID != "req-1" {
		t.Fatalf("expected request id in body, got %q", body.RequestID)
	}
	if strings.Contains(body.Error.Message, "out of range") {
		t.Fatalf("panic text leaked: %q", body.Error.Message)
	}
}

func TestRecovererRepanicsAbortHandler(t *testing.T) {
	h := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		rec := recover()
		err, ok := rec.(error)
		if !ok || !errors.Is(err, http.ErrAbortHandler) {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
