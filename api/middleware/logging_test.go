package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/angelmondragon/tradepost/pkg/logger"
)

func TestLoggingRecordsRoutePatternAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "api-test", Level: zerolog.DebugLevel, Output: &buf, Format: "json"})

	r := chi.NewRouter()
	r.Use(Logging(logg))
	r.Get("/offers/{offerID}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/offers/123", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected two log lines, got %d: %s", len(lines), buf.String())
	}
	var first, second map[string]any
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal(lines[1], &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first["route"] != "/offers/{offerID}" || first["level"] != "info" || first["bytes"] != float64(2) {
		t.Fatalf("unexpected first line %v", first)
	}
	if second["status"] != float64(http.StatusServiceUnavailable) || second["level"] != "warn" {
		t.Fatalf("unexpected second line %v", second)
	}
}

func TestLoggingWithoutLoggerPassesThrough(t *testing.T) {
	called := false
	h := Logging(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatal("handler not invoked")
	}
}
