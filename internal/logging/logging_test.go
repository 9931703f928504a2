package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	InitNop()

	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if seen == "" {
		t.Fatal("expected generated request id in context")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header %q does not match context id %q", got, seen)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status not passed through: %d", rec.Code)
	}
}

func TestMiddlewareKeepsIncomingRequestID(t *testing.T) {
	InitNop()

	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "req-123" {
		t.Errorf("expected req-123, got %q", seen)
	}
}

func TestMiddlewareForwardsFlush(t *testing.T) {
	InitNop()

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("wrapped writer lost http.Flusher")
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	if err := Init(Config{Level: "loud", Format: "json", OutputPath: "stderr"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !L().Core().Enabled(zapcore.InfoLevel) || L().Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected info level")
	}
	InitNop()
	if GetRequestID(context.Background()) != "" {
		t.Error("expected empty request id on bare context")
	}
}
