package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"mathrush-backend/internal/middleware"
)

func TestApplyDefaultsSetsRequestID(t *testing.T) {
	var seen string
	h := middleware.ApplyDefaults(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(middleware.RequestIDKey).(string)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)

	if seen == "" {
		t.Fatal("expected a minted request id in the context")
	}
	if got := res.Header().Get("X-Request-ID"); got != seen {
		t.Fatalf("header %q does not echo the context id %q", got, seen)
	}
}

func TestApplyDefaultsKeepsClientRequestID(t *testing.T) {
	h := middleware.ApplyDefaults(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)

	if got := res.Header().Get("X-Request-ID"); got != "client-supplied" {
		t.Fatalf("got request id %q, want the client-supplied one", got)
	}
}

func TestEnableDebugAllowsAnyOrigin(t *testing.T) {
	cors, logger, chain := middleware.CORS, middleware.HTTPLogger, middleware.DefaultMiddlewares
	t.Cleanup(func() {
		middleware.CORS, middleware.HTTPLogger, middleware.DefaultMiddlewares = cors, logger, chain
	})

	middleware.EnableDebug()
	h := middleware.ApplyDefaults(http.NewServeMux())

	req := httptest.NewRequest(http.MethodOptions, "/quiz", nil)
	req.Header.Set("Origin", "http://any.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)

	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("got Access-Control-Allow-Origin %q, want %q", got, "*")
	}
}
