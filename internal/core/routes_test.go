package core

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"weatherproof/internal/config"
	"weatherproof/internal/types"
)

// newTestServerForRoutes creates a fully-wired test Server with MountRoutes called.
func newTestServerForRoutes(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		Environment: "local",
	}
	cfg.Server.CorsAllowedOrigins = []string{"*"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := NewServer(cfg, testRepos(), logger)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	srv.Metrics = &mockMetricsCollector{}
	srv.MountRoutes()
	return srv
}

// TestMountRoutes_MiddlewareCount verifies that registerGlobalMiddleware
// registers exactly 7 middleware in the chain. This acts as a safeguard
// against accidentally adding or removing middleware from the chain.
func TestMountRoutes_MiddlewareCount(t *testing.T) {
	srv := newTestServerForRoutes(t)

	middlewares := srv.Router().Middlewares()
	expected := 7

	if len(middlewares) != expected {
		t.Errorf("expected %d middleware registered, got %d", expected, len(middlewares))
	}
}

// TestMountRoutes_HealthEndpoint verifies the /health endpoint is mounted
// and returns a 200 response.
func TestMountRoutes_HealthEndpoint(t *testing.T) {
	srv := newTestServerForRoutes(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /health: expected status 200, got %d", w.Code)
	}

	// Verify response is JSON.
	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("GET /health: expected Content-Type application/json, got %q", ct)
	}
}

// TestMountRoutes_OpenAPIEndpoint verifies the /openapi.json endpoint is
// mounted and returns a JSON response.
func TestMountRoutes_OpenAPIEndpoint(t *testing.T) {
	srv := newTestServerForRoutes(t)

	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /openapi.json: expected status 200, got %d", w.Code)
	}

	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("GET /openapi.json: expected Content-Type application/json, got %q", ct)
	}
}

// TestMountRoutes_V1Registrars verifies that V1RouteRegistrars are invoked and
// their routes mounted under /v1.
func TestMountRoutes_V1Registrars(t *testing.T) {
	cfg := &config.Config{Environment: "local"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := NewServer(cfg, testRepos(), logger)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/demo", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/v1/demo", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /v1/demo: expected 200, got %d", w.Code)
	}

	// Unregistered paths still 404.
	req = httptest.NewRequest(http.MethodGet, "/v1/nonexistent", nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("GET /v1/nonexistent: expected 404, got %d", w.Code)
	}
}

// TestMountRoutes_SecurityHeaders verifies that all responses include the
// security headers set by SecurityHeadersMiddleware, regardless of the endpoint.
func TestMountRoutes_SecurityHeaders(t *testing.T) {
	srv := newTestServerForRoutes(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
	}

	for name, expected := range headers {
		got := w.Header().Get(name)
		if got != expected {
			t.Errorf("header %s: got %q, want %q", name, got, expected)
		}
	}
}

// TestMountRoutes_RequestIDGenerated verifies that a request without an
// X-Request-Id header gets one generated and set on the response.
func TestMountRoutes_RequestIDGenerated(t *testing.T) {
	srv := newTestServerForRoutes(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	requestID := w.Header().Get("X-Request-Id")
	if requestID == "" {
		t.Error("expected X-Request-Id header to be set on response")
	}
	// Generated IDs are 32 hex chars (16 bytes).
	if len(requestID) != 32 {
		t.Errorf("expected X-Request-Id to be 32 hex chars, got %d chars: %q", len(requestID), requestID)
	}
}

// TestMountRoutes_RequestIDPropagated verifies that a request with an existing
// X-Request-Id header has that value propagated to the response.
func TestMountRoutes_RequestIDPropagated(t *testing.T) {
	srv := newTestServerForRoutes(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "client-correlation-id")
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	got := w.Header().Get("X-Request-Id")
	if got != "client-correlation-id" {
		t.Errorf("X-Request-Id not propagated: got %q, want %q", got, "client-correlation-id")
	}
}

// TestMiddlewareOrder_ContextTimeout verifies that ContextTimeoutMiddleware
// sets a deadline on the request context.
func TestMiddlewareOrder_ContextTimeout(t *testing.T) {
	// Use a short timeout for testing.
	mw := ContextTimeoutMiddleware(50 * time.Millisecond)

	var deadlineSet bool
	var deadline time.Time
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, deadlineSet = r.Context().Deadline()
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !deadlineSet {
		t.Error("ContextTimeoutMiddleware should set a deadline on the context")
	}
	// The deadline should be roughly 50ms from now (within a generous margin).
	if time.Until(deadline) > 100*time.Millisecond {
		t.Error("ContextTimeoutMiddleware: deadline is too far in the future")
	}
}

// TestRequestTimeout_FromConfig verifies that the configured request timeout
// takes precedence over the default.
func TestRequestTimeout_FromConfig(t *testing.T) {
	cfg := &config.Config{Environment: "local"}
	cfg.Server.RequestTimeout = 5 * time.Second
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := NewServer(cfg, testRepos(), logger)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	if got := srv.requestTimeout(); got != 5*time.Second {
		t.Errorf("requestTimeout: got %v, want 5s", got)
	}

	cfg.Server.RequestTimeout = 0
	if got := srv.requestTimeout(); got != defaultRequestTimeout {
		t.Errorf("requestTimeout fallback: got %v, want %v", got, defaultRequestTimeout)
	}
}

// TestRequestIDMiddleware_Generation verifies that RequestIDMiddleware generates
// a new ID when none is provided.
func TestRequestIDMiddleware_Generation(t *testing.T) {
	var capturedID string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = types.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if capturedID == "" {
		t.Error("RequestIDMiddleware should generate an ID when none is provided")
	}
	if len(capturedID) != 32 {
		t.Errorf("generated ID should be 32 hex chars, got %d: %q", len(capturedID), capturedID)
	}

	// Verify response header matches.
	responseID := w.Header().Get("X-Request-Id")
	if responseID != capturedID {
		t.Errorf("response header X-Request-Id=%q doesn't match context ID=%q", responseID, capturedID)
	}
}

// TestRequestIDMiddleware_Propagation verifies that RequestIDMiddleware reuses
// an existing X-Request-Id header.
func TestRequestIDMiddleware_Propagation(t *testing.T) {
	var capturedID string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = types.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "incoming-id-12345")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if capturedID != "incoming-id-12345" {
		t.Errorf("expected propagated ID %q, got %q", "incoming-id-12345", capturedID)
	}

	responseID := w.Header().Get("X-Request-Id")
	if responseID != "incoming-id-12345" {
		t.Errorf("response header should echo incoming ID: got %q", responseID)
	}
}

// TestServeOpenAPISpec verifies the OpenAPI spec endpoint returns valid JSON.
func TestServeOpenAPISpec(t *testing.T) {
	srv := newTestServerForRoutes(t)

	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w := httptest.NewRecorder()

	srv.ServeOpenAPISpec(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("ServeOpenAPISpec: expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("ServeOpenAPISpec returned invalid JSON: %v", err)
	}

	if _, ok := body["openapi"]; !ok {
		t.Error("ServeOpenAPISpec response should contain 'openapi' key")
	}
}

// TestMiddlewareOrder_RecovererCatchesPanics verifies that Recoverer is the
// outermost middleware and catches panics from any downstream handler, returning
// a 500 JSON response.
func TestMiddlewareOrder_RecovererCatchesPanics(t *testing.T) {
	srv := newTestServerForRoutes(t)

	// Register a panicking handler under /v1/panic.
	srv.Router().Get("/v1/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic from handler")
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/panic", nil)
	w := httptest.NewRecorder()

	// This should not panic -- Recoverer should catch it.
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", w.Code)
	}

	// Verify the body is a valid JSON error response.
	var errResp APIErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode panic response: %v", err)
	}
	if errResp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("expected error code %q, got %q", types.ErrCodeInternalUnexpected, errResp.Error.Code)
	}
}

// TestMountRoutes_CORSHeaders verifies that CORS headers are set on responses.
func TestMountRoutes_CORSHeaders(t *testing.T) {
	srv := newTestServerForRoutes(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.weatherproof.io")
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	acao := w.Header().Get("Access-Control-Allow-Origin")
	if acao == "" {
		t.Error("expected Access-Control-Allow-Origin header to be set")
	}
}

// TestMountRoutes_MetricsRecorded verifies that the metrics middleware records
// a request once the full chain executes.
func TestMountRoutes_MetricsRecorded(t *testing.T) {
	srv := newTestServerForRoutes(t)
	metrics := srv.Metrics.(*mockMetricsCollector)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if len(metrics.calls) != 1 {
		t.Fatalf("expected 1 recorded request, got %d", len(metrics.calls))
	}
	call := metrics.calls[0]
	if call.method != http.MethodGet || call.endpoint != "/health" || call.status != "200" {
		t.Errorf("unexpected metrics call: %+v", call)
	}
}

// TestContextTimeoutMiddleware_Cancellation verifies that the context is
// cancelled after the timeout expires.
func TestContextTimeoutMiddleware_Cancellation(t *testing.T) {
	mw := ContextTimeoutMiddleware(10 * time.Millisecond)

	var ctxErr error
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Wait for the context to be cancelled.
		select {
		case <-r.Context().Done():
			ctxErr = r.Context().Err()
		case <-time.After(1 * time.Second):
			t.Error("context was not cancelled within expected time")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if ctxErr != context.DeadlineExceeded {
		t.Errorf("expected context.DeadlineExceeded, got %v", ctxErr)
	}
}
