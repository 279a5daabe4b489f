// Package main contains integration tests for the API server.
package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vidclass/vidclass/internal/api"
	"github.com/vidclass/vidclass/internal/auth"
	"github.com/vidclass/vidclass/internal/watch"
)

const testJWTSecret = "wJ6Qk8Qn1v9Qw1Zb2l8Qk9J3p6Qk8Qn1v9Qw1Zb2l8Qk="

func newTestRouter(t *testing.T) *http.ServeMux {
	t.Helper()

	repo := watch.NewInMemoryEventRepository()
	engine, err := watch.NewEngine(watch.Config{Levels: watch.LevelTable{100, 250, 500}})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	return newRouter(routerDeps{
		watchHandlers:  api.NewWatchHandlers(repo, engine, nil),
		healthHandlers: api.NewHealthHandlers(api.HealthHandlersConfig{}),
		requireAuth:    auth.RequireAuth(auth.NewJWTService(testJWTSecret)),
		metrics:        prometheus.NewRegistry(),
	})
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("unexpected health body: %s", w.Body.String())
	}
}

func TestRouter_Ready(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestRouter_Root(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse root response: %v", err)
	}
	if body["service"] != "vidclass-api" {
		t.Errorf("unexpected service name %s", body["service"])
	}
}

func TestRouter_UnknownPath(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/no/such/route", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}

	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if resp.Error.Code != api.ErrCodeNotFound {
		t.Errorf("expected error code %s, got %s", api.ErrCodeNotFound, resp.Error.Code)
	}
}

func TestRouter_StatsRequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/users/me/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}

func TestRouter_StatsWithToken(t *testing.T) {
	router := newTestRouter(t)

	svc := auth.NewJWTService(testJWTSecret)
	token, err := svc.GenerateAccessToken("user-123")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/users/me/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d, body: %s", w.Code, w.Body.String())
	}

	var stats watch.UserStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to parse stats response: %v", err)
	}
	if stats.CumulativeExperience != 0 {
		t.Errorf("expected zero experience for a fresh user, got %d", stats.CumulativeExperience)
	}
	if len(stats.DailyWatchTime) != 7 {
		t.Errorf("expected 7 day buckets for the default week window, got %d", len(stats.DailyWatchTime))
	}
}

func TestGracefulShutdown(t *testing.T) {
	router := newTestRouter(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	server := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverStopped := make(chan struct{})
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			t.Errorf("server error: %v", err)
		}
		close(serverStopped)
	}()

	// Confirm the server answers before shutting it down
	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("server shutdown error: %v", err)
	}

	select {
	case <-serverStopped:
	case <-time.After(15 * time.Second):
		t.Fatal("server failed to stop in time")
	}

	// Requests after shutdown should be refused
	if _, err := http.Get("http://" + ln.Addr().String() + "/health"); err == nil {
		t.Error("expected request after shutdown to fail")
	}
}
