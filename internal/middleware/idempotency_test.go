package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vidclass/vidclass/internal/idempotency"
)

func newCountingHandler(status int, body string) (*int, http.Handler) {
	calls := new(int)
	return calls, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func TestIdempotency_ReplaysCachedResponse(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	calls, handler := newCountingHandler(http.StatusCreated, `{"id":"evt-1"}`)
	wrapped := Idempotency(repo, map[string]bool{"/watch/events": true})(handler)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/watch/events", strings.NewReader("{}"))
		req.Header.Set(IdempotencyKeyHeader, "retry-key-1")
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Errorf("attempt %d: expected status 201, got %d", i, w.Code)
		}
		if w.Body.String() != `{"id":"evt-1"}` {
			t.Errorf("attempt %d: unexpected body %s", i, w.Body.String())
		}
	}

	if *calls != 1 {
		t.Errorf("expected handler to run once, ran %d times", *calls)
	}
}

func TestIdempotency_DistinctKeysRunSeparately(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	calls, handler := newCountingHandler(http.StatusCreated, `{"id":"evt-1"}`)
	wrapped := Idempotency(repo, map[string]bool{"/watch/events": true})(handler)

	for _, key := range []string{"key-a", "key-b"} {
		req := httptest.NewRequest(http.MethodPost, "/watch/events", strings.NewReader("{}"))
		req.Header.Set(IdempotencyKeyHeader, key)
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
	}

	if *calls != 2 {
		t.Errorf("expected handler to run twice, ran %d times", *calls)
	}
}

func TestIdempotency_MissingKeyPassesThrough(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	calls, handler := newCountingHandler(http.StatusCreated, `{"id":"evt-1"}`)
	wrapped := Idempotency(repo, map[string]bool{"/watch/events": true})(handler)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/watch/events", strings.NewReader("{}"))
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
	}

	if *calls != 2 {
		t.Errorf("expected handler to run for every keyless request, ran %d times", *calls)
	}
}

func TestIdempotency_InvalidKeyRejected(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	calls, handler := newCountingHandler(http.StatusCreated, `{"id":"evt-1"}`)
	wrapped := Idempotency(repo, map[string]bool{"/watch/events": true})(handler)

	req := httptest.NewRequest(http.MethodPost, "/watch/events", strings.NewReader("{}"))
	req.Header.Set(IdempotencyKeyHeader, strings.Repeat("a", idempotency.MaxKeyLength+1))
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
	if *calls != 0 {
		t.Errorf("expected handler not to run, ran %d times", *calls)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if resp.Error.Code != "idempotency_key_too_long" {
		t.Errorf("unexpected error code %s", resp.Error.Code)
	}
}

func TestIdempotency_FailuresNotCached(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	calls, handler := newCountingHandler(http.StatusBadRequest, `{"error":{"code":"validation_error"}}`)
	wrapped := Idempotency(repo, map[string]bool{"/watch/events": true})(handler)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/watch/events", strings.NewReader("{}"))
		req.Header.Set(IdempotencyKeyHeader, "retry-key-1")
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
	}

	// A failed attempt must not pin the failure; the retry runs the handler
	if *calls != 2 {
		t.Errorf("expected handler to run on retry after failure, ran %d times", *calls)
	}
}

func TestIdempotency_IgnoresOtherRoutesAndMethods(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	calls, handler := newCountingHandler(http.StatusOK, `{}`)
	wrapped := Idempotency(repo, map[string]bool{"/watch/events": true})(handler)

	get := httptest.NewRequest(http.MethodGet, "/watch/events", nil)
	get.Header.Set(IdempotencyKeyHeader, "retry-key-1")
	wrapped.ServeHTTP(httptest.NewRecorder(), get)

	other := httptest.NewRequest(http.MethodPost, "/users/me/stats", strings.NewReader("{}"))
	other.Header.Set(IdempotencyKeyHeader, "retry-key-1")
	wrapped.ServeHTTP(httptest.NewRecorder(), other)

	if *calls != 2 {
		t.Errorf("expected both requests to pass through, got %d handler runs", *calls)
	}
	if _, err := repo.Get("retry-key-1"); err != idempotency.ErrKeyNotFound {
		t.Errorf("expected no cached record for pass-through requests, got %v", err)
	}
}
