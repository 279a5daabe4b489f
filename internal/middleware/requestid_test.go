package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/users/me/stats", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if captured == "" {
		t.Fatal("expected a request ID in the context")
	}
	if _, err := uuid.Parse(captured); err != nil {
		t.Errorf("generated request ID is not a UUID: %v", err)
	}
	if got := w.Header().Get(RequestIDHeader); got != captured {
		t.Errorf("response header %q = %q, want %q", RequestIDHeader, got, captured)
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/users/me/stats", nil)
	req.Header.Set(RequestIDHeader, "client-supplied-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if captured != "client-supplied-id" {
		t.Errorf("request ID = %q, want client-supplied-id", captured)
	}
}

func TestGetRequestID_MissingReturnsEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetRequestID(req.Context()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}
