// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"net/http"
)

// userIDKey is the context key for the authenticated user ID.
type userIDKey struct{}

// errorCodeKey is the context key for error code.
type errorCodeKey struct{}

// SetUserID stores the authenticated user ID in the context.
// This should be called by authentication middleware after validating the token.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID retrieves the user ID from context. Returns empty string if not present.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// SetErrorCode stores an error code in the context.
// This should be called by handlers when returning error responses.
func SetErrorCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode retrieves the error code from context. Returns empty string if not present.
func GetErrorCode(ctx context.Context) string {
	if code, ok := ctx.Value(errorCodeKey{}).(string); ok {
		return code
	}
	return ""
}

// UpdateResponseContext propagates an updated context to the logging
// middleware's response writer, so attributes set by handlers after
// ServeHTTP began (the error code in particular) are visible when the
// request log entry is written. Writers that do not participate are left
// untouched.
func UpdateResponseContext(w http.ResponseWriter, ctx context.Context) {
	for {
		switch writer := w.(type) {
		case *responseWriter:
			writer.ctx = ctx
			return
		case interface{ Unwrap() http.ResponseWriter }:
			w = writer.Unwrap()
		default:
			return
		}
	}
}
