package auth

import (
	"net/http"
	"strings"

	"github.com/vidclass/vidclass/internal/api"
	"github.com/vidclass/vidclass/internal/middleware"
)

// RequireAuth returns middleware that authenticates requests with a Bearer
// access token. On success the token subject is set as the user ID in the
// request context; otherwise the request is rejected with 401.
//
// Refresh tokens are not accepted for API access.
func RequireAuth(jwtService *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeAuthFailed)
				api.WriteError(w, ctx, http.StatusUnauthorized, api.ErrCodeAuthFailed, "Authorization header is required")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeAuthFailed)
				api.WriteError(w, ctx, http.StatusUnauthorized, api.ErrCodeAuthFailed, "Authorization header must use the Bearer scheme")
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeAuthFailed)
				api.WriteError(w, ctx, http.StatusUnauthorized, api.ErrCodeAuthFailed, "Invalid or expired token")
				return
			}

			if claims.Type != TokenTypeAccess || claims.Subject == "" {
				ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeAuthFailed)
				api.WriteError(w, ctx, http.StatusUnauthorized, api.ErrCodeAuthFailed, "An access token is required")
				return
			}

			ctx := middleware.SetUserID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
