package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/erazemk/sledljivost/internal/auth"
	"github.com/erazemk/sledljivost/internal/model"
	"github.com/erazemk/sledljivost/internal/store"
)

type contextKey string

const claimsKey contextKey = "claims"

// AuthMiddleware validates the bearer JWT, rejects revoked tokens and deleted
// users, and adds the claims to the request context.
func AuthMiddleware(secret string, db *sqlx.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				jsonError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			claims, status, msg := authenticate(r.Context(), secret, db, strings.TrimPrefix(header, "Bearer "))
			if claims == nil {
				jsonError(w, status, msg)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate checks a raw token. On failure it returns nil claims with the
// status and message to report.
func authenticate(ctx context.Context, secret string, db *sqlx.DB, token string) (*auth.Claims, int, string) {
	claims, err := auth.ValidateToken(secret, token)
	if err != nil {
		return nil, http.StatusUnauthorized, "invalid token"
	}

	revoked, err := store.IsTokenRevoked(ctx, db, claims.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to check token revocation")
		return nil, http.StatusInternalServerError, "internal error"
	}
	if revoked {
		return nil, http.StatusUnauthorized, "token revoked"
	}

	user, err := store.GetUser(ctx, db, claims.UserID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load token user")
		return nil, http.StatusInternalServerError, "internal error"
	}
	if user == nil || user.DeletedAt != nil || user.Account != claims.Account {
		return nil, http.StatusUnauthorized, "invalid token"
	}

	return claims, 0, ""
}

// RequireRole returns middleware that checks if the user has at least the given role.
func RequireRole(minimum string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				jsonError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if !model.RoleAtLeast(claims.Role, minimum) {
				jsonError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims retrieves the JWT claims from the context.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestLogger assigns each request an id, stores a request-scoped logger in
// the context and logs method, path, status and duration when it completes.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" || len(reqID) > 64 {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		l := log.With().Str("request_id", reqID).Logger()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(l.WithContext(r.Context())))

		ev := l.Info()
		if rec.status >= http.StatusInternalServerError {
			ev = l.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}
