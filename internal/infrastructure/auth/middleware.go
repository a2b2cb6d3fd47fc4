package auth

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/honeynil/p2p-marketplace/internal/infrastructure/redis"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	claimsKey
)

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

func revokedKey(jti string) string {
	return fmt.Sprintf("token:revoked:%s", jti)
}

// Revoke blacklists the token until it would have expired anyway.
func Revoke(ctx context.Context, redisClient redis.RedisClient, claims *Claims) error {
	if claims.ID == "" {
		return stderrors.New("token has no id")
	}
	ttl := time.Hour
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	return redisClient.Set(ctx, revokedKey(claims.ID), "1", ttl)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": "UNAUTHENTICATED"})
}

func AuthMiddleware(redisClient redis.RedisClient, jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "authorization header missing")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, "invalid authorization header")
				return
			}

			claims, err := ParseToken(parts[1], jwtSecret)
			if err != nil {
				slog.Warn("rejected token", "error", err)
				unauthorized(w, "invalid token")
				return
			}

			// Check token in Redis
			if claims.ID != "" {
				_, err := redisClient.Get(r.Context(), revokedKey(claims.ID))
				switch {
				case err == nil:
					slog.Warn("revoked token used", "user_id", claims.Subject)
					unauthorized(w, "token revoked")
					return
				case !stderrors.Is(err, redis.ErrKeyNotFound):
					// Redis being down must not lock everyone out.
					slog.Error("failed to check token revocation", "user_id", claims.Subject, "error", err)
				}
			}

			ctx := WithUserID(r.Context(), claims.Subject)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
