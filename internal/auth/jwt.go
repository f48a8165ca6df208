package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const technicianIDKey contextKey = "technicianID"

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey string
	// Required rejects requests without a token. When false, anonymous
	// requests pass and X-Technician-ID is trusted for local development.
	Required bool
}

// NewJWTConfig creates a new JWT config
func NewJWTConfig(secretKey string, required bool) *JWTConfig {
	if secretKey == "" {
		secretKey = "default-secret-key-change-in-production"
	}
	return &JWTConfig{SecretKey: secretKey, Required: required}
}

// IssueToken signs a token for a technician.
func (c *JWTConfig) IssueToken(technicianID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   technicianID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Middleware creates a JWT authentication middleware
func (c *JWTConfig) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if c.Required {
				http.Error(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}
			if id := r.Header.Get("X-Technician-ID"); id != "" {
				r = r.WithContext(context.WithValue(r.Context(), technicianIDKey, id))
			}
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(c.SecretKey), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		if claims.Subject == "" {
			http.Error(w, "Invalid token claims", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), technicianIDKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTechnicianID extracts the technician id from context
func GetTechnicianID(ctx context.Context) string {
	if id, ok := ctx.Value(technicianIDKey).(string); ok {
		return id
	}
	return ""
}
