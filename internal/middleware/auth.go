package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stone-hackingod/backend-votux/pkg/errors"
	"github.com/stone-hackingod/backend-votux/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// AdminContextKey is the key for admin claims in context
	AdminContextKey ContextKey = "admin"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
)

// AdminClaims represents the bearer token claims for admin users
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireAdmin creates a middleware guarding admin routes. Tokens are
// HS256-signed with the admin secret and must carry role=admin.
func RequireAdmin(jwtSecret string, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := validateAdminToken(r, jwtSecret)
			if err != nil {
				logger.WithError(err).Warn("Admin token validation failed")
				writeErrorResponse(w, errors.NewAuthenticationError("Invalid or missing admin token"), logger)
				return
			}

			if claims.Role != "admin" {
				writeErrorResponse(w, errors.NewAuthorizationError("Admin role required"), logger)
				return
			}

			ctx := context.WithValue(r.Context(), AdminContextKey, claims)
			logger.WithField("admin", claims.Subject).Debug("Admin authenticated")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateAdminToken parses the bearer token and extracts admin claims
func validateAdminToken(r *http.Request, jwtSecret string) (*AdminClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("no authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, fmt.Errorf("invalid authorization header format")
	}

	token, err := jwt.ParseWithClaims(parts[1], &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("invalid token: missing subject claim")
	}
	return claims, nil
}

// GetAdminClaims retrieves admin claims from request context
func GetAdminClaims(ctx context.Context) (*AdminClaims, bool) {
	claims, ok := ctx.Value(AdminContextKey).(*AdminClaims)
	return claims, ok
}

// RequestID creates a middleware that adds a unique request ID to each request
func RequestID(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := generateRequestID()

			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
			r = r.WithContext(ctx)

			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r)
		})
	}
}

// generateRequestID generates a simple request ID
func generateRequestID() string {
	return fmt.Sprintf("%d-%d", time.Now().Unix(), time.Now().Nanosecond())
}

// writeErrorResponse writes an error response to the client
func writeErrorResponse(w http.ResponseWriter, appErr *errors.AppError, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)

	response := &errors.ErrorResponse{}
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Details = appErr.Details
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.WithError(err).Error("Failed to encode error response")
	}
}
