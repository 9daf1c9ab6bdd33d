// Package middleware provides HTTP middleware for the charges API.
//
// Requests reach the service through a gateway that authenticates the market
// participant and forwards its identity in headers.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

const (
	// HeaderGatewaySecret carries the secret shared with the gateway.
	HeaderGatewaySecret = "X-Gateway-Secret"

	// HeaderParticipantID carries the authenticated market participant.
	HeaderParticipantID = "X-Market-Participant-Id"
)

type contextKey struct{}

// ParticipantFromContext returns the authenticated participant ID, or empty.
func ParticipantFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// WithParticipant stores the participant ID in ctx.
func WithParticipant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// =============================================================================
// Participant Middleware
// =============================================================================

// ParticipantConfig holds configuration for the participant middleware.
type ParticipantConfig struct {
	// SharedSecret is an optional secret to validate X-Gateway-Secret.
	// If empty, secret validation is skipped.
	SharedSecret string

	// Required rejects requests without a participant header.
	Required bool

	Logger *slog.Logger
}

// Participant extracts the gateway supplied identity into the request context.
func Participant(cfg ParticipantConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.SharedSecret != "" && r.Header.Get(HeaderGatewaySecret) != cfg.SharedSecret {
				cfg.Logger.Warn("invalid gateway secret",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				writeJSONError(w, http.StatusForbidden, "invalid gateway secret", "forbidden")
				return
			}

			id := r.Header.Get(HeaderParticipantID)
			if id == "" && cfg.Required {
				cfg.Logger.Warn("unauthenticated request",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
				)
				writeJSONError(w, http.StatusUnauthorized, "market participant required", "unauthorized")
				return
			}
			if id != "" {
				r = r.WithContext(WithParticipant(r.Context(), id))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// JSON Error Response
// =============================================================================

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}
