package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/newsanalyzer/internal/api/response"
	"github.com/kiranshivaraju/newsanalyzer/internal/auth"
)

// TokenCookie is the cookie browsers send the bearer token in.
const TokenCookie = "token"

// TokenVerifier resolves a bearer token to its owner.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// Auth provides JWT authentication middleware.
type Auth struct {
	verifier TokenVerifier
}

func NewAuth(v TokenVerifier) *Auth {
	return &Auth{verifier: v}
}

// Authenticate validates the token from the Authorization header or the token cookie and
// sets the owner in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid credentials")
			return
		}

		owner, err := a.verifier.Verify(token)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "Token expired"
			}
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetOwner(r.Context(), owner)))
	})
}

func extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
