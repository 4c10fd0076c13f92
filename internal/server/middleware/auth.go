package middleware

import (
	"net/http"
	"strings"

	"mobile-pairing/backend/internal/server/response"
)

// AccessValidator validates a bearer access token and returns the account ID.
type AccessValidator interface {
	ValidateAccess(token string) (accountID string, err error)
}

// RequireAccount rejects requests without a valid JWT access token and puts
// the account ID on the request context.
func RequireAccount(tokens AccessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				response.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			accountID, err := tokens.ValidateAccess(raw)
			if err != nil {
				response.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), accountID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
