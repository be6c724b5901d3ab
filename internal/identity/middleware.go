package identity

import (
	"context"
	"net/http"
	"strings"

	httperrors "github.com/WillSoph/top-game-score/pkg/http/errors"
)

type principalKey struct{}

// FromContext returns the principal a middleware resolved for this request.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// IntoContext stores a principal, for handlers and tests.
func IntoContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Middleware resolves the bearer token into a principal and rejects requests
// without one. Websocket clients may pass the token as a query parameter
// instead, since browsers cannot set headers on upgrade requests.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Missing bearer token")
			return
		}
		p, err := m.Verify(token)
		if err != nil {
			httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(IntoContext(r.Context(), p)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
