package auth

import (
	"net/http"
	"strings"
)

// Verifier checks bearer tokens presented on incoming requests.
type Verifier struct {
	digests []string
}

// NewVerifier accepts the configured token digests. An empty list disables
// authentication entirely, which suits local development and tests.
func NewVerifier(digests []string) *Verifier {
	cleaned := make([]string, 0, len(digests))
	for _, digest := range digests {
		if trimmed := strings.TrimSpace(digest); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return &Verifier{digests: cleaned}
}

// Enabled reports whether any token digest is configured.
func (v *Verifier) Enabled() bool { return len(v.digests) > 0 }

// Verify checks a plaintext token against every configured digest.
func (v *Verifier) Verify(token string) error {
	for _, digest := range v.digests {
		if VerifyToken(digest, token) == nil {
			return nil
		}
	}
	return ErrInvalidToken
}

// Middleware rejects requests without a valid bearer token. When no digests
// are configured every request passes through.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	if !v.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}
		if err := v.Verify(strings.TrimSpace(token)); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
