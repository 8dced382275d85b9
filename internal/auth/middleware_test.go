package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewarePassthroughWhenDisabled(t *testing.T) {
	verifier := NewVerifier(nil)
	if verifier.Enabled() {
		t.Fatal("verifier with no digests should be disabled")
	}
	rr := httptest.NewRecorder()
	verifier.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected passthrough, got %d", rr.Code)
	}
}

func TestMiddlewareRequiresBearerToken(t *testing.T) {
	digest, err := HashToken("valid-token")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	verifier := NewVerifier([]string{digest})
	handler := verifier.Middleware(okHandler())

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic dXNlcg==", want: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer valid-token", want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestVerifierAcceptsAnyConfiguredDigest(t *testing.T) {
	first, err := HashToken("first")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	second, err := HashToken("second")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	verifier := NewVerifier([]string{first, second, "  "})
	if err := verifier.Verify("second"); err != nil {
		t.Fatalf("expected second token to verify: %v", err)
	}
	if err := verifier.Verify("third"); err == nil {
		t.Fatal("expected unknown token to fail")
	}
}
