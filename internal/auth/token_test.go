package auth

import (
	"strings"
	"testing"
)

func TestHashAndVerifyToken(t *testing.T) {
	digest, err := HashToken("secret-token")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	if !strings.HasPrefix(digest, "pbkdf2$sha256$") {
		t.Fatalf("unexpected digest format %q", digest)
	}
	if err := VerifyToken(digest, "secret-token"); err != nil {
		t.Fatalf("expected token to verify: %v", err)
	}
	if err := VerifyToken(digest, "wrong-token"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyTokenRejectsMalformedDigests(t *testing.T) {
	cases := []string{
		"",
		"not-a-digest",
		"bcrypt$sha256$1$salt$key",
		"pbkdf2$sha256$zero$salt$key",
		"pbkdf2$sha256$1000$!!$key",
	}
	for _, digest := range cases {
		if err := VerifyToken(digest, "anything"); err == nil {
			t.Fatalf("expected error for digest %q", digest)
		}
	}
}

func TestGenerateToken(t *testing.T) {
	token, digest, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if token == "" || digest == "" {
		t.Fatal("expected non-empty token and digest")
	}
	if err := VerifyToken(digest, token); err != nil {
		t.Fatalf("generated pair should verify: %v", err)
	}
}
