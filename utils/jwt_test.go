package utils

import "testing"

func TestServiceTokenRoundTrip(t *testing.T) {
	token, err := GenerateServiceToken("secret")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	claims, err := ParseServiceToken("secret", token)
	if err != nil {
		t.Fatalf("expected token to parse, got %v", err)
	}
	if claims.Subject != "admin" {
		t.Errorf("expected subject admin, got %s", claims.Subject)
	}
}

func TestServiceTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateServiceToken("secret")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if _, err := ParseServiceToken("other-secret", token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestServiceTokenRejectsGarbage(t *testing.T) {
	if _, err := ParseServiceToken("secret", "not-a-token"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
}
