package auth

import (
	"testing"
)

func TestSignAndVerifyToken(t *testing.T) {
	svc := NewJWTService("test-secret")

	token, err := svc.SignToken("alice")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	claims, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("username: got %q want %q", claims.Username, "alice")
	}
}

func TestVerifyToken_wrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-one").SignToken("alice")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := NewJWTService("secret-two").VerifyToken(token); err == nil {
		t.Error("token signed with a different secret should not verify")
	}
}

func TestVerifyToken_garbage(t *testing.T) {
	svc := NewJWTService("test-secret")
	for _, tok := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		if _, err := svc.VerifyToken(tok); err == nil {
			t.Errorf("token %q should not verify", tok)
		}
	}
}

func TestVerifyToken_missingSubject(t *testing.T) {
	svc := NewJWTService("test-secret")
	token, err := svc.SignToken("")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := svc.VerifyToken(token); err == nil {
		t.Error("token without a subject should not verify")
	}
}
