package token

import (
	"testing"
	"time"
)

func TestGenerateVerify(t *testing.T) {
	secret := []byte("secret")
	tok, err := Generate("tenant1", "principal1", secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	cl, err := Verify(tok, secret, time.Minute)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if cl.TenantID != "tenant1" || cl.PrincipalID != "principal1" {
		t.Fatalf("unexpected claims: %+v", cl)
	}
}

func TestVerifyExpired(t *testing.T) {
	secret := []byte("s")
	tok, err := Generate("tenant1", "principal1", secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := Verify(tok, secret, time.Millisecond); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyInvalid(t *testing.T) {
	secret := []byte("s")
	tok, _ := Generate("tenant1", "principal1", secret)
	if _, err := Verify(tok+"x", secret, time.Minute); err != ErrInvalid {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	tok, err := Generate("tenant1", "principal1", []byte("s1"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Verify(tok, []byte("s2"), time.Minute); err != ErrInvalid {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestSignVerifySignature(t *testing.T) {
	secret := []byte("webhook-secret")
	body := []byte(`{"event":"workflow_step_completed"}`)
	sig := Sign(body, secret)
	if !VerifySignature(body, sig, secret) {
		t.Fatalf("expected signature to verify")
	}
	if VerifySignature([]byte(`{"event":"tampered"}`), sig, secret) {
		t.Fatalf("expected tampered body to fail verification")
	}
	if VerifySignature(body, sig, []byte("wrong-secret")) {
		t.Fatalf("expected wrong secret to fail verification")
	}
}

func TestVerifySignatureMalformedHex(t *testing.T) {
	if VerifySignature([]byte("body"), "not-hex!!", []byte("secret")) {
		t.Fatalf("expected malformed signature to fail verification")
	}
}
