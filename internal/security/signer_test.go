package security_test

import (
	"testing"

	"github.com/Rrens/mattressai-engine/internal/security"
)

func TestSignPayload_Verify(t *testing.T) {
	body := []byte(`{"tenant":"shop.myshopify.com","sessionId":"abc","intentScore":80}`)
	sig := security.SignPayload("whsec", body)

	if sig == "" {
		t.Fatal("signature is empty")
	}
	if !security.VerifyPayload("whsec", body, sig) {
		t.Error("expected signature to verify")
	}
	if security.VerifyPayload("other", body, sig) {
		t.Error("expected signature with wrong secret to fail")
	}
	if security.VerifyPayload("whsec", append(body, ' '), sig) {
		t.Error("expected signature over modified body to fail")
	}
	if security.VerifyPayload("whsec", body, "not-base64!!") {
		t.Error("expected malformed signature to fail")
	}
}

func TestSignPayload_KnownVector(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	got := security.SignPayload("key", []byte("The quick brown fox jumps over the lazy dog"))
	want := "97yD9DBThCSxMpjmqm+xQ+9NWaFJRhdZl0edvC0aPNg="
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !security.ConstantTimeEqual("cron-secret", "cron-secret") {
		t.Error("expected equal secrets to match")
	}
	if security.ConstantTimeEqual("cron-secret", "cron-secreT") {
		t.Error("expected different secrets not to match")
	}
}
