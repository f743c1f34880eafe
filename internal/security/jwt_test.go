package security_test

import (
	"testing"
	"time"

	"github.com/Rrens/mattressai-engine/internal/security"
)

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	accessToken, err := manager.GenerateAccessToken("staff-1", "shop.myshopify.com")
	if err != nil {
		t.Fatalf("failed to generate access token: %v", err)
	}

	if accessToken == "" {
		t.Error("access token is empty")
	}

	claims, err := manager.ValidateAccessToken(accessToken)
	if err != nil {
		t.Fatalf("failed to validate access token: %v", err)
	}

	if claims.Tenant != "shop.myshopify.com" {
		t.Errorf("tenant mismatch: got %v, want %v", claims.Tenant, "shop.myshopify.com")
	}

	if claims.Subject != "staff-1" {
		t.Errorf("subject mismatch: got %v, want %v", claims.Subject, "staff-1")
	}
}

func TestJWTManager_RequiresTenant(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	if _, err := manager.GenerateAccessToken("staff-1", ""); err == nil {
		t.Error("expected error for empty tenant")
	}
}

func TestJWTManager_WrongSecret(t *testing.T) {
	manager1 := security.NewJWTManager("secret-one-with-enough-length!!", 15*time.Minute)
	manager2 := security.NewJWTManager("secret-two-with-enough-length!!", 15*time.Minute)

	token, _ := manager1.GenerateAccessToken("staff-1", "shop.myshopify.com")

	if _, err := manager2.ValidateAccessToken(token); err == nil {
		t.Error("expected error for token signed with a different secret")
	}
}

func TestJWTManager_Expired(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", -time.Minute)

	token, err := manager.GenerateAccessToken("staff-1", "shop.myshopify.com")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := manager.ValidateAccessToken(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestJWTManager_InvalidToken(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	invalidTokens := []string{
		"",
		"invalid",
		"invalid.token.here",
	}

	for _, token := range invalidTokens {
		if _, err := manager.ValidateAccessToken(token); err == nil {
			t.Errorf("expected error for invalid token %q", token)
		}
	}
}
