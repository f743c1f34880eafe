package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignatureHeader carries the webhook body signature
const SignatureHeader = "X-Signature"

// TenantHeader names the tenant a webhook was sent for
const TenantHeader = "X-Tenant"

// SignPayload returns base64(HMAC-SHA256(secret, body))
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyPayload checks a signature produced by SignPayload in constant time
func VerifyPayload(secret string, body []byte, signature string) bool {
	expected, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// ConstantTimeEqual compares two secrets without leaking timing
func ConstantTimeEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
