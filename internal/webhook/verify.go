package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	gh "github.com/google/go-github/v61/github"
)

// Sign computes the X-Hub-Signature-256 value for a payload:
// "sha256=" + hex(HMAC-SHA256(secret, body)).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a claimed signature header against the raw request body and
// the webhook's stored secret using a constant-time comparison. The body must
// be the exact bytes as received; verification happens before any JSON
// re-serialization could alter them.
func Verify(signature string, body []byte, secret string) error {
	if err := gh.ValidateSignature(signature, body, []byte(secret)); err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	return nil
}

// NewSecret generates a random shared secret for webhook registration:
// 20 random bytes, hex encoded.
func NewSecret() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
