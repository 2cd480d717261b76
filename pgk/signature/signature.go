// Package signature signs and verifies delivery bodies with HMAC-SHA256 over a shared token.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex encoded HMAC-SHA256 of body keyed by secret.
func Sign(body, secret string) string {
	return hex.EncodeToString(digest(body, secret))
}

// Verify recomputes the signature of body and compares it with sig in constant time.
// Only the canonical lower case hex form is accepted, so malformed, truncated or
// re-cased signatures are rejected.
func Verify(body, secret, sig string) bool {
	if len(sig) != hex.EncodedLen(sha256.Size) {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(Sign(body, secret)))
}

func digest(body, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return mac.Sum(nil)
}
