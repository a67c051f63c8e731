package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
)

// Fingerprint returns a short, stable, non-reversible tag for a secret.
// Log this instead of the bearer token itself.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(sum[:6])
}
