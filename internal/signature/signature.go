// Package signature checks the X-Hub-Signature-256 header WhatsApp puts on
// webhook deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const (
	Header = "X-Hub-Signature-256"
	prefix = "sha256="
)

// Sign returns the header value for body: "sha256=" followed by the
// lower-case hex HMAC-SHA256 of the exact bytes.
func Sign(body []byte, appSecret string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header is the signature of body under appSecret.
// body must be the raw request bytes, not a re-encoded copy. The comparison
// is constant time and bit exact.
func Verify(body []byte, header, appSecret string) bool {
	if header == "" || appSecret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(body, appSecret)), []byte(header))
}
