package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Request headers carrying the signature inputs.
const (
	HeaderSignature = "X-Slack-Signature"
	HeaderTimestamp = "X-Slack-Request-Timestamp"
)

const signatureVersion = "v0"

// VerifySignature reports whether signature is the v0 HMAC-SHA256 of the raw
// request body under secret. The body is used exactly as received. Request
// age is not checked.
func VerifySignature(secret, timestamp, signature string, body []byte) bool {
	if secret == "" || timestamp == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}

// Sign returns the signature Slack sends for body.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}
