package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// verifyHMACHex constant-time verifies body against a bare hex HMAC-SHA256
// signature (Linear's format) computed with secret.
func verifyHMACHex(secret []byte, body []byte, signatureHex string) bool {
	expected := hmacHex(secret, body)
	return hmac.Equal([]byte(expected), []byte(signatureHex))
}

// verifyHMACPrefixed constant-time verifies body against a "sha256=<hex>"
// signature (GitHub's and the generic-vendor format) computed with secret.
func verifyHMACPrefixed(secret []byte, body []byte, header string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	return verifyHMACHex(secret, body, strings.TrimPrefix(header, prefix))
}

func hmacHex(secret []byte, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
