package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// GetMessageDigestOrSignature returns the hex-encoded SHA-256 HMAC of the
// message. Used to sign outbound webhook payloads (X-Hub-Signature-256).
func GetMessageDigestOrSignature(message, key []byte) (string, error) {
	mac := hmac.New(sha256.New, key)
	if _, err := mac.Write(message); err != nil {
		return "", err
	}
	return hex.EncodeToString(mac.Sum(nil)), nil
}
