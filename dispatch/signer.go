package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	SignaturePrefix = "sha256="

	HeaderSignature  = "Metorial-Signature"
	HeaderEventID    = "Metorial-Event-Id"
	HeaderCallbackID = "Metorial-Callback-Id"
)

// SignBody computes the delivery signature for a rendered body:
// "sha256=" + hex(HMAC-SHA256(secret, body)).
func SignBody(secret string, body []byte) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", fmt.Errorf("dispatch: signing secret is required")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil)), nil
}
