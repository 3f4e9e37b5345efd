package ingest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const SignaturePrefix = "sha256="

// Verifier authenticates an inbound delivery body against its signature
// header. Implementations must fail closed: missing or malformed input is a
// verification failure, never a pass.
type Verifier interface {
	Verify(ctx context.Context, body []byte, signature string, secret string) error
}

// HMACVerifier checks an HMAC-SHA256 signature over the raw request body.
// The header value carries an optional prefix ("sha256=") and a hex or
// base64 digest depending on Encoding.
type HMACVerifier struct {
	Prefix   string
	Encoding string // hex | base64
}

func NewHMACVerifier() HMACVerifier {
	return HMACVerifier{Prefix: SignaturePrefix, Encoding: "hex"}
}

func (v HMACVerifier) Verify(_ context.Context, body []byte, signature string, secret string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("ingest: signature header is required")
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fmt.Errorf("ingest: signature secret is required")
	}
	if prefix := strings.TrimSpace(v.Prefix); prefix != "" {
		if !strings.HasPrefix(signature, prefix) {
			return fmt.Errorf("ingest: signature verification failed")
		}
		signature = strings.TrimSpace(strings.TrimPrefix(signature, prefix))
	}
	if signature == "" {
		return fmt.Errorf("ingest: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := mac.Sum(nil)

	var decoded []byte
	var err error
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
	default:
		decoded, err = hex.DecodeString(signature)
	}
	if err != nil {
		return fmt.Errorf("ingest: decode signature: %w", err)
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("ingest: signature verification failed")
	}
	return nil
}

var _ Verifier = HMACVerifier{}
