package ingest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func signHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func TestHMACVerifierAcceptsValidSignature(t *testing.T) {
	verifier := NewHMACVerifier()
	body := []byte(`{"type":"session.completed"}`)

	if err := verifier.Verify(context.Background(), body, signHex("secret", body), "secret"); err != nil {
		t.Fatalf("expected valid signature to verify: %v", err)
	}
}

func TestHMACVerifierRejectsBitFlip(t *testing.T) {
	verifier := NewHMACVerifier()
	body := []byte(`{"type":"session.completed"}`)
	signature := signHex("secret", body)

	flipped := make([]byte, len(body))
	copy(flipped, body)
	flipped[0] ^= 0x01

	if err := verifier.Verify(context.Background(), flipped, signature, "secret"); err == nil {
		t.Fatal("expected flipped payload to fail verification")
	}
}

func TestHMACVerifierRejectsWrongSecret(t *testing.T) {
	verifier := NewHMACVerifier()
	body := []byte(`{"type":"session.completed"}`)

	if err := verifier.Verify(context.Background(), body, signHex("secret", body), "other"); err == nil {
		t.Fatal("expected wrong secret to fail verification")
	}
}

func TestHMACVerifierFailsClosed(t *testing.T) {
	verifier := NewHMACVerifier()
	body := []byte(`{}`)

	if err := verifier.Verify(context.Background(), body, "", "secret"); err == nil {
		t.Fatal("expected empty signature to fail")
	}
	if err := verifier.Verify(context.Background(), body, signHex("secret", body), ""); err == nil {
		t.Fatal("expected empty secret to fail")
	}
	if err := verifier.Verify(context.Background(), body, "sha256=zz-not-hex", "secret"); err == nil {
		t.Fatal("expected malformed digest to fail")
	}
	if err := verifier.Verify(context.Background(), body, "md5=abcdef", "secret"); err == nil {
		t.Fatal("expected wrong prefix to fail")
	}
}

func TestHMACVerifierBase64Encoding(t *testing.T) {
	verifier := HMACVerifier{Encoding: "base64"}
	body := []byte(`{"type":"session.completed"}`)

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if err := verifier.Verify(context.Background(), body, signature, "secret"); err != nil {
		t.Fatalf("expected base64 signature to verify: %v", err)
	}
}
