package venuea

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"
)

func testKeyPEM(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemText := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	return pemText, key
}

func TestNewSignerWithoutCredentials(t *testing.T) {
	t.Parallel()

	s, err := NewSigner("", "")
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	if s != nil {
		t.Error("NewSigner() with empty credentials should return nil")
	}
	if s.Enabled() {
		t.Error("nil signer reports Enabled() = true")
	}
}

func TestNewSignerAcceptsPKCS1(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemText := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))

	s, err := NewSigner("key-id", pemText)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	if !s.Enabled() {
		t.Error("signer not enabled")
	}
}

func TestNewSignerRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := NewSigner("key-id", "not a pem"); err == nil {
		t.Error("NewSigner() accepted non-PEM input")
	}
}

func TestHeadersSignatureVerifies(t *testing.T) {
	t.Parallel()

	pemText, key := testKeyPEM(t)
	s, err := NewSigner("key-id", pemText)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	const path = "/trade-api/v2/portfolio/orders"
	headers, err := s.Headers("POST", path)
	if err != nil {
		t.Fatalf("Headers() error = %v", err)
	}
	if headers["KALSHI-ACCESS-KEY"] != "key-id" {
		t.Errorf("key header = %q, want key-id", headers["KALSHI-ACCESS-KEY"])
	}

	sig, err := base64.StdEncoding.DecodeString(headers["KALSHI-ACCESS-SIGNATURE"])
	if err != nil {
		t.Fatalf("signature is not std base64: %v", err)
	}

	message := headers["KALSHI-ACCESS-TIMESTAMP"] + "POST" + path
	hash := sha256.Sum256([]byte(message))
	err = rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hash[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}
