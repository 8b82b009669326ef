package venuea

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strconv"
	"time"
)

// Signer produces the RSA-PSS request signatures venue A expects on
// portfolio endpoints. Market reads are unauthenticated and skip it.
type Signer struct {
	keyID      string
	privateKey *rsa.PrivateKey
}

// NewSigner parses an RSA private key from PEM text and returns a Signer.
// Returns (nil, nil) when keyID or pemText is empty, so scan-only runs work
// without credentials. Literal "\n" escapes are expected to be resolved by
// the config layer before the PEM reaches here.
func NewSigner(keyID, pemText string) (*Signer, error) {
	if keyID == "" || pemText == "" {
		return nil, nil
	}

	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	// Try PKCS#8 first, fall back to PKCS#1.
	var rsaKey *rsa.PrivateKey
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		var ok bool
		rsaKey, ok = parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA (got %T)", parsed)
		}
	} else if pk1, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		rsaKey = pk1
	} else {
		return nil, fmt.Errorf("parse private key: not PKCS#8 or PKCS#1")
	}

	return &Signer{keyID: keyID, privateKey: rsaKey}, nil
}

// Enabled reports whether this signer has credentials loaded.
func (s *Signer) Enabled() bool {
	return s != nil && s.keyID != ""
}

// Headers returns the three auth headers for one request. The path must be
// the full signed path including the API prefix. The request body never
// enters the signature.
func (s *Signer) Headers(method, path string) (map[string]string, error) {
	ts, sig, err := s.sign(method, path)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"KALSHI-ACCESS-KEY":       s.keyID,
		"KALSHI-ACCESS-SIGNATURE": sig,
		"KALSHI-ACCESS-TIMESTAMP": ts,
	}, nil
}

func (s *Signer) sign(method, path string) (timestamp, signature string, err error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))

	sig, err := rsa.SignPSS(rand.Reader, s.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", "", fmt.Errorf("rsa sign pss: %w", err)
	}

	return ts, base64.StdEncoding.EncodeToString(sig), nil
}
