package venueb

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"crossarb/internal/config"
)

// Throwaway key, address 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266.
const testWalletKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testWalletAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func testAuthConfig() config.VenueBConfig {
	return config.VenueBConfig{
		ChainID:       137,
		SignatureType: 2,
		PrivateKey:    testWalletKey,
		FunderAddress: "0x1111111111111111111111111111111111111111",
		APIKey:        "key-1",
		APISecret:     "c2VjcmV0LXNlY3JldC1zZWNyZXQ=",
		APIPassphrase: "pass-1",
	}
}

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	auth, err := NewAuth(testAuthConfig())
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return auth
}

func TestNewAuthDerivesAddress(t *testing.T) {
	t.Parallel()

	auth := newTestAuth(t)
	if got := auth.Address().Hex(); got != testWalletAddress {
		t.Fatalf("address = %s, want %s", got, testWalletAddress)
	}
	if got := auth.FunderAddress().Hex(); got == testWalletAddress {
		t.Fatal("funder should be the configured proxy, not the EOA")
	}
	if !auth.HasL2Credentials() {
		t.Fatal("expected configured credentials to be present")
	}
}

func TestNewAuthDefaultsFunderToEOA(t *testing.T) {
	t.Parallel()

	cfg := testAuthConfig()
	cfg.FunderAddress = ""
	auth, err := NewAuth(cfg)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	if auth.FunderAddress() != auth.Address() {
		t.Fatalf("funder = %s, want the EOA %s", auth.FunderAddress().Hex(), auth.Address().Hex())
	}
}

func TestNewAuthRejectsBadKey(t *testing.T) {
	t.Parallel()

	cfg := testAuthConfig()
	cfg.PrivateKey = "0xnothex"
	if _, err := NewAuth(cfg); err == nil {
		t.Fatal("expected an error for a malformed key")
	}
}

func TestL1HeadersSignatureRecoversSigner(t *testing.T) {
	t.Parallel()

	auth := newTestAuth(t)
	headers, err := auth.L1Headers(0)
	if err != nil {
		t.Fatalf("L1Headers: %v", err)
	}

	for _, key := range []string{"POLY_ADDRESS", "POLY_SIGNATURE", "POLY_TIMESTAMP", "POLY_NONCE"} {
		if headers[key] == "" {
			t.Fatalf("missing header %s", key)
		}
	}
	if headers["POLY_ADDRESS"] != testWalletAddress {
		t.Fatalf("POLY_ADDRESS = %s, want %s", headers["POLY_ADDRESS"], testWalletAddress)
	}

	// Rebuild the attestation hash and recover the signer from the
	// signature header.
	typedData := apitypes.TypedData{
		Domain: apitypes.TypedDataDomain{
			Name:    "ClobAuthDomain",
			Version: "1",
			ChainId: (*ethmath.HexOrDecimal256)(big.NewInt(137)),
		},
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ClobAuth": {
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Message: apitypes.TypedDataMessage{
			"address":   testWalletAddress,
			"timestamp": headers["POLY_TIMESTAMP"],
			"nonce":     headers["POLY_NONCE"],
			"message":   "This message attests that I control the given wallet",
		},
	}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		t.Fatalf("TypedDataAndHash: %v", err)
	}

	sig := common.FromHex(headers["POLY_SIGNATURE"])
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("signature V = %d, want 27 or 28", sig[64])
	}
	sig[64] -= 27

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if recovered := crypto.PubkeyToAddress(*pub).Hex(); recovered != testWalletAddress {
		t.Fatalf("recovered signer = %s, want %s", recovered, testWalletAddress)
	}
}

func TestL2HeadersCarryCredentials(t *testing.T) {
	t.Parallel()

	auth := newTestAuth(t)
	headers, err := auth.L2Headers("POST", "/order", `{"a":1}`)
	if err != nil {
		t.Fatalf("L2Headers: %v", err)
	}

	if headers["POLY_API_KEY"] != "key-1" {
		t.Fatalf("POLY_API_KEY = %s", headers["POLY_API_KEY"])
	}
	if headers["POLY_PASSPHRASE"] != "pass-1" {
		t.Fatalf("POLY_PASSPHRASE = %s", headers["POLY_PASSPHRASE"])
	}
	sig := headers["POLY_SIGNATURE"]
	if sig == "" {
		t.Fatal("missing POLY_SIGNATURE")
	}
	// HMAC signatures are url-safe base64.
	if strings.ContainsAny(sig, "+/") {
		t.Fatalf("signature %q is not url-safe base64", sig)
	}
}

func TestBuildHMACIsDeterministic(t *testing.T) {
	t.Parallel()

	auth := newTestAuth(t)
	a, err := auth.buildHMAC("1700000000", "POST", "/order", `{"x":true}`)
	if err != nil {
		t.Fatalf("buildHMAC: %v", err)
	}
	b, err := auth.buildHMAC("1700000000", "POST", "/order", `{"x":true}`)
	if err != nil {
		t.Fatalf("buildHMAC: %v", err)
	}
	if a != b {
		t.Fatalf("same inputs produced %q and %q", a, b)
	}

	c, err := auth.buildHMAC("1700000000", "POST", "/order", `{"x":false}`)
	if err != nil {
		t.Fatalf("buildHMAC: %v", err)
	}
	if a == c {
		t.Fatal("different bodies produced the same signature")
	}
}

func TestSignOrderChangesWithExchangeContract(t *testing.T) {
	t.Parallel()

	auth := newTestAuth(t)
	data := orderData{
		Salt:        big.NewInt(12345),
		TokenID:     big.NewInt(777),
		MakerAmount: big.NewInt(2450000),
		TakerAmount: big.NewInt(5000000),
		Side:        sideBuy,
	}

	sig, err := auth.SignOrder(data)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	again, err := auth.SignOrder(data)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	if sig != again {
		t.Fatal("same order produced different signatures")
	}
	if !strings.HasPrefix(sig, "0x") || len(sig) != 132 {
		t.Fatalf("signature %q is not a 65-byte hex string", sig)
	}

	data.NegRisk = true
	negSig, err := auth.SignOrder(data)
	if err != nil {
		t.Fatalf("SignOrder neg-risk: %v", err)
	}
	if negSig == sig {
		t.Fatal("neg-risk order signed against the same contract domain")
	}
}

func TestNewSaltFitsUint64(t *testing.T) {
	t.Parallel()

	for i := 0; i < 32; i++ {
		salt, err := newSalt()
		if err != nil {
			t.Fatalf("newSalt: %v", err)
		}
		if !salt.IsUint64() {
			t.Fatalf("salt %s exceeds uint64", salt)
		}
	}
}
