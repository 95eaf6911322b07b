package algolab

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"strings"
	"testing"
)

// testAPIKey decodes to the 16 bytes of "0123456789abcdef".
const testAPIKey = "API-MDEyMzQ1Njc4OWFiY2RlZg=="

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(testAPIKey, "https://www.algolab.com.tr")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func TestNewSigner_RejectsBadKeys(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
	}{
		{"not base64", "API-%%%%"},
		{"wrong length", "API-" + base64.StdEncoding.EncodeToString([]byte("short"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSigner(tt.apiKey, "host"); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestChecker_Deterministic(t *testing.T) {
	s := newTestSigner(t)

	body := []byte(`{"symbol":"GARAN","lot":"10"}`)
	a := s.Checker("/api/SendOrder", body)
	b := s.Checker("/api/SendOrder", body)

	if a != b {
		t.Error("checker must be deterministic for identical input")
	}
	if len(a) != 64 {
		t.Errorf("checker length = %d, want 64 hex chars", len(a))
	}
	if a != strings.ToLower(a) {
		t.Error("checker must be lowercase hex")
	}
}

func TestChecker_SensitiveToInput(t *testing.T) {
	s := newTestSigner(t)

	base := s.Checker("/api/SendOrder", []byte(`{"lot":"10"}`))

	if s.Checker("/api/DeleteOrder", []byte(`{"lot":"10"}`)) == base {
		t.Error("checker must change with the endpoint")
	}
	if s.Checker("/api/SendOrder", []byte(`{"lot":"11"}`)) == base {
		t.Error("checker must change with the body")
	}
}

func TestEncrypt_RoundTrip(t *testing.T) {
	s := newTestSigner(t)

	for _, plaintext := range []string{"a", "user@example.com", "sixteen byte msg", "longer than one block of input"} {
		enc, err := s.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		if got := decryptCBC(t, s.aesKey, enc); got != plaintext {
			t.Errorf("round trip = %q, want %q", got, plaintext)
		}
	}
}

func TestEncrypt_EmptyRejected(t *testing.T) {
	s := newTestSigner(t)
	if _, err := s.Encrypt(""); err == nil {
		t.Error("empty plaintext must be rejected")
	}
}

func TestWipe_ClearsKeys(t *testing.T) {
	s := newTestSigner(t)
	s.Wipe()

	for _, b := range s.apiKey {
		if b != 0 {
			t.Fatal("api key not wiped")
		}
	}
	for _, b := range s.aesKey {
		if b != 0 {
			t.Fatal("aes key not wiped")
		}
	}
}

// decryptCBC reverses Encrypt for test verification.
func decryptCBC(t *testing.T, key []byte, b64 string) string {
	t.Helper()

	ct, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("decode ciphertext: %v", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}

	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, ct)

	pad := int(out[len(out)-1])
	if pad < 1 || pad > aes.BlockSize {
		t.Fatalf("bad padding byte %d", pad)
	}
	return string(out[:len(out)-pad])
}
