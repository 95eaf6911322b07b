// Package algolab is the broker gateway: request signing, the REST client,
// the session manager, and the websocket stream workers for execution
// reports and last-trade prices.
package algolab

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Signer produces the integrity and credential material AlgoLab requires:
// a SHA-256 "Checker" header over every authenticated request and
// AES-128-CBC encryption of login credentials.
// Keys are held as []byte so they can be wiped.
type Signer struct {
	apiKey   []byte
	aesKey   []byte
	hostname string
}

// NewSigner builds a signer from the configured API key. The AES key is the
// base64-decoded key material after the "API-" prefix.
func NewSigner(apiKey, hostname string) (*Signer, error) {
	code := strings.TrimPrefix(apiKey, "API-")
	aesKey, err := base64.StdEncoding.DecodeString(code)
	if err != nil {
		return nil, fmt.Errorf("decode api key: %w", err)
	}
	if len(aesKey) != 16 {
		return nil, fmt.Errorf("api key must decode to 16 bytes, got %d", len(aesKey))
	}
	return &Signer{
		apiKey:   []byte(apiKey),
		aesKey:   aesKey,
		hostname: hostname,
	}, nil
}

// Wipe clears the key material from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	wipe(s.apiKey)
	wipe(s.aesKey)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// APIKey returns the plain API key for the APIKEY request header.
func (s *Signer) APIKey() string {
	return string(s.apiKey)
}

// Checker computes the request integrity hash:
// SHA256(apiKey + hostname + endpoint + body) as lowercase hex.
// body must already be compact JSON with no whitespace.
func (s *Signer) Checker(endpoint string, body []byte) string {
	h := sha256.New()
	h.Write(s.apiKey)
	h.Write([]byte(s.hostname))
	h.Write([]byte(endpoint))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Encrypt encrypts a credential field with AES-128-CBC, zero IV, PKCS#7
// padding, and returns it base64-encoded. This is the scheme the login
// endpoints expect for username, password, and token fields.
func (s *Signer) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("cannot encrypt empty value")
	}

	block, err := aes.NewCipher(s.aesKey)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))

	iv := make([]byte, aes.BlockSize) // the API mandates a zero IV
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}
