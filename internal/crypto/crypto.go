package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the required vault key length in bytes (AES-256).
const KeySize = 32

const (
	nonceSize = 12
	tagSize   = 16

	fingerprintContext = "chatgateway-key-fingerprint-v1"
)

var (
	// ErrInvalidKey is returned when the vault key is absent or not 256 bits.
	ErrInvalidKey = errors.New("encryption key must be exactly 32 bytes")
	// ErrMalformedSecret is returned when an encrypted secret is not iv:ciphertext:tag hex.
	ErrMalformedSecret = errors.New("malformed encrypted secret")
	// ErrAuthenticationFailure is returned when the GCM tag does not verify.
	ErrAuthenticationFailure = errors.New("encrypted secret failed authentication")
)

// GenerateKey returns a fresh random 32-byte vault key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating vault key: %w", err)
	}
	return key, nil
}

// ParseKey turns the configured ENCRYPTION_KEY value into key bytes.
// It accepts a raw 32-character string or 64 hex characters.
func ParseKey(s string) ([]byte, error) {
	switch len(s) {
	case KeySize:
		return []byte(s), nil
	case KeySize * 2:
		key, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return key, nil
	}
	return nil, ErrInvalidKey
}

// deriveKey derives a purpose-bound subkey from the vault key using HKDF-SHA256.
func deriveKey(key []byte, context string) ([]byte, error) {
	sub := make([]byte, KeySize)
	r := hkdf.New(sha256.New, key, nil, []byte(context))
	if _, err := io.ReadFull(r, sub); err != nil {
		return nil, fmt.Errorf("deriving subkey: %w", err)
	}
	return sub, nil
}

// Vault encrypts and decrypts provider API keys at rest.
// It holds no mutable state and is safe for concurrent use.
type Vault struct {
	aead  cipher.AEAD
	fpKey []byte
}

// NewVault builds a Vault around a 256-bit key.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	fpKey, err := deriveKey(key, fingerprintContext)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: gcm, fpKey: fpKey}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns hex(iv):hex(ciphertext):hex(tag).
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ct) + ":" + hex.EncodeToString(tag), nil
}

// Decrypt verifies and opens a secret produced by Encrypt.
func (v *Vault) Decrypt(secret string) (string, error) {
	parts := strings.Split(secret, ":")
	if len(parts) != 3 {
		return "", ErrMalformedSecret
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", ErrMalformedSecret
	}
	ct, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformedSecret
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformedSecret
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuthenticationFailure
	}
	return string(plaintext), nil
}

// Fingerprint returns a short stable identifier for a plaintext credential.
// It is safe to log; it cannot be reversed without the vault key.
func (v *Vault) Fingerprint(plaintext string) string {
	mac := hmac.New(sha256.New, v.fpKey)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil)[:6])
}
