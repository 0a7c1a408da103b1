package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	v, err := NewVault(key)
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	return v
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("expected 32 bytes, got %d", len(key))
	}
	key2, _ := GenerateKey()
	if bytes.Equal(key, key2) {
		t.Error("two keys should not be equal")
	}
}

func TestNewVaultRejectsBadKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := NewVault(make([]byte, n)); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("len %d: expected ErrInvalidKey, got %v", n, err)
		}
	}
}

func TestParseKey(t *testing.T) {
	raw := strings.Repeat("k", 32)
	key, err := ParseKey(raw)
	if err != nil || !bytes.Equal(key, []byte(raw)) {
		t.Fatalf("raw key: got %x, %v", key, err)
	}

	hexKey := strings.Repeat("ab", 32)
	key, err = ParseKey(hexKey)
	if err != nil || len(key) != 32 || key[0] != 0xab {
		t.Fatalf("hex key: got %x, %v", key, err)
	}

	if _, err := ParseKey(""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("empty key: expected ErrInvalidKey, got %v", err)
	}
	if _, err := ParseKey(strings.Repeat("z", 64)); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("non-hex 64 chars: expected ErrInvalidKey, got %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t)
	for _, p := range []string{"", "sk-proj-abc123", "sk-ant-api03-" + strings.Repeat("x", 90), "chave com acentuação ✓"} {
		secret, err := v.Encrypt(p)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		got, err := v.Decrypt(secret)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if got != p {
			t.Errorf("round trip mismatch: got %q, want %q", got, p)
		}
	}
}

func TestEncryptFormat(t *testing.T) {
	v := newTestVault(t)
	secret, err := v.Encrypt("sk-test")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	parts := strings.Split(secret, ":")
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d (%q)", len(parts), secret)
	}
	if len(parts[0]) != 24 {
		t.Errorf("expected 12-byte hex iv, got %q", parts[0])
	}
	if len(parts[1]) != len("sk-test")*2 {
		t.Errorf("expected ciphertext the size of the plaintext, got %q", parts[1])
	}
	if len(parts[2]) != 32 {
		t.Errorf("expected 16-byte hex tag, got %q", parts[2])
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	v := newTestVault(t)
	a, _ := v.Encrypt("same plaintext")
	b, _ := v.Encrypt("same plaintext")
	if a == b {
		t.Error("two encryptions of the same plaintext must differ")
	}
	if strings.Split(a, ":")[0] == strings.Split(b, ":")[0] {
		t.Error("nonce reused")
	}
}

func TestDecryptMalformed(t *testing.T) {
	v := newTestVault(t)
	good, _ := v.Encrypt("sk-test")
	parts := strings.Split(good, ":")

	cases := map[string]string{
		"empty":      "",
		"two parts":  parts[0] + ":" + parts[1],
		"four parts": good + ":00",
		"bad iv hex": "zz" + parts[0][2:] + ":" + parts[1] + ":" + parts[2],
		"short iv":   parts[0][:10] + ":" + parts[1] + ":" + parts[2],
		"bad ct hex": parts[0] + ":xyz:" + parts[2],
		"short tag":  parts[0] + ":" + parts[1] + ":" + parts[2][:8],
	}
	for name, secret := range cases {
		if _, err := v.Decrypt(secret); !errors.Is(err, ErrMalformedSecret) {
			t.Errorf("%s: expected ErrMalformedSecret, got %v", name, err)
		}
	}
}

func TestDecryptDetectsTampering(t *testing.T) {
	v := newTestVault(t)
	secret, _ := v.Encrypt("sk-original-key")
	parts := strings.Split(secret, ":")

	flip := func(hexStr string, i int) string {
		b, _ := hex.DecodeString(hexStr)
		b[i] ^= 0x01
		return hex.EncodeToString(b)
	}

	ctLen := len(parts[1]) / 2
	for i := 0; i < ctLen; i++ {
		tampered := parts[0] + ":" + flip(parts[1], i) + ":" + parts[2]
		if _, err := v.Decrypt(tampered); !errors.Is(err, ErrAuthenticationFailure) {
			t.Errorf("ciphertext byte %d: expected ErrAuthenticationFailure, got %v", i, err)
		}
	}
	for i := 0; i < 16; i++ {
		tampered := parts[0] + ":" + parts[1] + ":" + flip(parts[2], i)
		if _, err := v.Decrypt(tampered); !errors.Is(err, ErrAuthenticationFailure) {
			t.Errorf("tag byte %d: expected ErrAuthenticationFailure, got %v", i, err)
		}
	}
}

func TestDecryptWrongKey(t *testing.T) {
	v1 := newTestVault(t)
	v2 := newTestVault(t)
	secret, _ := v1.Encrypt("sk-test")
	if _, err := v2.Decrypt(secret); !errors.Is(err, ErrAuthenticationFailure) {
		t.Errorf("expected ErrAuthenticationFailure with wrong key, got %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	v := newTestVault(t)
	a := v.Fingerprint("sk-one")
	if a != v.Fingerprint("sk-one") {
		t.Error("fingerprint should be deterministic")
	}
	if a == v.Fingerprint("sk-two") {
		t.Error("different keys should have different fingerprints")
	}
	if len(a) != 12 {
		t.Errorf("expected 12 hex chars, got %q", a)
	}
	if strings.Contains(a, "sk-one") {
		t.Error("fingerprint leaks plaintext")
	}
}
