package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MasterKeySize is the length of a freshly generated master key file.
const MasterKeySize = 32

// sealInfo binds derived keys to this use so the same master key can't be
// replayed against some other sealed format.
const sealInfo = "busfare/session-store/v1"

var (
	// ErrCiphertextTooShort is returned for inputs shorter than a nonce.
	ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")

	// ErrOpen is returned when authentication of a sealed value fails.
	ErrOpen = errors.New("cryptox: unable to open sealed value")
)

// Sealer encrypts small values at rest with XChaCha20-Poly1305.
// The output format is: [24-byte nonce][ciphertext][16-byte tag].
type Sealer struct {
	key []byte
}

// NewSealer derives a 32-byte key from arbitrary master key material.
func NewSealer(material []byte) (*Sealer, error) {
	if len(material) == 0 {
		return nil, errors.New("cryptox: empty master key material")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, material, nil, []byte(sealInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return &Sealer{key: key}, nil
}

// Seal encrypts plaintext. additional is authenticated but not encrypted;
// callers pass the storage key so values can't be swapped between rows.
func (s *Sealer) Seal(plaintext, additional []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, additional), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed, additional []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, additional)
	if err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}

// LoadMasterKey resolves master key material, in order, from the file at
// path, from the env variable named by envKey, or by creating a new random
// key file at path (mode 0600). An empty path with no env value is an error.
func LoadMasterKey(path, envKey string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			material := []byte(strings.TrimSpace(string(data)))
			if len(material) == 0 {
				return nil, fmt.Errorf("master key file %s is empty", path)
			}
			return material, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
	}

	if envKey != "" {
		if v := os.Getenv(envKey); v != "" {
			return []byte(v), nil
		}
	}

	if path == "" {
		return nil, errors.New("no master key configured")
	}

	return createKeyFile(path)
}

func createKeyFile(path string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	raw := make([]byte, MasterKeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	material := []byte(fmt.Sprintf("%x", raw))

	if err := os.WriteFile(path, material, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write master key file: %w", err)
	}
	return material, nil
}
