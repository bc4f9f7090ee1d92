package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// sealedPrefix marks values produced by Seal.
const sealedPrefix = "sealed:v1:"

// Sealer encrypts tenant connection credentials at rest. Every tenant gets
// its own key derived from the application key; the tenant id is also bound
// as additional data so a sealed value cannot be moved to another tenant.
type Sealer struct {
	appKey []byte
}

// NewSealer creates a sealer for a 32-byte application key.
func NewSealer(appKey []byte) (*Sealer, error) {
	if err := ValidateKey(appKey); err != nil {
		return nil, err
	}
	key := make([]byte, KeySize)
	copy(key, appKey)
	return &Sealer{appKey: key}, nil
}

// IsSealed reports whether s looks like a value produced by Seal.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, sealedPrefix)
}

// Seal encrypts plaintext for tenantID. Empty input stays empty.
func (s *Sealer) Seal(tenantID, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := s.aead(tenantID)
	if err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}

	// nonce || ciphertext || tag
	out := aead.Seal(nonce, nonce, []byte(plaintext), []byte(tenantID))
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value sealed for tenantID. Values without the sealed
// prefix are returned unchanged, so records written before sealing was
// enabled keep working.
func (s *Sealer) Open(tenantID, sealed string) (string, error) {
	if !IsSealed(sealed) {
		return sealed, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}

	aead, err := s.aead(tenantID)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(tenantID))
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

func (s *Sealer) aead(tenantID string) (cipher.AEAD, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}
	key, err := deriveKey(s.appKey, tenantID)
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
