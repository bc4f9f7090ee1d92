package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required size of the application key (AES-256).
	KeySize = 32

	// derivationInfo separates credential keys from any other use of the app key.
	derivationInfo = "tenantdb-credentials-v1"
)

// ValidateKey checks the application key length.
func ValidateKey(appKey []byte) error {
	if len(appKey) != KeySize {
		return ErrInvalidAppKey
	}
	return nil
}

// ParseKey decodes an application key given as hex or standard base64.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Join(ErrInvalidAppKey, err)
	}
	if err := ValidateKey(b); err != nil {
		return nil, err
	}
	return b, nil
}

// deriveKey derives the tenant's credential key from the app key with HKDF,
// salted by the tenant id. Callers clear the returned key after use.
func deriveKey(appKey []byte, tenantID string) ([]byte, error) {
	r := hkdf.New(sha256.New, appKey, []byte(tenantID), []byte(derivationInfo))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	return key, nil
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GenerateKey creates a new random application key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
