package secrets

import "errors"

var (
	ErrInvalidAppKey       = errors.New("secrets: invalid app key: must be 32 bytes")
	ErrEmptyTenantID       = errors.New("secrets: tenant id is required for key derivation")
	ErrEncryptionFailed    = errors.New("secrets: encryption failed")
	ErrDecryptionFailed    = errors.New("secrets: decryption failed")
	ErrInvalidCiphertext   = errors.New("secrets: invalid ciphertext format")
	ErrKeyDerivationFailed = errors.New("secrets: key derivation failed")
)
