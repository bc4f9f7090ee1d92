// Package secrets seals tenant connection credentials before they reach a
// record store.
//
// A Sealer holds one 32-byte application key. For every tenant it derives a
// separate AES-256-GCM key with HKDF-SHA256, using the tenant id as salt, and
// binds the tenant id as additional authenticated data:
//
//	key, _ := secrets.ParseKey(os.Getenv("TENANTDB_APP_KEY"))
//	sealer, _ := secrets.NewSealer(key)
//	stored, _ := sealer.Seal("acme", "s3cr3t")  // "sealed:v1:..."
//	plain, _ := sealer.Open("acme", stored)
//
// Open passes values without the "sealed:v1:" prefix through unchanged.
//
// Errors: ErrInvalidAppKey, ErrEmptyTenantID, ErrEncryptionFailed,
// ErrDecryptionFailed, ErrInvalidCiphertext, ErrKeyDerivationFailed.
package secrets
