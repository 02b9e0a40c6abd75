// Package keystore implements key lifecycle, persistence, rotation, and
// JWK/JWKS publication.
package keystore

import "time"

// KeyType identifies the asymmetric algorithm family of a KeyPair.
type KeyType string

const (
	KeyTypeRSA     KeyType = "RSA"
	KeyTypeEd25519 KeyType = "Ed25519"
)

// Cryptosuite identifies the Data Integrity cryptosuite a key signs under.
// The mapping to KeyType is fixed.
type Cryptosuite string

const (
	CryptosuiteRSASHA256     Cryptosuite = "rsa-sha256"
	CryptosuiteEd25519_2020  Cryptosuite = "ed25519-2020"
	CryptosuiteEdDSARDFC2022 Cryptosuite = "eddsa-rdfc-2022"
)

// CryptosuiteKeyType returns the KeyType a cryptosuite requires, or ("",
// false) for an unrecognized cryptosuite.
func CryptosuiteKeyType(cs Cryptosuite) (KeyType, bool) {
	switch cs {
	case CryptosuiteRSASHA256:
		return KeyTypeRSA, true
	case CryptosuiteEd25519_2020, CryptosuiteEdDSARDFC2022:
		return KeyTypeEd25519, true
	default:
		return "", false
	}
}

// DefaultCryptosuite returns the cryptosuite this store assigns new keys of
// keyType.
func DefaultCryptosuite(keyType KeyType) Cryptosuite {
	switch keyType {
	case KeyTypeEd25519:
		return CryptosuiteEd25519_2020
	default:
		return CryptosuiteRSASHA256
	}
}

// Status is the lifecycle state of a KeyPair.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusRevoked  Status = "revoked"
)

// DefaultKeyID is the one key that always exists after Initialize.
const DefaultKeyID = "default"

// KeyPair is a persisted signing key with its lifecycle metadata.
type KeyPair struct {
	ID          string      `json:"-"`
	PublicKey   []byte      `json:"-"` // PEM
	PrivateKey  []byte      `json:"-"` // PEM
	KeyType     KeyType     `json:"keyType"`
	Cryptosuite Cryptosuite `json:"cryptosuite"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created"`
	RotatedAt   *time.Time  `json:"rotatedAt,omitempty"`
	ExpiresAt   *time.Time  `json:"expiresAt,omitempty"`
}

// StatusInfo summarizes a key's lifecycle state for GetKeyStatusInfo.
type StatusInfo struct {
	ID          string      `json:"id"`
	KeyType     KeyType     `json:"keyType"`
	Cryptosuite Cryptosuite `json:"cryptosuite"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created"`
	RotatedAt   *time.Time  `json:"rotatedAt,omitempty"`
}
