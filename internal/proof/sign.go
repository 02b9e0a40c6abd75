package proof

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/keystore"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
)

// SignBytes signs data under keyType, returning a standard-base64
// signature. RSA uses SHA-256 with PKCS#1 v1.5; Ed25519 signs the bytes
// directly.
func SignBytes(data []byte, privateKeyPEM []byte, keyType keystore.KeyType) (string, error) {
	switch keyType {
	case keystore.KeyTypeRSA:
		key, err := parseRSAPrivateKey(privateKeyPEM)
		if err != nil {
			return "", err
		}
		digest := sha256.Sum256(data)
		sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
		if err != nil {
			return "", apierror.Wrap(apierror.InternalError, err)
		}
		return base64.StdEncoding.EncodeToString(sig), nil

	case keystore.KeyTypeEd25519:
		key, err := parseEd25519PrivateKey(privateKeyPEM)
		if err != nil {
			return "", err
		}
		sig := ed25519.Sign(key, data)
		return base64.StdEncoding.EncodeToString(sig), nil

	default:
		return "", apierror.NewWithDetails(apierror.CryptosuiteUnsupported, keyType)
	}
}

// VerifyBytes verifies a standard-base64 signature produced by SignBytes.
func VerifyBytes(data []byte, signatureB64 string, publicKeyPEM []byte, keyType keystore.KeyType) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, apierror.Wrap(apierror.SignatureInvalid, err)
	}

	switch keyType {
	case keystore.KeyTypeRSA:
		key, err := parseRSAPublicKey(publicKeyPEM)
		if err != nil {
			return false, err
		}
		digest := sha256.Sum256(data)
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err != nil {
			return false, nil
		}
		return true, nil

	case keystore.KeyTypeEd25519:
		key, err := parseEd25519PublicKey(publicKeyPEM)
		if err != nil {
			return false, err
		}
		return ed25519.Verify(key, data, sig), nil

	default:
		return false, apierror.NewWithDetails(apierror.CryptosuiteUnsupported, keyType)
	}
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, apierror.New(apierror.InternalError)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		if rsaKey, rsaErr := x509.ParsePKCS1PrivateKey(block.Bytes); rsaErr == nil {
			return rsaKey, nil
		}
		return nil, apierror.Wrap(apierror.InternalError, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, apierror.NewWithDetails(apierror.KeyTypeMismatch, "expected RSA private key")
	}
	return rsaKey, nil
}

func parseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, apierror.New(apierror.InternalError)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, apierror.NewWithDetails(apierror.KeyTypeMismatch, "expected RSA public key")
	}
	return rsaKey, nil
}

func parseEd25519PrivateKey(pemBytes []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, apierror.New(apierror.InternalError)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}
	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, apierror.NewWithDetails(apierror.KeyTypeMismatch, "expected Ed25519 private key")
	}
	return edKey, nil
}

func parseEd25519PublicKey(pemBytes []byte) (ed25519.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, apierror.New(apierror.InternalError)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}
	edKey, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, apierror.NewWithDetails(apierror.KeyTypeMismatch, "expected Ed25519 public key")
	}
	return edKey, nil
}
