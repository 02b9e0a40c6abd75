package keystore

import (
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
)

// JWKSet is the RFC 7517 key-set shape returned by GetJWKSet and served at
// /.well-known/jwks.json.
type JWKSet struct {
	Keys []json.RawMessage `json:"keys"`
}

// ConvertPEMToJWK converts a PEM-encoded public key into its RFC 7517 JWK
// representation, restricted to verification use.
func ConvertPEMToJWK(publicKeyPEM []byte, keyType KeyType, keyID string) (json.RawMessage, error) {
	key, err := jwk.ParseKey(publicKeyPEM, jwk.WithPEM(true))
	if err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}

	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}
	if err := key.Set(jwk.KeyOpsKey, jwk.KeyOperationList{jwk.KeyOpVerify}); err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}

	switch keyType {
	case KeyTypeRSA:
		if err := key.Set(jwk.AlgorithmKey, "RS256"); err != nil {
			return nil, apierror.Wrap(apierror.InternalError, err)
		}
	case KeyTypeEd25519:
		if err := key.Set(jwk.AlgorithmKey, "EdDSA"); err != nil {
			return nil, apierror.Wrap(apierror.InternalError, err)
		}
	default:
		return nil, apierror.NewWithDetails(apierror.InternalError, fmt.Sprintf("unsupported key type %s", keyType))
	}

	out, err := json.Marshal(key)
	if err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}
	return out, nil
}

// GetJWKSet returns the JWKS containing only active keys. Conversion
// failures are logged and skipped rather than failing the whole call.
func (s *Store) GetJWKSet() JWKSet {
	s.mu.RLock()
	keys := make([]*KeyPair, 0, len(s.keys))
	for _, kp := range s.keys {
		keys = append(keys, kp)
	}
	s.mu.RUnlock()

	set := JWKSet{Keys: make([]json.RawMessage, 0, len(keys))}
	for _, kp := range keys {
		if kp.Status != StatusActive {
			continue
		}
		raw, err := ConvertPEMToJWK(kp.PublicKey, kp.KeyType, kp.ID)
		if err != nil {
			s.log.Error(err, "skipping key in JWKS: conversion failed", "id", kp.ID)
			continue
		}
		set.Keys = append(set.Keys, raw)
	}
	return set
}
