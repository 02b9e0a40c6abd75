package proof_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/keystore"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/proof"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/logger"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/model"
)

func newTestEngine(t *testing.T) (*proof.Engine, *keystore.Store) {
	t.Helper()
	dir := t.TempDir()
	log, err := logger.New("test", "", false)
	require.NoError(t, err)
	store := keystore.New(dir, log)
	require.NoError(t, store.Initialize())
	return proof.New(store, "https://issuer.example.edu", 0), store
}

func sampleAssertion() *model.Assertion {
	return &model.Assertion{
		ID:                "urn:uuid:11111111-1111-1111-1111-111111111111",
		Type:              []string{"VerifiableCredential", "OpenBadgeCredential"},
		Issuer:            "https://issuer.example.edu",
		IssuedOn:          "2026-01-01T00:00:00Z",
		CredentialSubject: map[string]any{"id": "did:example:recipient"},
		BadgeClass:        "urn:uuid:badge-1",
		Recipient:         map[string]any{"identity": "recipient@example.edu", "type": "email"},
	}
}

func TestDataIntegrityProofRoundTrip(t *testing.T) {
	eng, store := newTestEngine(t)
	_, err := store.GenerateKeyPair("ed-key", keystore.KeyTypeEd25519)
	require.NoError(t, err)

	a := sampleAssertion()
	p, err := eng.CreateDataIntegrityProof(a, "ed-key")
	require.NoError(t, err)
	assert.Equal(t, "DataIntegrityProof", p.ProofType)
	assert.NotEmpty(t, p.ProofValue)
	assert.Contains(t, p.VerificationMethod, "/public-keys/ed-key")

	raw, err := marshalProof(p)
	require.NoError(t, err)
	a.Verification = raw

	res, err := eng.Verify(a)
	require.NoError(t, err)
	assert.Equal(t, string(model.DataIntegrityKind), string(model.DataIntegrityKind))
	assert.NotEmpty(t, res.VerificationMethod)
}

func TestDataIntegrityProofTamperedFails(t *testing.T) {
	eng, store := newTestEngine(t)
	_, err := store.GenerateKeyPair("rsa-key", keystore.KeyTypeRSA)
	require.NoError(t, err)

	a := sampleAssertion()
	p, err := eng.CreateDataIntegrityProof(a, "rsa-key")
	require.NoError(t, err)

	raw, err := marshalProof(p)
	require.NoError(t, err)
	a.Verification = raw
	a.BadgeClass = "urn:uuid:different-badge"

	_, err = eng.Verify(a)
	require.Error(t, err)
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok)
	assert.Equal(t, apierror.SignatureVerificationFailed, apiErr.Kind)
}

func TestJWTProofRoundTrip(t *testing.T) {
	eng, store := newTestEngine(t)
	_, err := store.GenerateKeyPair("jwt-key", keystore.KeyTypeRSA)
	require.NoError(t, err)

	a := sampleAssertion()
	p, err := eng.CreateJWTProof(a, "jwt-key", "")
	require.NoError(t, err)
	assert.Equal(t, "JwtProof2020", p.ProofType)
	assert.NotEmpty(t, p.JWS)

	raw, err := marshalProof(p)
	require.NoError(t, err)
	a.Verification = raw

	res, err := eng.Verify(a)
	require.NoError(t, err)
	assert.Contains(t, res.VerificationMethod, "jwt-key")
}

func TestVerifyUnknownCryptosuiteRejected(t *testing.T) {
	eng, store := newTestEngine(t)
	_, err := store.GenerateKeyPair("rsa-key", keystore.KeyTypeRSA)
	require.NoError(t, err)

	a := sampleAssertion()
	p, err := eng.CreateDataIntegrityProof(a, "rsa-key")
	require.NoError(t, err)
	p.Cryptosuite = "made-up-2024"

	raw, err := marshalProof(p)
	require.NoError(t, err)
	a.Verification = raw

	_, err = eng.Verify(a)
	require.Error(t, err)
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok)
	assert.Equal(t, apierror.CryptosuiteUnsupported, apiErr.Kind)
}

func TestVerifyOldKeyRemainsUsableAfterRotation(t *testing.T) {
	eng, store := newTestEngine(t)

	a := sampleAssertion()
	p, err := eng.CreateDataIntegrityProof(a, keystore.DefaultKeyID)
	require.NoError(t, err)
	raw, err := marshalProof(p)
	require.NoError(t, err)
	a.Verification = raw

	_, err = store.RotateKey(keystore.DefaultKeyID, nil)
	require.NoError(t, err)

	// The rotated-out key keeps its original id (referenced by the proof's
	// verificationMethod) and stays usable for verification even though
	// "default" now resolves to the new pair.
	res, err := eng.Verify(a)
	require.NoError(t, err)
	assert.Contains(t, res.VerificationMethod, "/public-keys/"+keystore.DefaultKeyID)

	b := sampleAssertion()
	b.ID = "urn:uuid:22222222-2222-2222-2222-222222222222"
	newProof, err := eng.CreateDataIntegrityProof(b, keystore.DefaultKeyID)
	require.NoError(t, err)
	newRaw, err := marshalProof(newProof)
	require.NoError(t, err)
	b.Verification = newRaw

	_, err = eng.Verify(b)
	require.NoError(t, err)
}

func TestVerifyMissingProof(t *testing.T) {
	eng, _ := newTestEngine(t)
	a := sampleAssertion()

	_, err := eng.Verify(a)
	require.Error(t, err)
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok)
	assert.Equal(t, apierror.ProofMissing, apiErr.Kind)
}

func marshalProof(p *model.Proof) ([]byte, error) {
	m := map[string]any{
		"type":               p.ProofType,
		"created":            p.Created,
		"proofPurpose":       p.ProofPurpose,
		"verificationMethod": p.VerificationMethod,
	}
	if p.Cryptosuite != "" {
		m["cryptosuite"] = p.Cryptosuite
	}
	if p.ProofValue != "" {
		m["proofValue"] = p.ProofValue
	}
	if p.JWS != "" {
		m["jws"] = p.JWS
	}
	return json.Marshal(m)
}
