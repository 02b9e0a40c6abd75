package issuance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/credentialstatus"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/issuance"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/keystore"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/proof"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/statuslist"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/verification"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/logger"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/model"
)

func newTestIssuer(t *testing.T) (*issuance.Issuer, *verification.Pipeline) {
	t.Helper()
	log, err := logger.New("test", "", false)
	require.NoError(t, err)

	keys := keystore.New(t.TempDir(), log)
	require.NoError(t, keys.Initialize())

	entries := statuslist.NewMemoryEntryRepository()
	engine := statuslist.New(statuslist.NewMemoryListRepository(), entries, log)
	binder := credentialstatus.New(engine, entries, "https://issuer.example.edu")
	proofs := proof.New(keys, "https://issuer.example.edu", 0)

	return issuance.New(binder, proofs, log), verification.New(proofs, engine, nil)
}

func draft() *model.Assertion {
	return &model.Assertion{
		ID:                "urn:uuid:33333333-3333-3333-3333-333333333333",
		Type:              []string{"VerifiableCredential", "OpenBadgeCredential"},
		Issuer:            "https://issuer.example.edu",
		IssuedOn:          "2026-01-01T00:00:00Z",
		CredentialSubject: map[string]any{"id": "did:example:recipient"},
		BadgeClass:        "urn:uuid:badge-1",
		Recipient:         map[string]any{"identity": "recipient@example.edu", "type": "email"},
	}
}

func TestIssueDataIntegrityThenVerify(t *testing.T) {
	issuer, pipeline := newTestIssuer(t)
	ctx := context.Background()

	a, err := issuer.Issue(ctx, draft(), "issuer-1", issuance.Options{})
	require.NoError(t, err)

	require.NotNil(t, a.CredentialStatus)
	assert.Equal(t, "BitstringStatusListEntry", a.CredentialStatus.Type)
	assert.Equal(t, "0", a.CredentialStatus.StatusListIndex)
	require.NotEmpty(t, a.Verification)

	status := pipeline.VerifyAssertion(ctx, a, nil)
	require.True(t, status.IsValid)
	assert.True(t, status.HasValidSignature)
}

func TestIssueJWTThenVerify(t *testing.T) {
	issuer, pipeline := newTestIssuer(t)
	ctx := context.Background()

	a, err := issuer.Issue(ctx, draft(), "issuer-1", issuance.Options{Format: issuance.FormatJWT})
	require.NoError(t, err)

	status := pipeline.VerifyAssertion(ctx, a, nil)
	require.True(t, status.IsValid)
}

func TestIssueIsIdempotentPerCredential(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	ctx := context.Background()

	first, err := issuer.Issue(ctx, draft(), "issuer-1", issuance.Options{})
	require.NoError(t, err)
	second, err := issuer.Issue(ctx, draft(), "issuer-1", issuance.Options{})
	require.NoError(t, err)

	assert.Equal(t, first.CredentialStatus.StatusListIndex, second.CredentialStatus.StatusListIndex)
	assert.Equal(t, first.CredentialStatus.StatusListCredential, second.CredentialStatus.StatusListCredential)
}

func TestIssuedCredentialRevocationRoundTrip(t *testing.T) {
	log, err := logger.New("test", "", false)
	require.NoError(t, err)

	keys := keystore.New(t.TempDir(), log)
	require.NoError(t, keys.Initialize())

	entries := statuslist.NewMemoryEntryRepository()
	engine := statuslist.New(statuslist.NewMemoryListRepository(), entries, log)
	binder := credentialstatus.New(engine, entries, "https://issuer.example.edu")
	proofs := proof.New(keys, "https://issuer.example.edu", 0)
	issuer := issuance.New(binder, proofs, log)
	pipeline := verification.New(proofs, engine, nil)

	ctx := context.Background()
	a, err := issuer.Issue(ctx, draft(), "issuer-1", issuance.Options{})
	require.NoError(t, err)

	require.True(t, pipeline.VerifyAssertion(ctx, a, nil).IsValid)

	_, err = engine.UpdateCredentialStatus(ctx, statuslist.UpdateStatusRequest{
		CredentialID: a.ID,
		Purpose:      model.PurposeRevocation,
		Status:       1,
	})
	require.NoError(t, err)

	status := pipeline.VerifyAssertion(ctx, a, nil)
	assert.False(t, status.IsValid)
	assert.True(t, status.IsRevoked)
}
