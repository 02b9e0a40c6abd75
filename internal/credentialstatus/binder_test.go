package credentialstatus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/credentialstatus"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/statuslist"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/logger"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/model"
)

func newTestBinder(t *testing.T) *credentialstatus.Binder {
	t.Helper()
	log, err := logger.New("test", "", false)
	require.NoError(t, err)

	entries := statuslist.NewMemoryEntryRepository()
	engine := statuslist.New(statuslist.NewMemoryListRepository(), entries, log)
	return credentialstatus.New(engine, entries, "https://issuer.example.edu")
}

func TestAssignCredentialStatusShape(t *testing.T) {
	b := newTestBinder(t)
	entry, err := b.AssignCredentialStatus(context.Background(), credentialstatus.AssignRequest{
		CredentialID: "cred-1",
		IssuerID:     "issuer-1",
		Purpose:      model.PurposeRevocation,
	})
	require.NoError(t, err)
	assert.Equal(t, "BitstringStatusListEntry", entry.Type)
	assert.Equal(t, "0", entry.StatusListIndex)
	assert.Contains(t, entry.StatusListCredential, "https://issuer.example.edu/v3/status-lists/")
	assert.Zero(t, entry.StatusSize)
}

func TestAssignCredentialStatusIdempotent(t *testing.T) {
	b := newTestBinder(t)
	ctx := context.Background()
	req := credentialstatus.AssignRequest{CredentialID: "cred-1", IssuerID: "issuer-1", Purpose: model.PurposeRevocation}

	first, err := b.AssignCredentialStatus(ctx, req)
	require.NoError(t, err)
	second, err := b.AssignCredentialStatus(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.StatusListIndex, second.StatusListIndex)
	assert.Equal(t, first.StatusListCredential, second.StatusListCredential)
}

func TestAssignCredentialStatusSequentialIndices(t *testing.T) {
	b := newTestBinder(t)
	ctx := context.Background()

	first, err := b.AssignCredentialStatus(ctx, credentialstatus.AssignRequest{CredentialID: "cred-1", IssuerID: "issuer-1"})
	require.NoError(t, err)
	second, err := b.AssignCredentialStatus(ctx, credentialstatus.AssignRequest{CredentialID: "cred-2", IssuerID: "issuer-1"})
	require.NoError(t, err)

	assert.Equal(t, "0", first.StatusListIndex)
	assert.Equal(t, "1", second.StatusListIndex)
}

func TestAssignCredentialStatusMultiBitIncludesStatusSize(t *testing.T) {
	b := newTestBinder(t)
	entry, err := b.AssignCredentialStatus(context.Background(), credentialstatus.AssignRequest{
		CredentialID: "cred-1",
		IssuerID:     "issuer-1",
		Purpose:      model.PurposeMessage,
		StatusSize:   4,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, entry.StatusSize)
}
