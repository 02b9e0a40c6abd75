// Package credentialstatus binds freshly issued credentials to slots in
// Bitstring Status Lists.
package credentialstatus

import (
	"context"
	"fmt"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/statuslist"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/model"
)

// AssignRequest is the input of Binder.AssignCredentialStatus.
type AssignRequest struct {
	CredentialID  string
	IssuerID      string
	Purpose       model.StatusPurpose
	StatusSize    int
	InitialStatus int
}

// Binder wires status-list allocation to a single credential, enforcing
// at most one entry per (credentialId, purpose).
type Binder struct {
	engine  *statuslist.Engine
	entries statuslist.EntryRepository
	baseURL string
}

// New constructs a Binder. entries must be the same EntryRepository engine
// was built with, so FindByCredentialAndPurpose sees entries the engine
// creates.
func New(engine *statuslist.Engine, entries statuslist.EntryRepository, baseURL string) *Binder {
	return &Binder{engine: engine, entries: entries, baseURL: baseURL}
}

// AssignCredentialStatus allocates a slot for the credential and returns
// the credentialStatus object to embed. A second call for the same
// (credentialId, purpose) is a no-op that returns the existing entry.
func (b *Binder) AssignCredentialStatus(ctx context.Context, req AssignRequest) (*model.BitstringStatusListEntry, error) {
	if req.Purpose == "" {
		req.Purpose = model.PurposeRevocation
	}
	statusSize := req.StatusSize
	if statusSize == 0 {
		statusSize = 1
	}

	if existing, err := b.entries.FindByCredentialAndPurpose(ctx, req.CredentialID, req.Purpose); err == nil {
		list, err := b.listForEntry(ctx, existing)
		if err != nil {
			return nil, err
		}
		return b.toEntry(list.ID, existing.Index, req.Purpose, list.StatusSize), nil
	} else if apiErr, ok := err.(*apierror.Error); !ok || apiErr.Kind != apierror.EntryNotFound {
		return nil, err
	}

	list, err := b.engine.FindOrCreateStatusList(ctx, req.IssuerID, req.Purpose, statusSize)
	if err != nil {
		return nil, err
	}

	if _, err := b.engine.GetNextAvailableIndex(ctx, list.ID); err != nil {
		return nil, err
	}

	entry, err := b.engine.CreateStatusEntry(ctx, list.ID, req.CredentialID, req.Purpose, req.InitialStatus)
	if err != nil {
		return nil, err
	}

	return b.toEntry(list.ID, entry.Index, req.Purpose, statusSize), nil
}

func (b *Binder) listForEntry(ctx context.Context, entry *statuslist.Entry) (*statuslist.List, error) {
	return b.engine.GetList(ctx, entry.ListID)
}

func (b *Binder) toEntry(listID string, index int, purpose model.StatusPurpose, statusSize int) *model.BitstringStatusListEntry {
	e := &model.BitstringStatusListEntry{
		Type:                 "BitstringStatusListEntry",
		StatusPurpose:        purpose,
		StatusListIndex:      fmt.Sprintf("%d", index),
		StatusListCredential: fmt.Sprintf("%s/v3/status-lists/%s", b.baseURL, listID),
	}
	if statusSize > 1 {
		e.StatusSize = statusSize
	}
	return e
}
