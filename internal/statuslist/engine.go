package statuslist

import (
	"context"
	"fmt"
	"time"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/bitstring"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/codec"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/logger"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/model"
)

// maxConflictRetries bounds optimistic-concurrency retries; the backoff
// doubles from 200ms per attempt.
const maxConflictRetries = 3

func backoff(attempt int) time.Duration {
	return time.Duration(100<<uint(attempt)) * time.Millisecond
}

// Engine allocates status lists and indices and mutates entry status
// together with the owning list's encoded bitstring.
type Engine struct {
	lists   ListRepository
	entries EntryRepository
	log     *logger.Log
	now     func() time.Time
	sleep   func(time.Duration)
}

// New constructs a StatusListEngine over the given repositories.
func New(lists ListRepository, entries EntryRepository, log *logger.Log) *Engine {
	return &Engine{
		lists:   lists,
		entries: entries,
		log:     log,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// CreateOption overrides a default of a newly created list. Options only
// take effect when a new list is actually created; an existing open list
// is always reused as-is.
type CreateOption func(*List)

// WithTotalEntries overrides the privacy-floor default of
// bitstring.MinTotalEntries. Values below the floor are rejected.
func WithTotalEntries(n int) CreateOption {
	return func(l *List) {
		if n > 0 {
			l.TotalEntries = n
		}
	}
}

// WithTTL sets the list's optional ttl.
func WithTTL(d time.Duration) CreateOption {
	return func(l *List) {
		l.TTL = &d
	}
}

// FindOrCreateStatusList returns an open list matching (issuerID, purpose,
// statusSize), or creates one with the privacy-floor totalEntries (or an
// overridden one, via opts).
func (e *Engine) FindOrCreateStatusList(ctx context.Context, issuerID string, purpose model.StatusPurpose, statusSize int, opts ...CreateOption) (*List, error) {
	if statusSize == 0 {
		statusSize = 1
	}
	if !bitstring.ValidStatusSize(statusSize) {
		return nil, apierror.NewWithDetails(apierror.IndexOutOfBounds, "statusSize must be one of 1, 2, 4, 8")
	}

	found, err := e.lists.FindOpen(ctx, issuerID, purpose, statusSize)
	if err == nil {
		return found, nil
	}
	if apiErr, ok := err.(*apierror.Error); !ok || apiErr.Kind != apierror.ListNotFound {
		return nil, err
	}

	now := e.now()
	list := &List{
		IssuerID:     issuerID,
		Purpose:      purpose,
		StatusSize:   statusSize,
		TotalEntries: bitstring.MinTotalEntries,
		UsedEntries:  0,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      0,
	}
	for _, opt := range opts {
		opt(list)
	}
	if list.TotalEntries < bitstring.MinTotalEntries {
		return nil, apierror.NewWithDetails(apierror.IndexOutOfBounds, "totalEntries below privacy floor")
	}

	buf, err := bitstring.New(list.TotalEntries, statusSize)
	if err != nil {
		return nil, err
	}
	encoded, err := codec.Encode(buf)
	if err != nil {
		return nil, err
	}
	list.EncodedList = encoded

	if err := e.lists.Create(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListAll returns every list matching filter.
func (e *Engine) ListAll(ctx context.Context, filter ListFilter) ([]*List, error) {
	return e.lists.List(ctx, filter)
}

// GetList returns the list by id, for callers (e.g. credentialstatus.Binder)
// that need to resolve an existing entry's owning list.
func (e *Engine) GetList(ctx context.Context, listID string) (*List, error) {
	return e.lists.Get(ctx, listID)
}

// GetNextAvailableIndex returns list.UsedEntries, or ListFull when the
// index space is exhausted. Allocation is sequential and non-reclaiming: a
// lost slot costs one cell.
func (e *Engine) GetNextAvailableIndex(ctx context.Context, listID string) (int, error) {
	list, err := e.lists.Get(ctx, listID)
	if err != nil {
		return 0, err
	}
	if list.Full() {
		return 0, apierror.New(apierror.ListFull)
	}
	return list.UsedEntries, nil
}

// CreateStatusEntry persists a new entry at list.UsedEntries and increments
// the list's UsedEntries. The entry is created before the list is bumped,
// so a reader can never observe an allocated index without its entry. A
// nonzero initialStatus is also written into the encoded bitstring.
func (e *Engine) CreateStatusEntry(ctx context.Context, listID, credentialID string, purpose model.StatusPurpose, initialStatus int) (*Entry, error) {
	list, err := e.lists.Get(ctx, listID)
	if err != nil {
		return nil, err
	}
	if list.Full() {
		return nil, apierror.New(apierror.ListFull)
	}

	idx := list.UsedEntries
	now := e.now()

	entry := &Entry{
		CredentialID:  credentialID,
		ListID:        listID,
		Index:         idx,
		Purpose:       purpose,
		CurrentStatus: initialStatus,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.entries.Create(ctx, entry); err != nil {
		return nil, err
	}

	if initialStatus != 0 {
		buf, err := codec.Decode(list.EncodedList)
		if err != nil {
			return nil, err
		}
		newBuf, err := bitstring.Set(buf, idx, initialStatus, list.StatusSize)
		if err != nil {
			return nil, err
		}
		encoded, err := codec.Encode(newBuf)
		if err != nil {
			return nil, err
		}
		list.EncodedList = encoded
	}

	list.UsedEntries = idx + 1
	list.UpdatedAt = now
	if err := e.lists.Update(ctx, list); err != nil {
		return nil, err
	}

	return entry, nil
}

// UpdateStatusRequest is the input of UpdateCredentialStatus.
type UpdateStatusRequest struct {
	CredentialID string
	Purpose      model.StatusPurpose
	Status       int
	Reason       string
}

// UpdateCredentialStatus locates the entry, decodes the owning list's
// bitstring, writes the new status at the entry's index, re-encodes, and
// persists both writes under an optimistic-concurrency retry.
func (e *Engine) UpdateCredentialStatus(ctx context.Context, req UpdateStatusRequest) (*Entry, error) {
	entry, err := e.entries.FindByCredentialAndPurpose(ctx, req.CredentialID, req.Purpose)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		list, err := e.lists.Get(ctx, entry.ListID)
		if err != nil {
			return nil, err
		}

		buf, err := codec.Decode(list.EncodedList)
		if err != nil {
			return nil, err
		}

		newBuf, err := bitstring.Set(buf, entry.Index, req.Status, list.StatusSize)
		if err != nil {
			return nil, err
		}

		encoded, err := codec.Encode(newBuf)
		if err != nil {
			return nil, err
		}

		list.EncodedList = encoded
		list.UpdatedAt = e.now()

		if err := e.lists.Update(ctx, list); err != nil {
			apiErr, ok := err.(*apierror.Error)
			if !ok || apiErr.Kind != apierror.StatusUpdateConflict {
				return nil, err
			}
			lastErr = err
			if attempt < maxConflictRetries {
				e.log.Info("status list update conflict, retrying", "listId", list.ID, "attempt", attempt+1)
				e.sleep(backoff(attempt + 1))
				continue
			}
			return nil, apierror.New(apierror.StatusUpdateConflict)
		}

		entry.CurrentStatus = req.Status
		entry.Reason = req.Reason
		entry.UpdatedAt = e.now()
		if err := e.entries.Update(ctx, entry); err != nil {
			return nil, err
		}

		return entry, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, apierror.New(apierror.StatusUpdateConflict)
}

// ToBitstringStatusListCredential materializes the list as the
// credentialSubject of a W3C Bitstring Status List model.
func ToBitstringStatusListCredential(list *List, issuerID, baseURL string) map[string]any {
	subject := map[string]any{
		"id":            fmt.Sprintf("%s/v3/status-lists/%s", baseURL, list.ID),
		"type":          "BitstringStatusList",
		"statusPurpose": list.Purpose,
		"encodedList":   list.EncodedList,
	}
	if list.StatusSize > 1 {
		subject["statusSize"] = list.StatusSize
		subject["statusMessages"] = statusMessages(list.Purpose, list.StatusSize)
	}
	if list.TTL != nil {
		subject["ttl"] = list.TTL.Milliseconds()
	}

	doc := map[string]any{
		"@context":          []string{"https://www.w3.org/ns/credentials/v2"},
		"id":                fmt.Sprintf("%s/v3/status-lists/%s", baseURL, list.ID),
		"type":              []string{"VerifiableCredential", "BitstringStatusListCredential"},
		"issuer":            issuerID,
		"validFrom":         list.CreatedAt.UTC().Format(time.RFC3339),
		"credentialSubject": subject,
	}
	if list.TTL != nil {
		doc["validUntil"] = list.CreatedAt.Add(*list.TTL).UTC().Format(time.RFC3339)
	}
	return doc
}

// statusMessages builds the {status, message} table for multi-bit lists,
// covering every value 0..2^statusSize-1.
func statusMessages(purpose model.StatusPurpose, statusSize int) []map[string]string {
	count := 1 << uint(statusSize)
	out := make([]map[string]string, 0, count)
	for v := 0; v < count; v++ {
		out = append(out, map[string]string{
			"status":  fmt.Sprintf("0x%X", v),
			"message": statusLabel(purpose, v),
		})
	}
	return out
}
