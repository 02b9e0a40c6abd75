package statuslist

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/model"
)

// ListRepository is the storage seam for lists: the engine depends on
// this interface, never on a concrete backend.
type ListRepository interface {
	FindOpen(ctx context.Context, issuerID string, purpose model.StatusPurpose, statusSize int) (*List, error)
	Get(ctx context.Context, id string) (*List, error)
	Create(ctx context.Context, l *List) error
	// Update performs an optimistic-concurrency write: it fails with
	// apierror.StatusUpdateConflict if l.Version no longer matches the
	// stored version.
	Update(ctx context.Context, l *List) error
	List(ctx context.Context, filter ListFilter) ([]*List, error)
}

// ListFilter narrows List for the GET /v3/status-lists surface.
type ListFilter struct {
	IssuerID    string
	Purpose     model.StatusPurpose
	HasCapacity bool
}

// EntryRepository is the CredentialStatusEntry counterpart of
// ListRepository.
type EntryRepository interface {
	FindByCredentialAndPurpose(ctx context.Context, credentialID string, purpose model.StatusPurpose) (*Entry, error)
	Get(ctx context.Context, id string) (*Entry, error)
	Create(ctx context.Context, e *Entry) error
	Update(ctx context.Context, e *Entry) error
}

// MemoryListRepository is the in-memory default and test backend.
type MemoryListRepository struct {
	mu    sync.RWMutex
	lists map[string]*List
}

// NewMemoryListRepository constructs an empty in-memory list store.
func NewMemoryListRepository() *MemoryListRepository {
	return &MemoryListRepository{lists: make(map[string]*List)}
}

func (r *MemoryListRepository) FindOpen(_ context.Context, issuerID string, purpose model.StatusPurpose, statusSize int) (*List, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, l := range r.lists {
		if l.IssuerID == issuerID && l.Purpose == purpose && l.StatusSize == statusSize && !l.Full() {
			clone := *l
			return &clone, nil
		}
	}
	return nil, apierror.New(apierror.ListNotFound)
}

func (r *MemoryListRepository) Get(_ context.Context, id string) (*List, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.lists[id]
	if !ok {
		return nil, apierror.New(apierror.ListNotFound)
	}
	clone := *l
	return &clone, nil
}

func (r *MemoryListRepository) Create(_ context.Context, l *List) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	clone := *l
	r.lists[l.ID] = &clone
	return nil
}

// Update is an optimistic-concurrency write: it succeeds only if
// l.Version matches the currently stored version. A concurrent writer
// that got there first shows up as a version mismatch, which the engine
// retries. Entry writes and list writes are not transactional: a crash
// between them leaves the two out of step, and no later update detects it.
func (r *MemoryListRepository) Update(_ context.Context, l *List) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.lists[l.ID]
	if !ok {
		return apierror.New(apierror.ListNotFound)
	}
	if existing.Version != l.Version {
		return apierror.New(apierror.StatusUpdateConflict)
	}

	updated := *l
	updated.Version = l.Version + 1
	r.lists[l.ID] = &updated
	return nil
}

func (r *MemoryListRepository) List(_ context.Context, filter ListFilter) ([]*List, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*List, 0, len(r.lists))
	for _, l := range r.lists {
		if filter.IssuerID != "" && l.IssuerID != filter.IssuerID {
			continue
		}
		if filter.Purpose != "" && l.Purpose != filter.Purpose {
			continue
		}
		if filter.HasCapacity && l.Full() {
			continue
		}
		clone := *l
		out = append(out, &clone)
	}
	return out, nil
}

// MemoryEntryRepository is the in-memory default/test backend for Entry.
type MemoryEntryRepository struct {
	mu                  sync.RWMutex
	entries             map[string]*Entry
	byCredentialPurpose map[string]string
}

// NewMemoryEntryRepository constructs an empty in-memory entry store.
func NewMemoryEntryRepository() *MemoryEntryRepository {
	return &MemoryEntryRepository{
		entries:             make(map[string]*Entry),
		byCredentialPurpose: make(map[string]string),
	}
}

func entryKey(credentialID string, purpose model.StatusPurpose) string {
	return credentialID + "|" + string(purpose)
}

func (r *MemoryEntryRepository) FindByCredentialAndPurpose(_ context.Context, credentialID string, purpose model.StatusPurpose) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCredentialPurpose[entryKey(credentialID, purpose)]
	if !ok {
		return nil, apierror.New(apierror.EntryNotFound)
	}
	clone := *r.entries[id]
	return &clone, nil
}

func (r *MemoryEntryRepository) Get(_ context.Context, id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, apierror.New(apierror.EntryNotFound)
	}
	clone := *e
	return &clone, nil
}

func (r *MemoryEntryRepository) Create(_ context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	clone := *e
	r.entries[e.ID] = &clone
	r.byCredentialPurpose[entryKey(e.CredentialID, e.Purpose)] = e.ID
	return nil
}

func (r *MemoryEntryRepository) Update(_ context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[e.ID]; !ok {
		return apierror.New(apierror.EntryNotFound)
	}
	clone := *e
	r.entries[e.ID] = &clone
	return nil
}
