// Package statuslist allocates Bitstring Status Lists and indices within
// them, and mutates the encoded bitstring together with per-entry state.
package statuslist

import (
	"time"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/model"
)

// List is one status list: a compressed bit buffer plus its allocation
// bookkeeping.
type List struct {
	ID           string
	IssuerID     string
	Purpose      model.StatusPurpose
	StatusSize   int
	TotalEntries int
	UsedEntries  int
	EncodedList  string
	TTL          *time.Duration
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int
	Metadata     map[string]any
}

// Full reports whether the list has exhausted its index space.
func (l *List) Full() bool {
	return l.UsedEntries >= l.TotalEntries
}

// Entry binds one (credential, purpose) to a slot in a List. Unique per
// (CredentialID, Purpose).
type Entry struct {
	ID            string
	CredentialID  string
	ListID        string
	Index         int
	Purpose       model.StatusPurpose
	CurrentStatus int
	Reason        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// statusLabels gives the default human-readable label for a purpose/value
// pair, used to build the statusMessages table of multi-bit lists.
var statusLabels = map[model.StatusPurpose]map[int]string{
	model.PurposeRevocation: {0: "valid", 1: "revoked"},
	model.PurposeSuspension: {0: "active", 1: "suspended"},
	model.PurposeRefresh:    {0: "current", 1: "stale"},
}

func statusLabel(purpose model.StatusPurpose, value int) string {
	if labels, ok := statusLabels[purpose]; ok {
		if label, ok := labels[value]; ok {
			return label
		}
	}
	return "unspecified"
}
