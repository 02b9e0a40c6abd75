// Package proof implements credential canonicalization, RSA-SHA256 and
// Ed25519 signing, and DataIntegrityProof / JWT proof generation and
// verification.
package proof

import (
	"encoding/json"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/model"
)

// canonicalFields is the fixed set of essential fields selected for
// signing. Canonicalize re-marshals them through a map, and encoding/json
// sorts map keys, so object keys come out sorted at every nesting level.
// The byte form is encoding/json's; it is not JCS or RDFC-2022
// canonicalization.
type canonicalFields struct {
	ID         string         `json:"id,omitempty"`
	Type       []string       `json:"type,omitempty"`
	BadgeClass string         `json:"badgeClass,omitempty"`
	Recipient  map[string]any `json:"recipient,omitempty"`
	IssuedOn   string         `json:"issuedOn,omitempty"`
	Expires    string         `json:"expires,omitempty"`
}

// Canonicalize serializes a's essential fields as JSON with sorted
// top-level keys. The proof is never part of the input struct, so it is
// excluded by construction on both the sign and verify sides.
func Canonicalize(a *model.Assertion) ([]byte, error) {
	fields := canonicalFields{
		ID:         a.ID,
		Type:       a.Type,
		BadgeClass: a.BadgeClass,
		Recipient:  a.Recipient,
		IssuedOn:   a.IssuedOn,
		Expires:    a.Expires,
	}

	// encoding/json marshals struct fields in declaration order;
	// re-marshal through a map so the top-level keys come out
	// lexicographically sorted.
	asMap := map[string]any{}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}

	return json.Marshal(asMap)
}
