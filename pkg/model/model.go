// Package model defines the Open Badges 3.0 credential data model: the
// Assertion itself, its Bitstring Status List entry, and the tagged Proof
// sum.
package model

import "encoding/json"

// StatusPurpose determines the semantics of a set status bit.
type StatusPurpose string

const (
	PurposeRevocation StatusPurpose = "revocation"
	PurposeSuspension StatusPurpose = "suspension"
	PurposeRefresh    StatusPurpose = "refresh"
	PurposeMessage    StatusPurpose = "message"
)

// BitstringStatusListEntry is the credentialStatus object embedded in an
// issued credential, pointing at its (list, index) slot.
type BitstringStatusListEntry struct {
	Type                 string        `json:"type"`
	StatusPurpose        StatusPurpose `json:"statusPurpose"`
	StatusListIndex      string        `json:"statusListIndex"`
	StatusListCredential string        `json:"statusListCredential"`
	StatusSize           int           `json:"statusSize,omitempty"`
}

// ProofKind tags which of the two proof variants a Proof carries.
type ProofKind string

const (
	DataIntegrityKind ProofKind = "DataIntegrity"
	JWTKind           ProofKind = "JWT"
)

// Proof is a tagged sum: exactly one of the DataIntegrity or JWT variants
// is populated, selected by Kind.
type Proof struct {
	Kind ProofKind `json:"-"`

	// DataIntegrityProof fields.
	Cryptosuite string `json:"cryptosuite,omitempty"`
	ProofValue  string `json:"proofValue,omitempty"`

	// Shared fields.
	ProofType          string `json:"type,omitempty"`
	Created            string `json:"created,omitempty"`
	ProofPurpose       string `json:"proofPurpose,omitempty"`
	VerificationMethod string `json:"verificationMethod,omitempty"`

	// JWTProof field.
	JWS string `json:"jws,omitempty"`
}

// jwtProofTypes/dataIntegrityProofTypes enumerate the recognized `type`
// discriminators for each variant.
var (
	jwtProofTypes = map[string]bool{
		"JwtProof2020":         true,
		"JsonWebSignature2020": true,
	}
	dataIntegrityProofTypes = map[string]bool{
		"DataIntegrityProof": true,
	}
)

// rawProof is the wire shape used only for parsing; Proof itself always
// carries Kind so callers never duck-type.
type rawProof struct {
	Type               string `json:"type"`
	Cryptosuite        string `json:"cryptosuite,omitempty"`
	Created            string `json:"created,omitempty"`
	ProofPurpose       string `json:"proofPurpose,omitempty"`
	VerificationMethod string `json:"verificationMethod,omitempty"`
	ProofValue         string `json:"proofValue,omitempty"`
	JWS                string `json:"jws,omitempty"`
}

// ParseProof discriminates a received proof object into the tagged enum
// once, at parse time, so no call site ever duck-types. Anything that
// matches neither variant is ProofInvalid.
func ParseProof(raw json.RawMessage) (*Proof, error) {
	if len(raw) == 0 {
		return nil, errProofMissing
	}

	var rp rawProof
	if err := json.Unmarshal(raw, &rp); err != nil {
		return nil, errProofInvalid
	}

	switch {
	case jwtProofTypes[rp.Type]:
		if rp.JWS == "" {
			return nil, errProofInvalid
		}
		return &Proof{
			Kind:               JWTKind,
			ProofType:          rp.Type,
			Created:            rp.Created,
			ProofPurpose:       rp.ProofPurpose,
			VerificationMethod: rp.VerificationMethod,
			JWS:                rp.JWS,
		}, nil
	case dataIntegrityProofTypes[rp.Type]:
		if rp.ProofValue == "" {
			return nil, errProofInvalid
		}
		return &Proof{
			Kind:               DataIntegrityKind,
			ProofType:          rp.Type,
			Cryptosuite:        rp.Cryptosuite,
			Created:            rp.Created,
			ProofPurpose:       rp.ProofPurpose,
			VerificationMethod: rp.VerificationMethod,
			ProofValue:         rp.ProofValue,
		}, nil
	default:
		return nil, errProofInvalid
	}
}

// Assertion is a signed achievement credential.
type Assertion struct {
	ID                string                    `json:"id"`
	Type              []string                  `json:"type"`
	Issuer            string                    `json:"issuer"`
	IssuedOn          string                    `json:"issuedOn,omitempty"`
	IssuanceDate      string                    `json:"issuanceDate,omitempty"`
	Expires           string                    `json:"expires,omitempty"`
	ExpirationDate    string                    `json:"expirationDate,omitempty"`
	CredentialSubject map[string]any            `json:"credentialSubject"`
	Revoked           bool                      `json:"revoked,omitempty"`
	RevocationReason  string                    `json:"revocationReason,omitempty"`
	CredentialStatus  *BitstringStatusListEntry `json:"credentialStatus,omitempty"`
	BadgeClass        string                    `json:"badgeClass,omitempty"`
	Recipient         map[string]any            `json:"recipient,omitempty"`

	// The proof arrives under either "verification" or "proof". The raw
	// wire bytes are preserved so verification can re-canonicalize the
	// assertion without the proof present.
	Verification json.RawMessage `json:"verification,omitempty"`
	ProofField   json.RawMessage `json:"proof,omitempty"`
}

// RawProof returns whichever of verification/proof is populated.
func (a *Assertion) RawProof() json.RawMessage {
	if len(a.Verification) > 0 {
		return a.Verification
	}
	return a.ProofField
}
