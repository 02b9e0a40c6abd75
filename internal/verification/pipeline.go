// Package verification applies the fixed verification order to a received
// assertion: revocation first, then expiration, then proof.
package verification

import (
	"context"
	"strconv"
	"time"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/bitstring"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/codec"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/proof"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/schema"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/statuslist"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/model"
)

// Status is the outcome of a verification run. Failures are values, never
// faults: a failing check sets ErrorCode (and Details, when there is a
// detail to give) instead of returning an error.
type Status struct {
	IsValid            bool          `json:"isValid"`
	IsExpired          bool          `json:"isExpired"`
	IsRevoked          bool          `json:"isRevoked"`
	HasValidSignature  bool          `json:"hasValidSignature"`
	ErrorCode          apierror.Kind `json:"errorCode,omitempty"`
	Details            string        `json:"details,omitempty"`
	VerifiedAt         string        `json:"verifiedAt"`
	VerificationMethod string        `json:"verificationMethod,omitempty"`
	Cryptosuite        string        `json:"cryptosuite,omitempty"`
}

// ListGetter is the narrow read seam the pipeline needs to derive
// revocation from a credential's credentialStatus entry.
type ListGetter interface {
	GetList(ctx context.Context, listID string) (*statuslist.List, error)
}

// Pipeline runs the end-to-end assertion checks. lists and schemaValidator
// are optional; nil disables the status-list lookup and the schema
// pre-stage respectively.
type Pipeline struct {
	proofEngine     *proof.Engine
	lists           ListGetter
	schemaValidator *schema.Validator
	now             func() time.Time
}

// New constructs a Pipeline.
func New(proofEngine *proof.Engine, lists ListGetter, schemaValidator *schema.Validator) *Pipeline {
	return &Pipeline{proofEngine: proofEngine, lists: lists, schemaValidator: schemaValidator, now: time.Now}
}

// VerifyAssertion checks a in fixed order: revocation, then expiration,
// then signature. The first failing check wins.
func (p *Pipeline) VerifyAssertion(ctx context.Context, a *model.Assertion, schemaRefs []schema.Reference) *Status {
	status := &Status{VerifiedAt: p.now().UTC().Format(time.RFC3339)}

	if p.schemaValidator != nil && len(schemaRefs) > 0 {
		if err := p.schemaValidator.Validate(ctx, a, schemaRefs); err != nil {
			return p.fail(status, err)
		}
	}

	if revoked, reason := p.isRevoked(ctx, a); revoked {
		status.IsRevoked = true
		status.ErrorCode = apierror.AssertionRevoked
		status.Details = reason
		return status
	}

	if a.Expires != "" {
		expires, err := time.Parse(time.RFC3339, a.Expires)
		if err == nil && expires.Before(p.now()) {
			status.IsExpired = true
			status.ErrorCode = apierror.AssertionExpired
			status.Details = "assertion expired at " + a.Expires
			return status
		}
	}

	result, err := p.proofEngine.Verify(a)
	if err != nil {
		return p.fail(status, err)
	}

	status.IsValid = true
	status.HasValidSignature = true
	status.VerificationMethod = result.VerificationMethod
	status.Cryptosuite = result.Cryptosuite
	return status
}

// isRevoked checks the locally denormalized flag first, then (if a
// credentialStatus is present and a ListGetter is wired) the status-list
// bit itself. Either suffices to mark the assertion revoked.
func (p *Pipeline) isRevoked(ctx context.Context, a *model.Assertion) (bool, string) {
	if a.Revoked {
		return true, a.RevocationReason
	}

	if a.CredentialStatus == nil || p.lists == nil {
		return false, ""
	}
	if a.CredentialStatus.StatusPurpose != model.PurposeRevocation {
		return false, ""
	}

	listID := listIDFromCredential(a.CredentialStatus.StatusListCredential)
	if listID == "" {
		return false, ""
	}

	list, err := p.lists.GetList(ctx, listID)
	if err != nil {
		return false, ""
	}

	idx, err := strconv.Atoi(a.CredentialStatus.StatusListIndex)
	if err != nil {
		return false, ""
	}

	buf, err := codec.Decode(list.EncodedList)
	if err != nil {
		return false, ""
	}

	statusSize := a.CredentialStatus.StatusSize
	if statusSize == 0 {
		statusSize = 1
	}

	value, err := bitstring.Get(buf, idx, statusSize)
	if err != nil {
		return false, ""
	}

	return value != 0, ""
}

func (p *Pipeline) fail(status *Status, err error) *Status {
	apiErr := apierror.FromError(err)
	status.ErrorCode = apiErr.Kind
	status.Details = apiErr.Error()
	return status
}

func listIDFromCredential(statusListCredential string) string {
	for i := len(statusListCredential) - 1; i >= 0; i-- {
		if statusListCredential[i] == '/' {
			return statusListCredential[i+1:]
		}
	}
	return ""
}
