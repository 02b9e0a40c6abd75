// Package issuance assembles a signed credential: it allocates a status
// slot, embeds the credentialStatus entry, and attaches a proof.
package issuance

import (
	"context"
	"encoding/json"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/credentialstatus"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/keystore"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/proof"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/logger"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/model"
)

// ProofFormat selects how an issued credential is proven.
type ProofFormat string

const (
	FormatDataIntegrity ProofFormat = "DataIntegrityProof"
	FormatJWT           ProofFormat = "jwt"
)

// Options tunes a single Issue call. Zero values select a revocation
// entry of one bit, the default key, and a Data Integrity proof.
type Options struct {
	KeyID         string
	Format        ProofFormat
	JWTAlgorithm  string
	StatusPurpose model.StatusPurpose
	StatusSize    int
}

// Issuer turns credential drafts into signed assertions.
type Issuer struct {
	binder *credentialstatus.Binder
	proofs *proof.Engine
	log    *logger.Log
}

// New constructs an Issuer.
func New(binder *credentialstatus.Binder, proofs *proof.Engine, log *logger.Log) *Issuer {
	return &Issuer{binder: binder, proofs: proofs, log: log}
}

// Issue allocates a status-list slot for the draft, embeds the resulting
// credentialStatus entry, signs, and attaches the proof. The draft is
// mutated and returned.
func (i *Issuer) Issue(ctx context.Context, a *model.Assertion, issuerID string, opts Options) (*model.Assertion, error) {
	if opts.KeyID == "" {
		opts.KeyID = keystore.DefaultKeyID
	}
	if opts.Format == "" {
		opts.Format = FormatDataIntegrity
	}
	if opts.StatusPurpose == "" {
		opts.StatusPurpose = model.PurposeRevocation
	}

	entry, err := i.binder.AssignCredentialStatus(ctx, credentialstatus.AssignRequest{
		CredentialID: a.ID,
		IssuerID:     issuerID,
		Purpose:      opts.StatusPurpose,
		StatusSize:   opts.StatusSize,
	})
	if err != nil {
		return nil, err
	}
	a.CredentialStatus = entry

	var p *model.Proof
	switch opts.Format {
	case FormatDataIntegrity:
		p, err = i.proofs.CreateDataIntegrityProof(a, opts.KeyID)
	case FormatJWT:
		p, err = i.proofs.CreateJWTProof(a, opts.KeyID, opts.JWTAlgorithm)
	default:
		return nil, apierror.NewWithDetails(apierror.ProofTypeUnsupported, string(opts.Format))
	}
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}
	a.Verification = raw

	i.log.Debug("issued credential", "id", a.ID, "format", string(opts.Format))
	return a, nil
}
