package model

import "github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"

var (
	errProofMissing = apierror.New(apierror.ProofMissing)
	errProofInvalid = apierror.New(apierror.ProofInvalid)
)
