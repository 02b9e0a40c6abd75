package proof

import (
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/keystore"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/model"
)

// verificationMethodKeyID extracts <keyId> from ".../public-keys/<keyId>",
// optionally followed by "#..." or "/...". This is the only extraction
// heuristic: no hostname parsing, no fuzzy fallback.
var verificationMethodKeyID = regexp.MustCompile(`/public-keys/([^#/]+)`)

// VerificationResult is returned by Verify on success.
type VerificationResult struct {
	VerificationMethod string
	Cryptosuite        string
}

// Engine generates and verifies credential proofs. It holds no state of
// its own beyond the KeyStore, base URL and clock skew it was constructed
// with.
type Engine struct {
	keys      *keystore.Store
	baseURL   string
	clockSkew time.Duration
}

// New constructs an Engine. clockSkew is the JWT verification tolerance
// (default 60s).
func New(keys *keystore.Store, baseURL string, clockSkew time.Duration) *Engine {
	if clockSkew <= 0 {
		clockSkew = 60 * time.Second
	}
	return &Engine{keys: keys, baseURL: baseURL, clockSkew: clockSkew}
}

func (e *Engine) verificationMethod(keyID string) string {
	return fmt.Sprintf("%s/public-keys/%s", e.baseURL, keyID)
}

// CreateDataIntegrityProof canonicalizes and signs a. The embedded
// verificationMethod names the pair that actually signed, which after a
// default-key rotation is the rotation replacement, not the "default"
// alias.
func (e *Engine) CreateDataIntegrityProof(a *model.Assertion, keyID string) (*model.Proof, error) {
	kp, err := e.keys.SigningKeyPair(keyID)
	if err != nil {
		return nil, apierror.Wrap(apierror.KeyNotFound, err)
	}

	canon, err := Canonicalize(a)
	if err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}

	sig, err := SignBytes(canon, kp.PrivateKey, kp.KeyType)
	if err != nil {
		return nil, err
	}

	return &model.Proof{
		Kind:               model.DataIntegrityKind,
		ProofType:          "DataIntegrityProof",
		Cryptosuite:        string(kp.Cryptosuite),
		Created:            time.Now().UTC().Format(time.RFC3339),
		ProofPurpose:       "assertionMethod",
		VerificationMethod: e.verificationMethod(kp.ID),
		ProofValue:         sig,
	}, nil
}

// jwtVCClaims carries the credential under the `vc` claim of a JWT proof.
type jwtVCClaims struct {
	jwt.RegisteredClaims
	VC map[string]any `json:"vc"`
}

// CreateJWTProof builds and signs a JWT proof for a. alg defaults from the
// key's type when empty (RSA to RS256, Ed25519 to EdDSA).
func (e *Engine) CreateJWTProof(a *model.Assertion, keyID, alg string) (*model.Proof, error) {
	kp, err := e.keys.SigningKeyPair(keyID)
	if err != nil {
		return nil, apierror.Wrap(apierror.KeyNotFound, err)
	}

	if alg == "" {
		alg = recommendedAlgorithm(kp.KeyType)
	}

	now := time.Now()
	vc := map[string]any{
		"@context":          []string{"https://www.w3.org/ns/credentials/v2"},
		"id":                a.ID,
		"type":              a.Type,
		"credentialSubject": a.CredentialSubject,
	}
	if a.IssuedOn != "" {
		vc["validFrom"] = a.IssuedOn
	}
	if a.Expires != "" {
		vc["validUntil"] = a.Expires
	}
	if a.CredentialStatus != nil {
		vc["credentialStatus"] = a.CredentialStatus
	}

	claims := jwtVCClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   a.Issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		VC: vc,
	}
	if subject, ok := a.CredentialSubject["id"].(string); ok {
		claims.Subject = subject
	}
	if a.Expires != "" {
		if t, err := time.Parse(time.RFC3339, a.Expires); err == nil {
			claims.ExpiresAt = jwt.NewNumericDate(t)
		}
	}

	signingMethod, err := jwtSigningMethod(alg)
	if err != nil {
		return nil, err
	}

	key, err := jwtSigningKey(kp.PrivateKey, kp.KeyType)
	if err != nil {
		return nil, err
	}

	token := jwt.NewWithClaims(signingMethod, claims)
	token.Header["kid"] = kp.ID

	jws, err := token.SignedString(key)
	if err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}

	return &model.Proof{
		Kind:               model.JWTKind,
		ProofType:          "JwtProof2020",
		Created:            now.UTC().Format(time.RFC3339),
		ProofPurpose:       "assertionMethod",
		VerificationMethod: e.verificationMethod(kp.ID),
		JWS:                jws,
	}, nil
}

func recommendedAlgorithm(kt keystore.KeyType) string {
	if kt == keystore.KeyTypeEd25519 {
		return "EdDSA"
	}
	return "RS256"
}

// Verify parses the credential's proof into the tagged enum and dispatches
// to the JWT or DataIntegrity path.
func (e *Engine) Verify(a *model.Assertion) (*VerificationResult, error) {
	raw := a.RawProof()
	if len(raw) == 0 {
		return nil, apierror.New(apierror.ProofMissing)
	}

	p, err := model.ParseProof(raw)
	if err != nil {
		return nil, err
	}

	switch p.Kind {
	case model.JWTKind:
		return e.verifyJWT(p)
	case model.DataIntegrityKind:
		return e.verifyDataIntegrity(a, p)
	default:
		return nil, apierror.New(apierror.ProofInvalid)
	}
}

func (e *Engine) extractKeyID(verificationMethod string, fallbackToDefault bool) (string, error) {
	if verificationMethod == "" {
		if fallbackToDefault {
			return keystore.DefaultKeyID, nil
		}
		return "", apierror.New(apierror.ProofInvalid)
	}
	m := verificationMethodKeyID.FindStringSubmatch(verificationMethod)
	if m == nil {
		return "", apierror.New(apierror.ProofInvalid)
	}
	return m[1], nil
}

func (e *Engine) verifyJWT(p *model.Proof) (*VerificationResult, error) {
	if p.JWS == "" {
		return nil, apierror.New(apierror.SignatureMissing)
	}

	keyID, err := e.extractKeyID(p.VerificationMethod, true)
	if err != nil {
		return nil, err
	}

	kp, err := e.keys.GetKeyPair(keyID)
	if err != nil {
		return nil, apierror.Wrap(apierror.KeyNotFound, err)
	}

	pubKey, err := jwtVerifyKey(kp.PublicKey, kp.KeyType)
	if err != nil {
		return nil, err
	}

	claims := &jwtVCClaims{}
	_, err = jwt.ParseWithClaims(p.JWS, claims, func(t *jwt.Token) (any, error) {
		return pubKey, nil
	}, jwt.WithLeeway(e.clockSkew))
	if err != nil {
		return nil, apierror.Wrap(apierror.SignatureVerificationFailed, err)
	}

	return &VerificationResult{VerificationMethod: p.VerificationMethod}, nil
}

func (e *Engine) verifyDataIntegrity(a *model.Assertion, p *model.Proof) (*VerificationResult, error) {
	if p.ProofValue == "" {
		return nil, apierror.New(apierror.SignatureMissing)
	}

	keyID, err := e.extractKeyID(p.VerificationMethod, true)
	if err != nil {
		return nil, err
	}
	if keyID != keystore.DefaultKeyID && !e.keys.KeyExists(keyID) {
		return nil, apierror.New(apierror.KeyNotFound)
	}

	kp, err := e.keys.GetKeyPair(keyID)
	if err != nil {
		return nil, apierror.Wrap(apierror.KeyNotFound, err)
	}

	keyType := kp.KeyType
	cryptosuite := p.Cryptosuite
	if cryptosuite != "" {
		mapped, ok := keystore.CryptosuiteKeyType(keystore.Cryptosuite(cryptosuite))
		if !ok {
			return nil, apierror.NewWithDetails(apierror.CryptosuiteUnsupported, cryptosuite)
		}
		keyType = mapped
	}

	// Re-canonicalize with the proof removed: the Verification/ProofField
	// bytes are never part of the canonical field set, so nothing further
	// needs stripping.
	canon, err := Canonicalize(a)
	if err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}

	ok, err := VerifyBytes(canon, p.ProofValue, kp.PublicKey, keyType)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierror.New(apierror.SignatureVerificationFailed)
	}

	return &VerificationResult{
		VerificationMethod: p.VerificationMethod,
		Cryptosuite:        cryptosuite,
	}, nil
}

func jwtSigningMethod(alg string) (jwt.SigningMethod, error) {
	switch alg {
	case "RS256":
		return jwt.SigningMethodRS256, nil
	case "ES256":
		return jwt.SigningMethodES256, nil
	case "EdDSA":
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, apierror.NewWithDetails(apierror.CryptosuiteUnsupported, alg)
	}
}

func jwtSigningKey(privateKeyPEM []byte, keyType keystore.KeyType) (any, error) {
	switch keyType {
	case keystore.KeyTypeRSA:
		return parseRSAPrivateKey(privateKeyPEM)
	case keystore.KeyTypeEd25519:
		return parseEd25519PrivateKey(privateKeyPEM)
	default:
		return nil, apierror.NewWithDetails(apierror.CryptosuiteUnsupported, keyType)
	}
}

func jwtVerifyKey(publicKeyPEM []byte, keyType keystore.KeyType) (any, error) {
	switch keyType {
	case keystore.KeyTypeRSA:
		return parseRSAPublicKey(publicKeyPEM)
	case keystore.KeyTypeEd25519:
		return parseEd25519PublicKey(publicKeyPEM)
	default:
		return nil, apierror.NewWithDetails(apierror.CryptosuiteUnsupported, keyType)
	}
}
