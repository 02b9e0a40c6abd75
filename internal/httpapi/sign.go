package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/keystore"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/proof"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
)

// signCredentialDocument attaches a DataIntegrityProof, signed under the
// default key, to an arbitrary VC-shaped document. encoding/json sorts map
// keys at every nesting level, so marshaling doc directly already gives a
// stable byte sequence to sign over — this document's shape (a
// BitstringStatusListCredential) carries no separate essential-field
// selection the way internal/proof.Canonicalize does for Assertions.
func signCredentialDocument(doc map[string]any, keys *keystore.Store, baseURL string) (map[string]any, error) {
	kp, err := keys.SigningKeyPair(keystore.DefaultKeyID)
	if err != nil {
		return nil, apierror.Wrap(apierror.KeyNotFound, err)
	}

	canon, err := json.Marshal(doc)
	if err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}

	sig, err := proof.SignBytes(canon, kp.PrivateKey, kp.KeyType)
	if err != nil {
		return nil, err
	}

	signed := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		signed[k] = v
	}
	signed["proof"] = map[string]any{
		"type":               "DataIntegrityProof",
		"cryptosuite":        string(kp.Cryptosuite),
		"created":            time.Now().UTC().Format(time.RFC3339),
		"proofPurpose":       "assertionMethod",
		"verificationMethod": fmt.Sprintf("%s/public-keys/%s", baseURL, kp.ID),
		"proofValue":         sig,
	}
	return signed, nil
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
