package keystore

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/logger"
)

// rsaKeyBits is the default RSA modulus size for newly generated keys.
const rsaKeyBits = 2048

// Store holds every key pair the service signs and verifies with. It is
// constructed once at startup and passed explicitly to every component
// that needs key material.
type Store struct {
	dir string
	log *logger.Log
	now func() time.Time

	mu   sync.RWMutex
	keys map[string]*KeyPair

	// signingAlias maps DefaultKeyID to the pair new signatures should
	// use. Rotation repoints it to the replacement without touching the
	// rotated-out pair, which keeps its id and stays resolvable for
	// verification.
	signingAlias string
}

// New constructs a Store rooted at dir. Callers must call Initialize before
// using it.
func New(dir string, log *logger.Log) *Store {
	return &Store{
		dir:          dir,
		log:          log,
		now:          time.Now,
		keys:         make(map[string]*KeyPair),
		signingAlias: DefaultKeyID,
	}
}

// Initialize creates the keys directory, loads every persisted triple, and
// ensures DefaultKeyID exists. It is idempotent and must complete before
// any signing or verification.
func (s *Store) Initialize() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apierror.Wrap(apierror.InternalError, err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return apierror.Wrap(apierror.InternalError, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".pub" {
			ids[name[:len(name)-len(".pub")]] = true
		}
	}

	for id := range ids {
		kp, err := s.loadFromDisk(id)
		if err != nil {
			s.log.Error(err, "failed to load key pair from disk", "id", id)
			continue
		}
		s.keys[id] = kp
	}

	if _, ok := s.keys[DefaultKeyID]; !ok {
		kp, err := s.generate(DefaultKeyID, KeyTypeRSA)
		if err != nil {
			return err
		}
		if err := s.persist(kp); err != nil {
			return err
		}
		s.keys[DefaultKeyID] = kp
	}

	// A previous run may have rotated the default key: the pair stored
	// under "default" is then inactive and its replacement lives under
	// "default-<unix-millis>". Repoint the signing alias at the newest
	// active replacement so fresh signatures keep using it after restart.
	if s.keys[DefaultKeyID].Status != StatusActive {
		s.signingAlias = DefaultKeyID
		var newest time.Time
		for id, kp := range s.keys {
			if kp.Status != StatusActive || !strings.HasPrefix(id, DefaultKeyID+"-") {
				continue
			}
			if kp.CreatedAt.After(newest) {
				newest = kp.CreatedAt
				s.signingAlias = id
			}
		}
	}

	return nil
}

// GetPublicKey returns the PEM-encoded public key for id.
func (s *Store) GetPublicKey(id string) ([]byte, error) {
	kp, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return kp.PublicKey, nil
}

// GetPrivateKey returns the PEM-encoded private key for id.
func (s *Store) GetPrivateKey(id string) ([]byte, error) {
	kp, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return kp.PrivateKey, nil
}

// GetKeyPair returns the full KeyPair record for id.
func (s *Store) GetKeyPair(id string) (*KeyPair, error) {
	return s.get(id)
}

// SigningKeyPair resolves id to the pair new signatures should use. For
// DefaultKeyID this follows the rotation alias, so after a default-key
// rotation fresh proofs are produced by the replacement while the
// rotated-out pair remains reachable under its own id for verification.
func (s *Store) SigningKeyPair(id string) (*KeyPair, error) {
	if id == DefaultKeyID {
		s.mu.RLock()
		alias := s.signingAlias
		s.mu.RUnlock()
		id = alias
	}
	return s.get(id)
}

func (s *Store) get(id string) (*KeyPair, error) {
	s.mu.RLock()
	kp, ok := s.keys[id]
	s.mu.RUnlock()
	if ok {
		return kp, nil
	}

	kp, err := s.loadFromDisk(id)
	if err != nil {
		return nil, apierror.Wrap(apierror.KeyNotFound, err)
	}

	s.mu.Lock()
	s.keys[id] = kp
	s.mu.Unlock()

	return kp, nil
}

// KeyExists reports whether id resolves to a usable key pair.
func (s *Store) KeyExists(id string) bool {
	if id == DefaultKeyID {
		return true
	}
	_, err := s.get(id)
	return err == nil
}

// GenerateKeyPair creates, persists, and caches a new key pair under id,
// replacing any existing entry.
func (s *Store) GenerateKeyPair(id string, keyType KeyType) (*KeyPair, error) {
	kp, err := s.generate(id, keyType)
	if err != nil {
		return nil, err
	}
	if err := s.persist(kp); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.keys[id] = kp
	s.mu.Unlock()

	return kp, nil
}

// DeleteKeyPair removes id's files and cache entry. DefaultKeyID may never
// be deleted.
func (s *Store) DeleteKeyPair(id string) error {
	if id == DefaultKeyID {
		return apierror.NewWithDetails(apierror.InternalError, "default key may not be deleted")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, id)

	for _, ext := range []string{".pub", ".key", ".meta.json"} {
		path := filepath.Join(s.dir, id+ext)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return apierror.Wrap(apierror.InternalError, err)
		}
	}
	return nil
}

// RotateKey marks id inactive and generates a replacement under
// "<id>-<unix-millis>". The rotated-out pair keeps its id, so proofs that
// reference it keep verifying. If id is DefaultKeyID, the signing alias is
// repointed to the new pair (no disk copy under "default").
func (s *Store) RotateKey(id string, newKeyType *KeyType) (*KeyPair, error) {
	s.mu.Lock()
	old, ok := s.keys[id]
	s.mu.Unlock()
	if !ok {
		loaded, err := s.loadFromDisk(id)
		if err != nil {
			return nil, apierror.Wrap(apierror.KeyNotFound, err)
		}
		old = loaded
	}

	now := s.now()
	old.Status = StatusInactive
	old.RotatedAt = &now
	if err := s.persist(old); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.keys[id] = old
	s.mu.Unlock()

	keyType := old.KeyType
	if newKeyType != nil {
		keyType = *newKeyType
	}

	newID := fmt.Sprintf("%s-%d", id, now.UnixMilli())
	next, err := s.generate(newID, keyType)
	if err != nil {
		return nil, err
	}
	if err := s.persist(next); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.keys[newID] = next
	if id == DefaultKeyID {
		s.signingAlias = newID
	}
	s.mu.Unlock()

	return next, nil
}

// SetKeyStatus updates id's lifecycle status.
func (s *Store) SetKeyStatus(id string, status Status) error {
	kp, err := s.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	kp.Status = status
	s.mu.Unlock()

	return s.persist(kp)
}

// GetKeyStatusInfo returns a summary of every known key, including rotated
// predecessors.
func (s *Store) GetKeyStatusInfo() []StatusInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]StatusInfo, 0, len(s.keys))
	for id, kp := range s.keys {
		out = append(out, StatusInfo{
			ID:          id,
			KeyType:     kp.KeyType,
			Cryptosuite: kp.Cryptosuite,
			Status:      kp.Status,
			CreatedAt:   kp.CreatedAt,
			RotatedAt:   kp.RotatedAt,
		})
	}
	return out
}

func (s *Store) generate(id string, keyType KeyType) (*KeyPair, error) {
	var pubPEM, privPEM []byte
	var err error

	switch keyType {
	case KeyTypeEd25519:
		pubPEM, privPEM, err = generateEd25519PEM()
	default:
		keyType = KeyTypeRSA
		pubPEM, privPEM, err = generateRSAPEM()
	}
	if err != nil {
		return nil, apierror.Wrap(apierror.InternalError, err)
	}

	return &KeyPair{
		ID:          id,
		PublicKey:   pubPEM,
		PrivateKey:  privPEM,
		KeyType:     keyType,
		Cryptosuite: DefaultCryptosuite(keyType),
		Status:      StatusActive,
		CreatedAt:   s.now(),
	}, nil
}

func generateRSAPEM() (pubPEM, privPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, nil, err
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	return pubPEM, privPEM, nil
}

func generateEd25519PEM() (pubPEM, privPEM []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, err
	}
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	return pubPEM, privPEM, nil
}

// persist writes <id>.pub (0644), <id>.key (0600), <id>.meta.json (0644).
func (s *Store) persist(kp *KeyPair) error {
	pubPath := filepath.Join(s.dir, kp.ID+".pub")
	keyPath := filepath.Join(s.dir, kp.ID+".key")
	metaPath := filepath.Join(s.dir, kp.ID+".meta.json")

	if err := os.WriteFile(pubPath, kp.PublicKey, 0o644); err != nil {
		return apierror.Wrap(apierror.InternalError, err)
	}
	if err := os.WriteFile(keyPath, kp.PrivateKey, 0o600); err != nil {
		return apierror.Wrap(apierror.InternalError, err)
	}

	meta := struct {
		KeyType     KeyType     `json:"keyType"`
		Cryptosuite Cryptosuite `json:"cryptosuite"`
		Created     time.Time   `json:"created"`
		Status      Status      `json:"status"`
		RotatedAt   *time.Time  `json:"rotatedAt,omitempty"`
		ExpiresAt   *time.Time  `json:"expiresAt,omitempty"`
	}{kp.KeyType, kp.Cryptosuite, kp.CreatedAt, kp.Status, kp.RotatedAt, kp.ExpiresAt}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apierror.Wrap(apierror.InternalError, err)
	}
	if err := os.WriteFile(metaPath, metaBytes, 0o644); err != nil {
		return apierror.Wrap(apierror.InternalError, err)
	}

	return nil
}

// loadFromDisk reads id's triple. Metadata is the source of truth for
// keyType/cryptosuite; PEM autodetection is only a fallback when metadata
// is missing or unreadable.
func (s *Store) loadFromDisk(id string) (*KeyPair, error) {
	pubPath := filepath.Join(s.dir, id+".pub")
	keyPath := filepath.Join(s.dir, id+".key")
	metaPath := filepath.Join(s.dir, id+".meta.json")

	pubPEM, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, err
	}
	privPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	kp := &KeyPair{ID: id, PublicKey: pubPEM, PrivateKey: privPEM}

	metaBytes, metaErr := os.ReadFile(metaPath)
	if metaErr == nil {
		var meta struct {
			KeyType     KeyType     `json:"keyType"`
			Cryptosuite Cryptosuite `json:"cryptosuite"`
			Created     time.Time   `json:"created"`
			Status      Status      `json:"status"`
			RotatedAt   *time.Time  `json:"rotatedAt,omitempty"`
			ExpiresAt   *time.Time  `json:"expiresAt,omitempty"`
		}
		if err := json.Unmarshal(metaBytes, &meta); err == nil {
			kp.KeyType = meta.KeyType
			kp.Cryptosuite = meta.Cryptosuite
			kp.CreatedAt = meta.Created
			kp.Status = meta.Status
			kp.RotatedAt = meta.RotatedAt
			kp.ExpiresAt = meta.ExpiresAt
		}
	}

	if kp.KeyType == "" {
		kp.KeyType = detectKeyType(privPEM)
		kp.Cryptosuite = DefaultCryptosuite(kp.KeyType)
	}
	if kp.Status == "" {
		kp.Status = StatusActive
	}
	if kp.CreatedAt.IsZero() {
		kp.CreatedAt = s.now()
	}

	return kp, nil
}

// detectKeyType is the PEM-autodetection fallback: an explicit
// "BEGIN RSA ..." header means RSA, otherwise parse and inspect, otherwise
// default to RSA.
func detectKeyType(privPEM []byte) KeyType {
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return KeyTypeRSA
	}

	if block.Type == "RSA PRIVATE KEY" {
		return KeyTypeRSA
	}

	var key crypto.Signer
	var err error
	switch block.Type {
	case "EC PRIVATE KEY":
		return KeyTypeRSA // ECDSA keys are not supported.
	default:
		parsed, perr := x509.ParsePKCS8PrivateKey(block.Bytes)
		err = perr
		if perr == nil {
			if signer, ok := parsed.(crypto.Signer); ok {
				key = signer
			}
		}
	}
	if err != nil || key == nil {
		return KeyTypeRSA
	}

	switch key.(type) {
	case ed25519.PrivateKey:
		return KeyTypeEd25519
	case *rsa.PrivateKey:
		return KeyTypeRSA
	default:
		return KeyTypeRSA
	}
}
