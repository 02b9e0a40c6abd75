package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/credentialstatus"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/httpapi"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/keystore"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/proof"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/statuslist"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/logger"
)

func newTestServer(t *testing.T) *httpapi.Server {
	t.Helper()
	log, err := logger.New("test", "", false)
	require.NoError(t, err)

	dir := t.TempDir()
	keys := keystore.New(dir, log)
	require.NoError(t, keys.Initialize())

	lists := statuslist.NewMemoryListRepository()
	entries := statuslist.NewMemoryEntryRepository()
	listEngine := statuslist.New(lists, entries, log)
	binder := credentialstatus.New(listEngine, entries, "https://issuer.example.edu")
	proofEngine := proof.New(keys, "https://issuer.example.edu", 0)

	return httpapi.New(httpapi.Config{
		Addr:        ":0",
		BaseURL:     "https://issuer.example.edu",
		IssuerID:    "https://issuer.example.edu",
		DisableRBAC: true,
	}, listEngine, binder, keys, proofEngine, log)
}

func doRequest(t *testing.T, s *httpapi.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func TestCreateAndFetchStatusList(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v3/status-lists", map[string]any{
		"issuerId": "issuer-1",
		"purpose":  "revocation",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id, ok := created["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	rec = doRequest(t, s, http.MethodGet, "/v3/status-lists/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vc+ld+json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Contains(t, doc, "proof")
}

func TestGetStatusListStats(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/v3/status-lists", map[string]any{
		"issuerId": "issuer-1",
		"purpose":  "suspension",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["id"].(string)

	rec = doRequest(t, s, http.MethodGet, "/v3/status-lists/"+id+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 131072, stats["totalEntries"])
	assert.EqualValues(t, 0, stats["usedEntries"])
}

func TestCreateStatusListHonorsTotalEntriesAndTTL(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v3/status-lists", map[string]any{
		"issuerId":     "issuer-2",
		"purpose":      "revocation",
		"totalEntries": 262144,
		"ttl":          3600000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.EqualValues(t, 262144, created["totalEntries"])

	id := created["id"].(string)
	rec = doRequest(t, s, http.MethodGet, "/v3/status-lists/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Contains(t, doc, "validUntil")
	subject := doc["credentialSubject"].(map[string]any)
	assert.EqualValues(t, 3600000, subject["ttl"])
}

func TestUpdateCredentialStatusNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/v3/credentials/does-not-exist/status", map[string]any{
		"status":  1,
		"purpose": "revocation",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJWKSEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/.well-known/jwks.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var jwks map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jwks))
	keys, ok := jwks["keys"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, keys)
}
