package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swamireddy/ceph-lcm/pkg/lockstore"
	"github.com/swamireddy/ceph-lcm/pkg/types"
)

func newTestServer(t *testing.T, cfg Config, store lockstore.Store) http.Handler {
	t.Helper()
	return New(cfg, store, nil).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeOK(t *testing.T, rec *httptest.ResponseRecorder) bool {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp okResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.OK
}

func TestClaimAndGet(t *testing.T) {
	store := lockstore.NewMemoryStore()
	h := newTestServer(t, Config{}, store)

	rec := doJSON(t, h, http.MethodPost, "/v1/locks/cluster-1-deploy/claim",
		claimRequest{Owner: "owner-a", Now: 100, ExpiredAt: 130})
	assert.True(t, decodeOK(t, rec))

	rec = doJSON(t, h, http.MethodGet, "/v1/locks/cluster-1-deploy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.LockRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "owner-a", got.Locker)
	assert.EqualValues(t, 130, got.ExpiredAt)
}

func TestClaimConflict(t *testing.T) {
	store := lockstore.NewMemoryStore()
	h := newTestServer(t, Config{}, store)

	rec := doJSON(t, h, http.MethodPost, "/v1/locks/l/claim",
		claimRequest{Owner: "owner-a", Now: 100, ExpiredAt: 130})
	assert.True(t, decodeOK(t, rec))

	rec = doJSON(t, h, http.MethodPost, "/v1/locks/l/claim",
		claimRequest{Owner: "owner-b", Now: 101, ExpiredAt: 131})
	assert.False(t, decodeOK(t, rec))

	// expired lease frees the record for the next claimant
	rec = doJSON(t, h, http.MethodPost, "/v1/locks/l/claim",
		claimRequest{Owner: "owner-b", Now: 131, ExpiredAt: 161})
	assert.True(t, decodeOK(t, rec))
}

func TestForceClaimSteals(t *testing.T) {
	store := lockstore.NewMemoryStore()
	h := newTestServer(t, Config{}, store)

	doJSON(t, h, http.MethodPost, "/v1/locks/l/claim",
		claimRequest{Owner: "owner-a", Now: 100, ExpiredAt: 130})
	rec := doJSON(t, h, http.MethodPost, "/v1/locks/l/claim",
		claimRequest{Owner: "owner-b", ExpiredAt: 140, Force: true})
	assert.True(t, decodeOK(t, rec))

	got, err := store.Get(context.Background(), "l")
	require.NoError(t, err)
	assert.Equal(t, "owner-b", got.Locker)
}

func TestReleaseOwnerChecks(t *testing.T) {
	store := lockstore.NewMemoryStore()
	h := newTestServer(t, Config{}, store)

	doJSON(t, h, http.MethodPost, "/v1/locks/l/claim",
		claimRequest{Owner: "owner-a", Now: 100, ExpiredAt: 130})

	rec := doJSON(t, h, http.MethodPost, "/v1/locks/l/release",
		releaseRequest{Owner: "owner-b"})
	assert.False(t, decodeOK(t, rec))

	rec = doJSON(t, h, http.MethodPost, "/v1/locks/l/release",
		releaseRequest{Force: true})
	assert.True(t, decodeOK(t, rec))

	got, err := store.Get(context.Background(), "l")
	require.NoError(t, err)
	assert.Empty(t, got.Locker)
	assert.Zero(t, got.ExpiredAt)
}

func TestProlong(t *testing.T) {
	store := lockstore.NewMemoryStore()
	h := newTestServer(t, Config{}, store)

	doJSON(t, h, http.MethodPost, "/v1/locks/l/claim",
		claimRequest{Owner: "owner-a", Now: 100, ExpiredAt: 130})

	rec := doJSON(t, h, http.MethodPost, "/v1/locks/l/prolong",
		prolongRequest{Owner: "owner-a", ExpiredAt: 160})
	assert.True(t, decodeOK(t, rec))

	rec = doJSON(t, h, http.MethodPost, "/v1/locks/l/prolong",
		prolongRequest{Owner: "owner-b", ExpiredAt: 170})
	assert.False(t, decodeOK(t, rec))

	// forced prolong hands the lock to the new owner
	rec = doJSON(t, h, http.MethodPost, "/v1/locks/l/prolong",
		prolongRequest{Owner: "owner-b", ExpiredAt: 170, Force: true})
	assert.True(t, decodeOK(t, rec))

	got, err := store.Get(context.Background(), "l")
	require.NoError(t, err)
	assert.Equal(t, "owner-b", got.Locker)
	assert.EqualValues(t, 170, got.ExpiredAt)
}

func TestBadRequests(t *testing.T) {
	h := newTestServer(t, Config{}, lockstore.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/v1/locks/l/claim",
		bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/locks/l/claim",
		claimRequest{Now: 100, ExpiredAt: 130}) // no owner
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/locks/l/release",
		releaseRequest{}) // no owner, not forced
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownLock(t *testing.T) {
	h := newTestServer(t, Config{}, lockstore.NewMemoryStore())
	rec := doJSON(t, h, http.MethodGet, "/v1/locks/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type brokenStore struct {
	lockstore.Store
}

func (brokenStore) TryClaim(context.Context, string, string, int64, int64) (bool, error) {
	return false, errors.New("backend down")
}

func TestStoreErrorMapsToBadGateway(t *testing.T) {
	h := newTestServer(t, Config{}, brokenStore{Store: lockstore.NewMemoryStore()})
	rec := doJSON(t, h, http.MethodPost, "/v1/locks/l/claim",
		claimRequest{Owner: "owner-a", Now: 100, ExpiredAt: 130})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAuthToken(t *testing.T) {
	h := newTestServer(t, Config{AuthToken: "sekrit"}, lockstore.NewMemoryStore())

	body, _ := json.Marshal(claimRequest{Owner: "owner-a", Now: 100, ExpiredAt: 130})

	req := httptest.NewRequest(http.MethodPost, "/v1/locks/l/claim", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/locks/l/claim", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/locks/l/claim", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer sekrit")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// status stays open without a token
	req = httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
