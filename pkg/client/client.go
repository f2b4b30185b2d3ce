package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/swamireddy/ceph-lcm/pkg/lockstore"
	"github.com/swamireddy/ceph-lcm/pkg/types"
)

// RemoteStore talks to a lockmand server over its HTTP/JSON API and
// satisfies lockstore.Store, so a lock.Lock built on it behaves exactly
// like one built on a local backend. Each conditional operation is one
// POST, the server performs it atomically.
type RemoteStore struct {
	baseURL   string
	authToken string
	httpc     *http.Client
}

type Option func(*RemoteStore)

// WithAuthToken sends the token as a bearer credential on every request.
func WithAuthToken(token string) Option {
	return func(r *RemoteStore) { r.authToken = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *RemoteStore) { r.httpc = c }
}

func NewRemoteStore(baseURL string, opts ...Option) *RemoteStore {
	r := &RemoteStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type claimRequest struct {
	Owner     string `json:"owner"`
	Now       int64  `json:"now"`
	ExpiredAt int64  `json:"expired_at"`
	Force     bool   `json:"force"`
}

type releaseRequest struct {
	Owner string `json:"owner"`
	Force bool   `json:"force"`
}

type prolongRequest struct {
	Owner     string `json:"owner"`
	ExpiredAt int64  `json:"expired_at"`
	Force     bool   `json:"force"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

func (r *RemoteStore) TryClaim(ctx context.Context, name, owner string, now, expiredAt int64) (bool, error) {
	return r.post(ctx, name, "claim", claimRequest{Owner: owner, Now: now, ExpiredAt: expiredAt})
}

func (r *RemoteStore) TryRelease(ctx context.Context, name, owner string) (bool, error) {
	return r.post(ctx, name, "release", releaseRequest{Owner: owner})
}

func (r *RemoteStore) TryProlong(ctx context.Context, name, owner string, expiredAt int64) (bool, error) {
	return r.post(ctx, name, "prolong", prolongRequest{Owner: owner, ExpiredAt: expiredAt})
}

func (r *RemoteStore) ForceClaim(ctx context.Context, name, owner string, expiredAt int64) error {
	_, err := r.post(ctx, name, "claim", claimRequest{Owner: owner, ExpiredAt: expiredAt, Force: true})
	return err
}

func (r *RemoteStore) ForceRelease(ctx context.Context, name string) error {
	_, err := r.post(ctx, name, "release", releaseRequest{Force: true})
	return err
}

func (r *RemoteStore) ForceProlong(ctx context.Context, name, owner string, expiredAt int64) error {
	_, err := r.post(ctx, name, "prolong", prolongRequest{Owner: owner, ExpiredAt: expiredAt, Force: true})
	return err
}

func (r *RemoteStore) Get(ctx context.Context, name string) (*types.LockRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.lockURL(name, ""), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, types.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus(resp)
	}

	var rec types.LockRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode lock record: %w", err)
	}
	return &rec, nil
}

func (r *RemoteStore) post(ctx context.Context, name, op string, body any) (bool, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.lockURL(name, op), bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.do(req)
	if err != nil {
		return false, fmt.Errorf("%s %q: %w", op, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, unexpectedStatus(resp)
	}

	var result okResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode %s response: %w", op, err)
	}
	return result.OK, nil
}

func (r *RemoteStore) do(req *http.Request) (*http.Response, error) {
	if r.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.authToken)
	}
	return r.httpc.Do(req)
}

func (r *RemoteStore) lockURL(name, op string) string {
	u := r.baseURL + "/v1/locks/" + name
	if op != "" {
		u += "/" + op
	}
	return u
}

func unexpectedStatus(resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}

var _ lockstore.Store = (*RemoteStore)(nil)
