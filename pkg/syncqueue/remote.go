package syncqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forest6511/daybook/pkg/journal"
)

// ErrRemoteRejected is returned when the server refuses an operation.
var ErrRemoteRejected = errors.New("syncqueue: remote rejected the request")

const remoteTimeout = 15 * time.Second

// HTTPRemote replicates entries to a REST endpoint. Records are addressed
// by the local entry id, so replaying an acknowledged-but-unconfirmed
// push overwrites instead of duplicating.
type HTTPRemote struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPRemote builds a remote against the given base URL. The token is
// sent as a bearer credential on every request.
func NewHTTPRemote(baseURL, token string) *HTTPRemote {
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: remoteTimeout},
	}
}

// Create pushes a new entry. PUT keyed by id keeps the call idempotent.
func (r *HTTPRemote) Create(ctx context.Context, entry journal.Entry) error {
	return r.put(ctx, entry.ID, entry)
}

// Update pushes a changed entry.
func (r *HTTPRemote) Update(ctx context.Context, id string, entry journal.Entry) error {
	return r.put(ctx, id, entry)
}

// Delete removes an entry from the server. A 404 counts as success, the
// entry is gone either way.
func (r *HTTPRemote) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.entryURL(id), nil)
	if err != nil {
		return fmt.Errorf("syncqueue: failed to build request: %w", err)
	}
	resp, err := r.do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return checkStatus(resp)
}

func (r *HTTPRemote) put(ctx context.Context, id string, entry journal.Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("syncqueue: failed to encode entry: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.entryURL(id), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("syncqueue: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.do(req)
	if err != nil {
		return err
	}
	defer drain(resp)
	return checkStatus(resp)
}

func (r *HTTPRemote) do(req *http.Request) (*http.Response, error) {
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("syncqueue: request failed: %w", err)
	}
	return resp, nil
}

func (r *HTTPRemote) entryURL(id string) string {
	return r.baseURL + "/entries/" + id
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRemoteRejected, resp.Status)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// HTTPGate reports readiness against the same endpoint. Online probes the
// health route; Authenticated requires a configured token.
type HTTPGate struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPGate builds a gate for the given base URL.
func NewHTTPGate(baseURL, token string) *HTTPGate {
	return &HTTPGate{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Online reports whether the server's health route answers.
func (g *HTTPGate) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	drain(resp)
	return resp.StatusCode == http.StatusOK
}

// Authenticated reports whether a credential is configured.
func (g *HTTPGate) Authenticated(ctx context.Context) bool {
	return g.token != ""
}
