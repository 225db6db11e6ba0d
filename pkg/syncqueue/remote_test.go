package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/forest6511/daybook/pkg/journal"
)

type remoteServer struct {
	mu      sync.Mutex
	entries map[string]journal.Entry
}

func newRemoteServer(t *testing.T) (*remoteServer, *httptest.Server) {
	t.Helper()
	rs := &remoteServer{entries: make(map[string]journal.Entry)}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/entries/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		id := r.URL.Path[len("/entries/"):]

		rs.mu.Lock()
		defer rs.mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			var entry journal.Entry
			if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			rs.entries[id] = entry
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			if _, ok := rs.entries[id]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(rs.entries, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return rs, srv
}

func TestHTTPRemoteRoundTrip(t *testing.T) {
	ctx := context.Background()
	rs, srv := newRemoteServer(t)
	remote := NewHTTPRemote(srv.URL, "token123")

	entry := journal.Entry{
		ID:        "e1",
		Title:     "v1:c2VhbGVk",
		Date:      time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Encrypted: true,
	}

	if err := remote.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	// Replay of the same create must not fail or duplicate.
	if err := remote.Create(ctx, entry); err != nil {
		t.Fatalf("replayed Create() error: %v", err)
	}
	if len(rs.entries) != 1 {
		t.Errorf("server holds %d records, want 1", len(rs.entries))
	}

	entry.Title = "v1:dXBkYXRlZA=="
	if err := remote.Update(ctx, entry.ID, entry); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if rs.entries["e1"].Title != "v1:dXBkYXRlZA==" {
		t.Errorf("server title = %q after update", rs.entries["e1"].Title)
	}

	if err := remote.Delete(ctx, entry.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	// Deleting an already-deleted entry is not an error.
	if err := remote.Delete(ctx, entry.ID); err != nil {
		t.Errorf("Delete() of missing entry = %v, want nil", err)
	}
}

func TestHTTPRemoteRejectedStatus(t *testing.T) {
	ctx := context.Background()
	_, srv := newRemoteServer(t)
	remote := NewHTTPRemote(srv.URL, "wrong-token")

	err := remote.Create(ctx, journal.Entry{ID: "e1", Title: "t", Date: time.Now()})
	if !errors.Is(err, ErrRemoteRejected) {
		t.Errorf("Create() with bad token = %v, want ErrRemoteRejected", err)
	}
}

func TestHTTPGate(t *testing.T) {
	ctx := context.Background()
	_, srv := newRemoteServer(t)

	gate := NewHTTPGate(srv.URL, "token123")
	if !gate.Online(ctx) {
		t.Error("Online() = false against a healthy server")
	}
	if !gate.Authenticated(ctx) {
		t.Error("Authenticated() = false with a token")
	}

	anonymous := NewHTTPGate(srv.URL, "")
	if anonymous.Authenticated(ctx) {
		t.Error("Authenticated() = true without a token")
	}

	srv.Close()
	if gate.Online(ctx) {
		t.Error("Online() = true against a closed server")
	}
}
