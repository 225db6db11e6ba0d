// Package syncqueue implements the durable queue of pending remote
// mutations and its bounded-retry processor.
package syncqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forest6511/daybook/pkg/journal"
)

// OpType classifies a queued mutation.
type OpType string

const (
	OpCreate OpType = "CREATE"
	OpUpdate OpType = "UPDATE"
	OpDelete OpType = "DELETE"
)

// MaxAttempts is the retry budget. An item that fails this many times is
// parked: kept in the queue and surfaced, but excluded from automatic
// processing until manually retried.
const MaxAttempts = 3

// Item is one durable remote-mutation intent derived from a local change.
// Payload carries the sealed entry: plaintext never enters the queue.
type Item struct {
	ID         string
	Type       OpType
	EntryID    string
	Payload    *journal.Entry
	EnqueuedAt time.Time
	RetryCount int
	LastError  string
}

// Parked reports whether the item exhausted its retry budget.
func (i Item) Parked() bool {
	return i.RetryCount >= MaxAttempts
}

// Remote is the abstract remote journal repository. Records are keyed by
// the local entry id, so replaying a CREATE whose remote write already
// committed cannot mint a duplicate under a new identity.
type Remote interface {
	Create(ctx context.Context, entry journal.Entry) error
	Update(ctx context.Context, id string, entry journal.Entry) error
	Delete(ctx context.Context, id string) error
}

// Gate reports whether remote processing can run at all. When it says no,
// ProcessQueue is a no-op.
type Gate interface {
	Online(ctx context.Context) bool
	Authenticated(ctx context.Context) bool
}

// AlwaysReady is a Gate that never blocks processing, for single-user
// setups without an auth layer.
type AlwaysReady struct{}

func (AlwaysReady) Online(context.Context) bool        { return true }
func (AlwaysReady) Authenticated(context.Context) bool { return true }

// Result summarizes one processing pass.
type Result struct {
	Processed int
	Failed    int
}

// Queue is the persistent sync queue. mu guards the persisted
// read-modify-write only; remote calls run outside it, so Enqueue never
// waits on an in-flight network operation. procMu serializes processing
// passes and Enqueue never takes it.
type Queue struct {
	db     *sql.DB
	remote Remote
	gate   Gate

	mu     sync.Mutex
	procMu sync.Mutex
	wake   chan struct{}
}

// New binds a queue to an open database, ensuring its table exists.
func New(db *sql.DB, remote Remote, gate Gate) (*Queue, error) {
	if gate == nil {
		gate = AlwaysReady{}
	}
	q := &Queue{db: db, remote: remote, gate: gate, wake: make(chan struct{}, 1)}
	if err := q.ensureSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) ensureSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS queue_items (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			entry_id TEXT NOT NULL,
			payload TEXT,
			enqueued_at TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("syncqueue: failed to create queue table: %w", err)
	}
	return nil
}

// Enqueue appends a durable item and signals the background processor. It
// never blocks on remote completion.
func (q *Queue) Enqueue(ctx context.Context, op OpType, entryID string, payload *journal.Entry) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("syncqueue: failed to encode payload: %w", err)
		}
		payloadJSON = string(data)
	}

	id := uuid.NewString()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO queue_items (id, type, entry_id, payload, enqueued_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, string(op), entryID, payloadJSON, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("syncqueue: failed to enqueue: %w", err)
	}

	// Non-blocking wake of the Run loop.
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return id, nil
}

// EnqueueCreate records a new entry for replication.
func (q *Queue) EnqueueCreate(ctx context.Context, e journal.Entry) error {
	_, err := q.Enqueue(ctx, OpCreate, e.ID, &e)
	return err
}

// EnqueueUpdate records a changed entry for replication.
func (q *Queue) EnqueueUpdate(ctx context.Context, e journal.Entry) error {
	_, err := q.Enqueue(ctx, OpUpdate, e.ID, &e)
	return err
}

// EnqueueDelete records a deletion for replication.
func (q *Queue) EnqueueDelete(ctx context.Context, id string) error {
	_, err := q.Enqueue(ctx, OpDelete, id, nil)
	return err
}

// Run processes the queue whenever Enqueue signals it, until ctx is done.
// Pass results are not returned here; callers wanting observable results
// invoke ProcessQueue directly.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
			_, _ = q.ProcessQueue(ctx)
		}
	}
}

// ProcessQueue applies pending items against the remote repository in
// enqueue order. It is a no-op while offline or unauthenticated. Per-item
// failure increments the retry count and keeps the item; after MaxAttempts
// total failures the item is parked. Later items for an entry whose
// earlier item failed are skipped in the same pass, preserving per-entry
// order. No item is removed before remote confirmation.
//
// The remote calls run without holding mu, so concurrent Enqueue calls
// proceed while a pass is mid network operation.
func (q *Queue) ProcessQueue(ctx context.Context) (Result, error) {
	q.procMu.Lock()
	defer q.procMu.Unlock()

	if !q.gate.Online(ctx) || !q.gate.Authenticated(ctx) {
		return Result{}, nil
	}

	q.mu.Lock()
	items, err := q.loadItems(ctx)
	q.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	var result Result
	blocked := make(map[string]bool)
	for _, item := range items {
		if blocked[item.EntryID] {
			continue
		}
		if item.Parked() {
			// Parked items stay queued and keep blocking their entry.
			blocked[item.EntryID] = true
			continue
		}

		if err := q.apply(ctx, item); err != nil {
			result.Failed++
			blocked[item.EntryID] = true
			q.mu.Lock()
			uerr := q.markFailed(ctx, item.ID, err)
			q.mu.Unlock()
			if uerr != nil {
				return result, uerr
			}
			continue
		}

		q.mu.Lock()
		err := q.remove(ctx, item.ID)
		q.mu.Unlock()
		if err != nil {
			return result, err
		}
		result.Processed++
	}
	return result, nil
}

func (q *Queue) apply(ctx context.Context, item Item) error {
	switch item.Type {
	case OpCreate:
		if item.Payload == nil {
			return fmt.Errorf("syncqueue: CREATE item %s has no payload", item.ID)
		}
		return q.remote.Create(ctx, *item.Payload)
	case OpUpdate:
		if item.Payload == nil {
			return fmt.Errorf("syncqueue: UPDATE item %s has no payload", item.ID)
		}
		return q.remote.Update(ctx, item.EntryID, *item.Payload)
	case OpDelete:
		return q.remote.Delete(ctx, item.EntryID)
	default:
		return fmt.Errorf("syncqueue: unknown operation type %q", item.Type)
	}
}

// PendingCount returns the number of queued items, parked ones included:
// exhausted items are surfaced, never silently dropped.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queue_items").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("syncqueue: failed to count items: %w", err)
	}
	return count, nil
}

// Items returns every queued item in enqueue order.
func (q *Queue) Items(ctx context.Context) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadItems(ctx)
}

// ParkedItems returns the items excluded from automatic processing.
func (q *Queue) ParkedItems(ctx context.Context) ([]Item, error) {
	items, err := q.Items(ctx)
	if err != nil {
		return nil, err
	}
	var parked []Item
	for _, item := range items {
		if item.Parked() {
			parked = append(parked, item)
		}
	}
	return parked, nil
}

// RetryParked resets a parked item's retry budget so it re-enters
// automatic processing.
func (q *Queue) RetryParked(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	res, err := q.db.ExecContext(ctx, `
		UPDATE queue_items SET retry_count = 0, last_error = '' WHERE id = ? AND retry_count >= ?
	`, id, MaxAttempts)
	if err != nil {
		return fmt.Errorf("syncqueue: failed to reset item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("syncqueue: failed to get rows affected: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("syncqueue: no parked item with id %s", id)
	}
	return nil
}

func (q *Queue) loadItems(ctx context.Context) ([]Item, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, type, entry_id, payload, enqueued_at, retry_count, last_error
		FROM queue_items ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("syncqueue: failed to select items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item       Item
			opType     string
			payload    sql.NullString
			enqueuedAt string
		)
		if err := rows.Scan(&item.ID, &opType, &item.EntryID, &payload, &enqueuedAt, &item.RetryCount, &item.LastError); err != nil {
			return nil, fmt.Errorf("syncqueue: failed to scan item: %w", err)
		}
		item.Type = OpType(opType)
		if payload.Valid {
			var entry journal.Entry
			if err := json.Unmarshal([]byte(payload.String), &entry); err != nil {
				return nil, fmt.Errorf("syncqueue: item %s has malformed payload: %w", item.ID, err)
			}
			item.Payload = &entry
		}
		t, err := time.Parse(time.RFC3339Nano, enqueuedAt)
		if err != nil {
			return nil, fmt.Errorf("syncqueue: item %s has malformed timestamp: %w", item.ID, err)
		}
		item.EnqueuedAt = t
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (q *Queue) markFailed(ctx context.Context, id string, cause error) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE queue_items SET retry_count = retry_count + 1, last_error = ? WHERE id = ?
	`, cause.Error(), id)
	if err != nil {
		return fmt.Errorf("syncqueue: failed to record failure: %w", err)
	}
	return nil
}

func (q *Queue) remove(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM queue_items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("syncqueue: failed to remove item: %w", err)
	}
	return nil
}
