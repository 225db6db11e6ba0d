package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStoreLocked is returned by every store operation while the journal
	// has not been unlocked.
	ErrStoreLocked = errors.New("journal: store is locked")
	// ErrEntryNotFound is returned when no entry carries the requested id.
	ErrEntryNotFound = errors.New("journal: entry not found")
)

// Sealer converts entries between their plaintext and sealed forms.
// Sealing only touches the title and content fields.
type Sealer interface {
	EncryptEntry(e Entry) (Entry, error)
	DecryptEntry(e Entry) Entry
}

// Gatekeeper reports whether protected data may currently be read.
type Gatekeeper interface {
	Unlocked() bool
}

// Syncer receives change notifications for eventual remote replication.
// Payloads handed to it are already sealed.
type Syncer interface {
	EnqueueCreate(ctx context.Context, e Entry) error
	EnqueueUpdate(ctx context.Context, e Entry) error
	EnqueueDelete(ctx context.Context, id string) error
}

// Store is the single write path for journal entries. Entries are sealed
// before they reach persistence and opened on the way out, so plaintext
// never touches disk.
type Store struct {
	storage Storage
	sealer  Sealer
	gate    Gatekeeper
	syncer  Syncer
}

// NewStore wires persistence, sealing and the unlock gate together. The
// syncer is optional; a nil syncer keeps the store fully local.
func NewStore(storage Storage, sealer Sealer, gate Gatekeeper, syncer Syncer) *Store {
	return &Store{storage: storage, sealer: sealer, gate: gate, syncer: syncer}
}

// List returns every entry, decrypted, newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	entries, err := s.readOpen(ctx)
	if err != nil {
		return nil, err
	}
	SortByDateDesc(entries)
	return entries, nil
}

// Get returns a single decrypted entry by id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	entries, err := s.readOpen(ctx)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
}

// Search returns decrypted entries whose title, content or tags contain
// the query, case-insensitively, newest first. An empty query matches
// everything.
func (s *Store) Search(ctx context.Context, query string) ([]Entry, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return entries, nil
	}
	var matched []Entry
	for _, e := range entries {
		if entryMatches(e, query) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// Add persists a new entry and queues it for sync. A missing id is
// assigned; the date defaults to now.
func (s *Store) Add(ctx context.Context, e Entry) (Entry, error) {
	if !s.gate.Unlocked() {
		return Entry{}, ErrStoreLocked
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Date.IsZero() {
		e.Date = time.Now()
	}
	e.Normalize()
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}

	sealed, err := s.sealer.EncryptEntry(e)
	if err != nil {
		return Entry{}, err
	}

	entries, err := s.storage.ReadAll(ctx)
	if err != nil {
		return Entry{}, err
	}
	for _, existing := range entries {
		if existing.ID == e.ID {
			return Entry{}, fmt.Errorf("journal: entry %s already exists", e.ID)
		}
	}
	entries = append(entries, sealed)
	if err := s.storage.WriteAll(ctx, entries); err != nil {
		return Entry{}, err
	}

	if s.syncer != nil {
		if err := s.syncer.EnqueueCreate(ctx, sealed); err != nil {
			return Entry{}, fmt.Errorf("journal: failed to queue create: %w", err)
		}
	}
	return e, nil
}

// Update replaces an existing entry and queues the change for sync.
// UpdatedAt is stamped with the current time.
func (s *Store) Update(ctx context.Context, e Entry) (Entry, error) {
	if !s.gate.Unlocked() {
		return Entry{}, ErrStoreLocked
	}
	now := time.Now()
	e.UpdatedAt = &now
	e.Normalize()
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}

	sealed, err := s.sealer.EncryptEntry(e)
	if err != nil {
		return Entry{}, err
	}

	entries, err := s.storage.ReadAll(ctx)
	if err != nil {
		return Entry{}, err
	}
	replaced := false
	for i, existing := range entries {
		if existing.ID == e.ID {
			entries[i] = sealed
			replaced = true
			break
		}
	}
	if !replaced {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, e.ID)
	}
	if err := s.storage.WriteAll(ctx, entries); err != nil {
		return Entry{}, err
	}

	if s.syncer != nil {
		if err := s.syncer.EnqueueUpdate(ctx, sealed); err != nil {
			return Entry{}, fmt.Errorf("journal: failed to queue update: %w", err)
		}
	}
	return e, nil
}

// Delete removes an entry and queues the deletion for sync.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !s.gate.Unlocked() {
		return ErrStoreLocked
	}
	entries, err := s.storage.ReadAll(ctx)
	if err != nil {
		return err
	}
	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err := s.storage.WriteAll(ctx, kept); err != nil {
		return err
	}

	if s.syncer != nil {
		if err := s.syncer.EnqueueDelete(ctx, id); err != nil {
			return fmt.Errorf("journal: failed to queue delete: %w", err)
		}
	}
	return nil
}

// ReplaceAll swaps the full entry set in one write. Entries are sealed
// individually; the restore path uses this after bundle validation.
func (s *Store) ReplaceAll(ctx context.Context, entries []Entry) error {
	if !s.gate.Unlocked() {
		return ErrStoreLocked
	}
	sealed := make([]Entry, 0, len(entries))
	for _, e := range entries {
		se, err := s.sealer.EncryptEntry(e)
		if err != nil {
			return err
		}
		sealed = append(sealed, se)
	}
	return s.storage.WriteAll(ctx, sealed)
}

func (s *Store) readOpen(ctx context.Context) ([]Entry, error) {
	if !s.gate.Unlocked() {
		return nil, ErrStoreLocked
	}
	entries, err := s.storage.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	opened := make([]Entry, 0, len(entries))
	for _, e := range entries {
		opened = append(opened, s.sealer.DecryptEntry(e))
	}
	return opened, nil
}

func entryMatches(e Entry, query string) bool {
	if strings.Contains(strings.ToLower(e.Title), query) {
		return true
	}
	if strings.Contains(strings.ToLower(e.Content), query) {
		return true
	}
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}
