// Package journal defines the journal entry model and the lock-gated store
// that owns all reads and writes of entry data.
package journal

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Sentinel errors for entry validation.
var (
	// ErrEntryInvalid indicates an entry read from an external source is
	// missing required fields.
	ErrEntryInvalid = errors.New("journal: invalid entry")
)

// Entry is a single journal record.
//
// An entry persisted to local storage always has Encrypted=true with Title
// and Content holding versioned ciphertext; an entry held in memory for
// display always has Encrypted=false. The only legal transitions are
// encrypt-before-persist and decrypt-after-load, never partial.
type Entry struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`

	// Date is the user-facing logical entry date, immutable after creation.
	Date time.Time `json:"date"`

	// UpdatedAt is the last-modification timestamp. Absent on entries that
	// were never edited; conflict comparisons fall back to Date.
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`

	Mood   string   `json:"mood,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	UserID string   `json:"userId,omitempty"`

	// Encrypted is true once Title and Content have been sealed.
	Encrypted bool `json:"encrypted"`

	// RestoredAt is stamped on entries adopted by a replace-mode restore.
	RestoredAt *time.Time `json:"restoredAt,omitempty"`
}

// ModifiedAt returns the timestamp used for last-writer-wins comparisons:
// UpdatedAt when present, otherwise Date.
func (e *Entry) ModifiedAt() time.Time {
	if e.UpdatedAt != nil {
		return *e.UpdatedAt
	}
	return e.Date
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() Entry {
	c := *e
	if e.UpdatedAt != nil {
		t := *e.UpdatedAt
		c.UpdatedAt = &t
	}
	if e.RestoredAt != nil {
		t := *e.RestoredAt
		c.RestoredAt = &t
	}
	if e.Tags != nil {
		c.Tags = append([]string(nil), e.Tags...)
	}
	return c
}

// Validate checks that an entry carries the fields every origin must
// provide. It is applied at the boundary where entries enter the process
// from any external source (local cache, remote repository, backup bundle).
func (e *Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrEntryInvalid)
	}
	if e.Title == "" {
		return fmt.Errorf("%w: entry %s has no title", ErrEntryInvalid, e.ID)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: entry %s has no date", ErrEntryInvalid, e.ID)
	}
	return nil
}

// Normalize applies NFC normalization to the free-text fields so entries
// imported from different platforms compare and search consistently. It is
// a no-op for encrypted entries since ciphertext is not text.
func (e *Entry) Normalize() {
	if e.Encrypted {
		return
	}
	e.Title = norm.NFC.String(e.Title)
	e.Content = norm.NFC.String(e.Content)
	e.Mood = norm.NFC.String(e.Mood)
	for i, tag := range e.Tags {
		e.Tags[i] = norm.NFC.String(tag)
	}
}

// SortByDateDesc sorts entries newest-first by logical date, the order the
// entry list is presented in.
func SortByDateDesc(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
}
