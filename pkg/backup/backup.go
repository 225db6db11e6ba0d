package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/forest6511/daybook/pkg/journal"
)

// RestoreMode specifies how a restore treats existing local entries.
type RestoreMode int

const (
	// ModeReplace discards the local journal and adopts the bundle.
	ModeReplace RestoreMode = iota
	// ModeMerge keeps both sets, resolving per-id conflicts by the most
	// recent modification time.
	ModeMerge
)

// ExportOptions configures the export operation.
type ExportOptions struct {
	// Output is the destination writer. Ignored when Path is set.
	Output io.Writer
	// Path is the destination file, written with 0600 permissions after
	// a free-space check.
	Path string
}

// RestoreOptions configures the restore operation.
type RestoreOptions struct {
	// Mode selects replace or merge semantics.
	Mode RestoreMode
	// DryRun previews the restore without touching the journal.
	DryRun bool
	// VerifyOnly validates the bundle and stops.
	VerifyOnly bool
}

// RestoreResult reports what a restore did or would do.
type RestoreResult struct {
	// EntriesRestored is the number of entries taken from the bundle.
	EntriesRestored int
	// EntriesKept is the number of conflicts the local copy won.
	EntriesKept int
	// TotalEntries is the journal size after restore.
	TotalEntries int
	// DryRun indicates no changes were made.
	DryRun bool
}

// VerifyResult reports bundle integrity without restoring.
type VerifyResult struct {
	Valid        bool
	Version      string
	CreatedAt    time.Time
	EntriesCount int
	Error        string
}

// Engine exports and restores journal bundles through the store, so
// entries are decrypted on the way out and resealed on the way back in.
type Engine struct {
	store *journal.Store
	now   func() time.Time
}

// NewEngine binds the backup engine to a journal store.
func NewEngine(store *journal.Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// CreateBundle snapshots the journal as a checksummed plaintext bundle.
func (e *Engine) CreateBundle(ctx context.Context) (Bundle, error) {
	entries, err := e.store.List(ctx)
	if err != nil {
		return Bundle{}, err
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	b := Bundle{
		FormatVersion: FormatVersion,
		CreatedAt:     e.now().UTC(),
		EntriesCount:  len(entries),
		Entries:       entries,
	}
	checksum, err := ComputeChecksum(b)
	if err != nil {
		return Bundle{}, err
	}
	b.Checksum = checksum
	return b, nil
}

// Export writes a bundle to the configured destination.
func (e *Engine) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Output == nil && opts.Path == "" {
		return fmt.Errorf("backup: output writer or path is required")
	}

	b, err := e.CreateBundle(ctx)
	if err != nil {
		return err
	}
	data, err := EncodeBundle(b)
	if err != nil {
		return err
	}

	if opts.Path == "" {
		if _, err := opts.Output.Write(data); err != nil {
			return fmt.Errorf("backup: failed to write bundle: %w", err)
		}
		return nil
	}

	if err := checkFreeSpace(filepath.Dir(opts.Path), uint64(len(data))); err != nil {
		return err
	}
	if err := os.WriteFile(opts.Path, data, 0600); err != nil {
		return fmt.Errorf("backup: failed to write bundle file: %w", err)
	}
	return nil
}

// Verify checks bundle integrity without restoring.
func (e *Engine) Verify(data []byte) *VerifyResult {
	b, err := DecodeBundle(data)
	if err != nil {
		return &VerifyResult{Valid: false, Error: err.Error()}
	}
	if err := ValidateBundle(b); err != nil {
		return &VerifyResult{Valid: false, Error: err.Error()}
	}
	return &VerifyResult{
		Valid:        true,
		Version:      b.FormatVersion,
		CreatedAt:    b.CreatedAt,
		EntriesCount: b.EntriesCount,
	}
}

// Restore applies a bundle to the journal. Validation failure aborts
// before any local change, so a bad bundle never corrupts the journal.
func (e *Engine) Restore(ctx context.Context, data []byte, opts RestoreOptions) (*RestoreResult, error) {
	b, err := DecodeBundle(data)
	if err != nil {
		return nil, err
	}
	if err := ValidateBundle(b); err != nil {
		return nil, err
	}

	if opts.VerifyOnly {
		return &RestoreResult{DryRun: true}, nil
	}

	merged, restored, kept, err := e.resolve(ctx, b, opts.Mode)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		return &RestoreResult{
			EntriesRestored: restored,
			EntriesKept:     kept,
			TotalEntries:    len(merged),
			DryRun:          true,
		}, nil
	}

	if err := e.store.ReplaceAll(ctx, merged); err != nil {
		return nil, err
	}
	return &RestoreResult{
		EntriesRestored: restored,
		EntriesKept:     kept,
		TotalEntries:    len(merged),
	}, nil
}

// RestoreFile reads a bundle from disk and applies it.
func (e *Engine) RestoreFile(ctx context.Context, path string, opts RestoreOptions) (*RestoreResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read bundle file: %w", err)
	}
	return e.Restore(ctx, data, opts)
}

// resolve computes the post-restore entry set. Adopted entries are
// stamped with the restore time and the result is ordered newest first.
func (e *Engine) resolve(ctx context.Context, b Bundle, mode RestoreMode) (merged []journal.Entry, restored, kept int, err error) {
	now := e.now().UTC()

	adopt := func(entry journal.Entry) journal.Entry {
		stamp := now
		entry.RestoredAt = &stamp
		entry.Encrypted = false
		return entry
	}

	if mode == ModeReplace {
		merged = make([]journal.Entry, 0, len(b.Entries))
		for _, entry := range b.Entries {
			merged = append(merged, adopt(entry))
		}
		journal.SortByDateDesc(merged)
		return merged, len(merged), 0, nil
	}

	local, err := e.store.List(ctx)
	if err != nil {
		return nil, 0, 0, err
	}

	byID := make(map[string]journal.Entry, len(local))
	for _, entry := range local {
		byID[entry.ID] = entry
	}
	for _, incoming := range b.Entries {
		existing, ok := byID[incoming.ID]
		if !ok {
			byID[incoming.ID] = adopt(incoming)
			restored++
			continue
		}
		// Same id on both sides: the most recently modified copy wins.
		if incoming.ModifiedAt().After(existing.ModifiedAt()) {
			byID[incoming.ID] = adopt(incoming)
			restored++
		} else {
			kept++
		}
	}

	merged = make([]journal.Entry, 0, len(byID))
	for _, entry := range byID {
		merged = append(merged, entry)
	}
	journal.SortByDateDesc(merged)
	return merged, restored, kept, nil
}
