package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forest6511/daybook/pkg/cipher"
	"github.com/forest6511/daybook/pkg/journal"
	"github.com/forest6511/daybook/pkg/keystore"
)

type openGate struct{}

func (openGate) Unlocked() bool { return true }

func newTestEngine(t *testing.T) (*Engine, *journal.Store) {
	t.Helper()
	dir := t.TempDir()

	db, err := journal.OpenDB(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("OpenDB() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	storage, err := journal.NewSQLiteStorage(db)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error: %v", err)
	}

	sealer := cipher.NewService(keystore.NewFileStore(filepath.Join(dir, "keys")), nil)
	store := journal.NewStore(storage, sealer, openGate{}, nil)
	return NewEngine(store), store
}

func seedEntries(t *testing.T, store *journal.Store, titles ...string) []journal.Entry {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	out := make([]journal.Entry, 0, len(titles))
	for i, title := range titles {
		added, err := store.Add(ctx, journal.Entry{
			Title:   title,
			Content: "notes for " + title,
			Date:    base.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatalf("Add(%s) error: %v", title, err)
		}
		out = append(out, added)
	}
	return out
}

func TestExportedBundleIsPlaintext(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	seedEntries(t, store, "monday", "tuesday")

	var buf bytes.Buffer
	if err := engine.Export(ctx, ExportOptions{Output: &buf}); err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	var b Bundle
	if err := json.Unmarshal(buf.Bytes(), &b); err != nil {
		t.Fatalf("bundle is not valid JSON: %v", err)
	}
	if b.FormatVersion != FormatVersion || b.EntriesCount != 2 {
		t.Errorf("bundle header = %s/%d, want %s/2", b.FormatVersion, b.EntriesCount, FormatVersion)
	}
	for _, e := range b.Entries {
		if e.Encrypted || strings.HasPrefix(e.Title, "v1:") {
			t.Errorf("bundle entry still sealed: %+v", e)
		}
	}
	if err := ValidateBundle(b); err != nil {
		t.Errorf("ValidateBundle() on fresh export: %v", err)
	}
}

func TestExportToFileUsesRestrictivePermissions(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	seedEntries(t, store, "one")

	path := filepath.Join(t.TempDir(), "journal.json")
	if err := engine.Export(ctx, ExportOptions{Path: path}); err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("bundle file mode = %o, want 0600", perm)
	}
}

func TestValidateBundleRejections(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	seedEntries(t, store, "alpha", "beta")

	pristine, err := engine.CreateBundle(ctx)
	if err != nil {
		t.Fatalf("CreateBundle() error: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Bundle)
		wantErr error
	}{
		{"tampered content", func(b *Bundle) { b.Entries[0].Content = "edited" }, ErrChecksumMismatch},
		{"tampered checksum", func(b *Bundle) { b.Checksum = strings.Repeat("0", 64) }, ErrChecksumMismatch},
		{"future major version", func(b *Bundle) { b.FormatVersion = "2.0" }, ErrUnsupportedVersion},
		{"garbled version", func(b *Bundle) { b.FormatVersion = "abc" }, ErrUnsupportedVersion},
		{"count mismatch", func(b *Bundle) { b.EntriesCount = 7 }, ErrCountMismatch},
		{"missing createdAt", func(b *Bundle) { b.CreatedAt = time.Time{} }, ErrMalformedBundle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := pristine
			b.Entries = append([]journal.Entry(nil), pristine.Entries...)
			tt.mutate(&b)
			if err := ValidateBundle(b); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateBundle() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBundleAcceptsOlderMajor(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	seedEntries(t, store, "alpha")

	b, err := engine.CreateBundle(ctx)
	if err != nil {
		t.Fatalf("CreateBundle() error: %v", err)
	}

	b.FormatVersion = "0.9"
	sum, err := ComputeChecksum(b)
	if err != nil {
		t.Fatalf("ComputeChecksum() error: %v", err)
	}
	b.Checksum = sum

	if err := ValidateBundle(b); err != nil {
		t.Errorf("ValidateBundle() on older major: %v", err)
	}
}

func TestRestoreRejectsTamperedBundleAtomically(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	seedEntries(t, store, "keep-me")

	var buf bytes.Buffer
	if err := engine.Export(ctx, ExportOptions{Output: &buf}); err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	// Flip one character inside an entry title.
	tampered := bytes.Replace(buf.Bytes(), []byte("keep-me"), []byte("KEEP-me"), 1)

	if _, err := engine.Restore(ctx, tampered, RestoreOptions{Mode: ModeReplace}); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Restore() of tampered bundle = %v, want ErrChecksumMismatch", err)
	}

	// The journal must be untouched.
	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Title != "keep-me" {
		t.Errorf("journal changed after rejected restore: %v", entries)
	}
}

func TestRestoreReplaceAdoptsBundle(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	seedEntries(t, store, "exported-a", "exported-b")

	bundle, err := engine.CreateBundle(ctx)
	if err != nil {
		t.Fatalf("CreateBundle() error: %v", err)
	}
	data, err := EncodeBundle(bundle)
	if err != nil {
		t.Fatalf("EncodeBundle() error: %v", err)
	}

	// Diverge locally, then restore the snapshot.
	if _, err := store.Add(ctx, journal.Entry{Title: "written-later"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	result, err := engine.Restore(ctx, data, RestoreOptions{Mode: ModeReplace})
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if result.EntriesRestored != 2 || result.TotalEntries != 2 {
		t.Errorf("result = %+v, want 2 restored, 2 total", result)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("journal holds %d entries, want the 2 from the bundle", len(entries))
	}
	for _, e := range entries {
		if e.RestoredAt == nil {
			t.Errorf("restored entry %s has no RestoredAt stamp", e.ID)
		}
		if e.Title == "written-later" {
			t.Error("replace restore kept a local-only entry")
		}
	}
}

func TestRestoreMergeResolvesByModificationTime(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	seeded := seedEntries(t, store, "shared-old", "shared-new")

	bundle, err := engine.CreateBundle(ctx)
	if err != nil {
		t.Fatalf("CreateBundle() error: %v", err)
	}

	// Rework the bundle: one entry newer than local, one older, one extra.
	newer := seeded[0].ModifiedAt().Add(time.Hour)
	older := seeded[1].ModifiedAt().Add(-time.Hour)
	for i := range bundle.Entries {
		switch bundle.Entries[i].ID {
		case seeded[0].ID:
			bundle.Entries[i].Title = "shared-old from bundle"
			bundle.Entries[i].UpdatedAt = &newer
		case seeded[1].ID:
			bundle.Entries[i].Title = "shared-new from bundle"
			bundle.Entries[i].UpdatedAt = &older
		}
	}
	bundle.Entries = append(bundle.Entries, journal.Entry{
		ID:    "bundle-only",
		Title: "only in bundle",
		Date:  time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
	})
	bundle.EntriesCount = len(bundle.Entries)
	bundle.Checksum, err = ComputeChecksum(bundle)
	if err != nil {
		t.Fatalf("ComputeChecksum() error: %v", err)
	}
	data, err := EncodeBundle(bundle)
	if err != nil {
		t.Fatalf("EncodeBundle() error: %v", err)
	}

	result, err := engine.Restore(ctx, data, RestoreOptions{Mode: ModeMerge})
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if result.EntriesRestored != 2 || result.EntriesKept != 1 || result.TotalEntries != 3 {
		t.Errorf("result = %+v, want 2 restored, 1 kept, 3 total", result)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	titles := make(map[string]string, len(entries))
	for _, e := range entries {
		titles[e.ID] = e.Title
	}
	if titles[seeded[0].ID] != "shared-old from bundle" {
		t.Errorf("newer bundle copy lost: %q", titles[seeded[0].ID])
	}
	if titles[seeded[1].ID] != "shared-new" {
		t.Errorf("older bundle copy won: %q", titles[seeded[1].ID])
	}
	if titles["bundle-only"] != "only in bundle" {
		t.Error("bundle-only entry missing after merge")
	}
}

func TestRestoreDryRunAndVerifyOnly(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	seedEntries(t, store, "before")

	var buf bytes.Buffer
	if err := engine.Export(ctx, ExportOptions{Output: &buf}); err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if _, err := store.Add(ctx, journal.Entry{Title: "after"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	result, err := engine.Restore(ctx, buf.Bytes(), RestoreOptions{Mode: ModeReplace, DryRun: true})
	if err != nil {
		t.Fatalf("Restore(dry run) error: %v", err)
	}
	if !result.DryRun || result.EntriesRestored != 1 {
		t.Errorf("dry run result = %+v, want preview of 1 restored", result)
	}

	verify := engine.Verify(buf.Bytes())
	if !verify.Valid || verify.EntriesCount != 1 {
		t.Errorf("Verify() = %+v, want valid with 1 entry", verify)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("journal holds %d entries after dry run, want 2 untouched", len(entries))
	}
}
