package keystore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "keys"))

	if _, err := s.Get(KeyJournalKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty store: got %v, want ErrNotFound", err)
	}

	want := []byte("key material")
	if err := s.Set(KeyJournalKey, want); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, err := s.Get(KeyJournalKey)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Get() = %q, want %q", got, want)
	}

	// Overwrite
	want2 := []byte("replacement")
	if err := s.Set(KeyJournalKey, want2); err != nil {
		t.Fatalf("Set() overwrite error: %v", err)
	}
	got, err = s.Get(KeyJournalKey)
	if err != nil {
		t.Fatalf("Get() after overwrite error: %v", err)
	}
	if !bytes.Equal(got, want2) {
		t.Errorf("Get() after overwrite = %q, want %q", got, want2)
	}
}

func TestFileStoreDelete(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "keys"))

	// Deleting an absent value is not an error
	if err := s.Delete(KeyCredentialHash); err != nil {
		t.Fatalf("Delete() of absent value: %v", err)
	}

	if err := s.Set(KeyCredentialHash, []byte("hash")); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := s.Delete(KeyCredentialHash); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Get(KeyCredentialHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete: got %v, want ErrNotFound", err)
	}
}

func TestFileStoreInvalidNames(t *testing.T) {
	s := NewFileStore(t.TempDir())

	for _, name := range []string{"", "..", "a/b", `a\b`} {
		if err := s.Set(name, []byte("x")); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Set(%q): got %v, want ErrInvalidName", name, err)
		}
	}
}

func TestFileStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits not meaningful on Windows")
	}

	dir := filepath.Join(t.TempDir(), "keys")
	s := NewFileStore(dir)
	if err := s.Set(KeyJournalKey, []byte("secret")); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, KeyJournalKey+".bin"))
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != FileMode {
		t.Errorf("value file permissions = %o, want %o", perm, FileMode)
	}

	dirInfo, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat() dir error: %v", err)
	}
	if perm := dirInfo.Mode().Perm(); perm != DirMode {
		t.Errorf("store dir permissions = %o, want %o", perm, DirMode)
	}
}
