// Package keystore abstracts the protected store that holds the journal
// encryption key, the credential hash and small security preferences.
//
// On mobile builds the Store interface is satisfied by the platform
// keychain/keystore bridge; the file-backed implementation here mirrors the
// key file layout (0600 files inside a 0700 directory) and is used by the
// CLI and by tests.
package keystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Well-known keystore entry names.
const (
	KeyJournalKey = "journal_key"
	// The credential hash encoding carries its own salt.
	KeyCredentialHash   = "credential_hash"
	KeyBiometricEnabled = "biometric_enabled"
)

// File permissions for the file-backed store.
const (
	FileMode = 0600
	DirMode  = 0700
)

// Sentinel errors.
var (
	// ErrNotFound indicates the named value is absent from the store.
	ErrNotFound = errors.New("keystore: value not found")

	// ErrInvalidName indicates a name that cannot be mapped to a store slot.
	ErrInvalidName = errors.New("keystore: invalid value name")
)

// Store is the secure key/value store consumed by the cipher, credential
// and lock layers. Implementations must guarantee at-rest protection beyond
// ordinary file storage where the platform allows it.
type Store interface {
	// Get returns the value stored under name, or ErrNotFound.
	Get(name string) ([]byte, error)

	// Set durably stores value under name, replacing any previous value.
	Set(name string, value []byte) error

	// Delete removes the value stored under name. Deleting an absent value
	// is not an error.
	Delete(name string) error
}

// FileStore implements Store on top of one file per value inside a
// dedicated directory.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore rooted at path. The directory is created
// on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Get returns the value stored under name.
func (s *FileStore) Get(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.valuePath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("keystore: failed to read %s: %w", name, err)
	}
	return data, nil
}

// Set durably stores value under name. The write goes through a temp file
// and rename so a crash never leaves a half-written value.
func (s *FileStore) Set(name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.path, DirMode); err != nil {
		return fmt.Errorf("keystore: failed to create directory: %w", err)
	}

	p, err := s.valuePath(name)
	if err != nil {
		return err
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, value, FileMode); err != nil {
		return fmt.Errorf("keystore: failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("keystore: failed to commit %s: %w", name, err)
	}
	return nil
}

// Delete removes the value stored under name.
func (s *FileStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.valuePath(name)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("keystore: failed to delete %s: %w", name, err)
	}
	return nil
}

// valuePath maps a value name to a file path, rejecting names that would
// escape the store directory.
func (s *FileStore) valuePath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.path, name+".bin"), nil
}
