// Package cipher implements the journal cipher service: key lifecycle and
// the versioned at-rest text format protecting entry titles and content.
package cipher

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/forest6511/daybook/pkg/crypto"
	"github.com/forest6511/daybook/pkg/journal"
	"github.com/forest6511/daybook/pkg/keystore"
)

// FormatVersion tags ciphertext so a future algorithm change stays
// backward-readable. Text sealed by this service looks like
// "v1:<base64(nonce || ciphertext)>".
const (
	FormatVersion = "v1"
	formatPrefix  = FormatVersion + ":"
)

// Sentinel errors.
var (
	// ErrMalformedCiphertext indicates input carrying the version prefix
	// that could not be decoded or decrypted.
	ErrMalformedCiphertext = errors.New("cipher: malformed ciphertext")
)

// FailureRecorder receives decryption failures that were recovered by
// plaintext passthrough. The audit logger satisfies this in production;
// tests use a counter.
type FailureRecorder interface {
	RecordCipherFailure(op string, err error)
}

// Service owns the journal encryption key and applies the at-rest text
// format. The key lives in the keystore for the lifetime of the install and
// is never exported or rotated.
type Service struct {
	keys     keystore.Store
	recorder FailureRecorder

	mu     sync.Mutex
	cached []byte
}

// NewService returns a cipher service backed by the given keystore.
// recorder may be nil, in which case recovered failures are dropped.
func NewService(keys keystore.Store, recorder FailureRecorder) *Service {
	return &Service{keys: keys, recorder: recorder}
}

// GetOrCreateKey returns the process-wide journal key, generating and
// durably storing one if absent. Creation is idempotent under concurrent
// first use: the second caller observes the first caller's key, never
// overwrites it.
func (s *Service) GetOrCreateKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	key, err := s.keys.Get(keystore.KeyJournalKey)
	if err == nil {
		if len(key) != crypto.KeyLength {
			return nil, fmt.Errorf("cipher: stored key has invalid length %d", len(key))
		}
		s.cached = key
		return key, nil
	}
	if !errors.Is(err, keystore.ErrNotFound) {
		return nil, fmt.Errorf("cipher: failed to load key: %w", err)
	}

	key, err = crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := s.keys.Set(keystore.KeyJournalKey, key); err != nil {
		return nil, fmt.Errorf("cipher: failed to store key: %w", err)
	}
	s.cached = key
	return key, nil
}

// EncryptText seals plain text into the versioned at-rest format. Empty
// input yields the empty string without touching the cipher.
func (s *Service) EncryptText(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}

	key, err := s.GetOrCreateKey()
	if err != nil {
		return "", err
	}

	ciphertext, nonce, err := crypto.Encrypt(key, []byte(plain))
	if err != nil {
		return "", fmt.Errorf("cipher: encrypt failed: %w", err)
	}

	payload := make([]byte, 0, len(nonce)+len(ciphertext))
	payload = append(payload, nonce...)
	payload = append(payload, ciphertext...)
	return formatPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// DecryptText reverses EncryptText. Input without the recognized version
// prefix is returned unchanged: it is treated as legacy plaintext. A
// corrupt payload is also returned unchanged so that data is never
// destroyed on read; the failure is reported through the recorder.
func (s *Service) DecryptText(input string) string {
	if !strings.HasPrefix(input, formatPrefix) {
		return input
	}

	plain, err := s.decode(strings.TrimPrefix(input, formatPrefix))
	if err != nil {
		s.recordFailure("decrypt_text", err)
		return input
	}
	return plain
}

func (s *Service) decode(encoded string) (string, error) {
	key, err := s.GetOrCreateKey()
	if err != nil {
		return "", err
	}

	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(payload) <= crypto.NonceLength {
		return "", fmt.Errorf("%w: payload too short", ErrMalformedCiphertext)
	}

	nonce := payload[:crypto.NonceLength]
	ciphertext := payload[crypto.NonceLength:]
	plain, err := crypto.Decrypt(key, ciphertext, nonce)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptEntry returns a copy of the entry with Title and Content sealed
// and Encrypted set. Encrypting an already-encrypted entry is a no-op.
func (s *Service) EncryptEntry(e journal.Entry) (journal.Entry, error) {
	if e.Encrypted {
		return e, nil
	}

	out := e.Clone()
	title, err := s.EncryptText(e.Title)
	if err != nil {
		return journal.Entry{}, err
	}
	content, err := s.EncryptText(e.Content)
	if err != nil {
		return journal.Entry{}, err
	}
	out.Title = title
	out.Content = content
	out.Encrypted = true
	return out, nil
}

// DecryptEntry returns a copy of the entry with Title and Content opened
// and Encrypted cleared. Decrypting an already-decrypted entry is a no-op.
func (s *Service) DecryptEntry(e journal.Entry) journal.Entry {
	if !e.Encrypted {
		return e
	}

	out := e.Clone()
	out.Title = s.DecryptText(e.Title)
	out.Content = s.DecryptText(e.Content)
	out.Encrypted = false
	return out
}

func (s *Service) recordFailure(op string, err error) {
	if s.recorder != nil {
		s.recorder.RecordCipherFailure(op, err)
	}
}
