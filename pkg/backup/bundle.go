package backup

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forest6511/daybook/pkg/journal"
)

// FormatVersion is the current bundle format version. The major component
// gates compatibility: a reader accepts any bundle sharing its major.
const FormatVersion = "1.0"

// Bundle is the portable export format: plaintext entries plus an
// integrity checksum, encoded as UTF-8 JSON. Bundles are readable without
// the master key, so sharing one shares the journal.
type Bundle struct {
	FormatVersion string          `json:"formatVersion"`
	CreatedAt     time.Time       `json:"createdAt"`
	EntriesCount  int             `json:"entriesCount"`
	Entries       []journal.Entry `json:"entries"`
	Checksum      string          `json:"checksum"`
}

// ComputeChecksum returns the SHA-256 hex digest of the bundle with its
// checksum field blanked. Field order is fixed by the struct, so the
// encoding is deterministic.
func ComputeChecksum(b Bundle) (string, error) {
	b.Checksum = ""
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("backup: failed to encode bundle for checksum: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// EncodeBundle serializes a bundle as indented JSON.
func EncodeBundle(b Bundle) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("backup: failed to encode bundle: %w", err)
	}
	return data, nil
}

// DecodeBundle parses bundle JSON without validating it.
func DecodeBundle(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrMalformedBundle, err)
	}
	return b, nil
}

// ValidateBundle checks structure, version compatibility, checksum and
// per-entry required fields. Any failure rejects the whole bundle.
func ValidateBundle(b Bundle) error {
	if b.FormatVersion == "" || b.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing formatVersion or createdAt", ErrMalformedBundle)
	}
	major, ok := majorVersion(b.FormatVersion)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, b.FormatVersion)
	}
	supported, _ := majorVersion(FormatVersion)
	// Older majors stay readable; only a future format is rejected.
	if major > supported {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, b.FormatVersion)
	}
	if b.EntriesCount != len(b.Entries) {
		return fmt.Errorf("%w: declared %d, found %d", ErrCountMismatch, b.EntriesCount, len(b.Entries))
	}

	want, err := ComputeChecksum(b)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(b.Checksum)) != 1 {
		return ErrChecksumMismatch
	}

	seen := make(map[string]struct{}, len(b.Entries))
	for i, e := range b.Entries {
		if e.ID == "" || e.Title == "" || e.Date.IsZero() {
			return fmt.Errorf("%w: entry %d is missing id, title or date", ErrEntryInvalid, i)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrEntryInvalid, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

func majorVersion(v string) (int, bool) {
	major, _, _ := strings.Cut(v, ".")
	n, err := strconv.Atoi(major)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
