// Package backup provides journal export and restore functionality.
package backup

import "errors"

// Export/Restore errors
var (
	// ErrMalformedBundle indicates the file is not a recognizable bundle.
	ErrMalformedBundle = errors.New("invalid bundle file: not a journal export")

	// ErrUnsupportedVersion indicates the bundle format version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported bundle format version")

	// ErrChecksumMismatch indicates the bundle was altered after export.
	ErrChecksumMismatch = errors.New("bundle integrity check failed: checksum mismatch")

	// ErrEntryInvalid indicates a bundle entry is missing required fields.
	ErrEntryInvalid = errors.New("bundle contains an invalid entry")

	// ErrCountMismatch indicates entriesCount disagrees with the entry list.
	ErrCountMismatch = errors.New("bundle entry count does not match its entries")

	// ErrInsufficientSpace indicates the destination lacks room for the export.
	ErrInsufficientSpace = errors.New("not enough free disk space for export")
)
