// Package importer provides parsers for importing entries from other
// journal applications. Supports Day One JSON exports and generic CSV.
package importer

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/daybook/pkg/journal"
)

// Source represents the source journal format.
type Source string

const (
	SourceDayOne Source = "dayone"
	SourceCSV    Source = "csv"
)

// MaxTitleLength caps imported titles; longer ones are truncated with a
// warning rather than rejected.
const MaxTitleLength = 200

// ImportResult contains the results of an import operation.
type ImportResult struct {
	// Entries are the successfully parsed entries.
	Entries []journal.Entry

	// Warnings are non-fatal issues encountered during parsing.
	Warnings []string

	// Skipped are items that were skipped with reasons.
	Skipped []SkippedItem
}

// SkippedItem represents an item that was skipped during import.
type SkippedItem struct {
	Identifier string
	Reason     string
}

// Parser is the interface for source format parsers.
type Parser interface {
	// Parse parses the input data and returns imported entries.
	Parse(data []byte) (*ImportResult, error)

	// Source returns the source type for this parser.
	Source() Source
}

// GetParser returns a parser for the given source.
func GetParser(source Source) (Parser, error) {
	switch source {
	case SourceDayOne:
		return &DayOneParser{}, nil
	case SourceCSV:
		return &CSVParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported import source: %s", source)
	}
}

// ValidSources returns a list of valid source names.
func ValidSources() []string {
	return []string{string(SourceDayOne), string(SourceCSV)}
}

// SanitizeTitle normalizes an imported title: NFC form, whitespace
// collapsed, truncated to MaxTitleLength.
func SanitizeTitle(title string) string {
	title = norm.NFC.String(title)
	title = strings.Join(strings.Fields(title), " ")
	if len(title) > MaxTitleLength {
		title = title[:MaxTitleLength]
	}
	return title
}

// TitleFromContent derives a title from the first line of content when
// the source format has none.
func TitleFromContent(content string, counter int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	line = SanitizeTitle(line)
	if line == "" {
		return fmt.Sprintf("Imported entry %d", counter)
	}
	const derivedMax = 60
	if len(line) > derivedMax {
		line = line[:derivedMax]
	}
	return line
}

// IsEmptyOrWhitespace checks if a string is empty or contains only whitespace.
func IsEmptyOrWhitespace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
