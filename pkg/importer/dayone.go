package importer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forest6511/daybook/pkg/journal"
)

// DayOneParser parses Day One JSON export files.
// The export is a single JSON object with an "entries" array; each entry
// carries text, an ISO 8601 creationDate and optional tags.
type DayOneParser struct{}

type dayOneExport struct {
	Entries []dayOneEntry `json:"entries"`
}

type dayOneEntry struct {
	UUID         string   `json:"uuid"`
	Text         string   `json:"text"`
	CreationDate string   `json:"creationDate"`
	ModifiedDate string   `json:"modifiedDate"`
	Tags         []string `json:"tags"`
}

// Source returns the source type for this parser.
func (p *DayOneParser) Source() Source {
	return SourceDayOne
}

// Parse parses Day One JSON data.
func (p *DayOneParser) Parse(data []byte) (*ImportResult, error) {
	var export dayOneExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("importer: failed to parse Day One export: %w", err)
	}

	result := &ImportResult{
		Entries:  make([]journal.Entry, 0, len(export.Entries)),
		Warnings: make([]string, 0),
		Skipped:  make([]SkippedItem, 0),
	}

	for i, item := range export.Entries {
		identifier := item.UUID
		if identifier == "" {
			identifier = fmt.Sprintf("entry %d", i+1)
		}

		if IsEmptyOrWhitespace(item.Text) {
			result.Skipped = append(result.Skipped, SkippedItem{
				Identifier: identifier,
				Reason:     "empty text",
			})
			continue
		}

		date, err := time.Parse(time.RFC3339, item.CreationDate)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedItem{
				Identifier: identifier,
				Reason:     fmt.Sprintf("unparseable creationDate %q", item.CreationDate),
			})
			continue
		}

		entry := journal.Entry{
			ID:      uuid.NewString(),
			Title:   TitleFromContent(item.Text, i+1),
			Content: item.Text,
			Date:    date,
			Tags:    item.Tags,
		}
		if item.ModifiedDate != "" {
			if modified, err := time.Parse(time.RFC3339, item.ModifiedDate); err == nil && modified.After(date) {
				entry.UpdatedAt = &modified
			} else if err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s: ignoring unparseable modifiedDate %q", identifier, item.ModifiedDate))
			}
		}
		result.Entries = append(result.Entries, entry)
	}

	return result, nil
}
