package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forest6511/daybook/pkg/journal"
)

// CSVParser parses generic CSV exports with header-based columns:
// date, title, content and optionally mood and tags (semicolon-separated).
type CSVParser struct{}

// CSV column names (header-based parsing).
const (
	csvColDate    = "date"
	csvColTitle   = "title"
	csvColContent = "content"
	csvColMood    = "mood"
	csvColTags    = "tags"
)

// Accepted date layouts, tried in order.
var csvDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// Source returns the source type for this parser.
func (p *CSVParser) Source() Source {
	return SourceCSV
}

// Parse parses CSV data.
func (p *CSVParser) Parse(data []byte) (*ImportResult, error) {
	result := &ImportResult{
		Entries:  make([]journal.Entry, 0),
		Warnings: make([]string, 0),
		Skipped:  make([]SkippedItem, 0),
	}

	// Strip UTF-8 BOM if present
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("importer: failed to read CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{csvColDate, csvColTitle, csvColContent} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("importer: CSV is missing required column %q", required)
		}
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		field := func(name string) string {
			idx, ok := colIndex[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		identifier := fmt.Sprintf("line %d", line)
		title := SanitizeTitle(field(csvColTitle))
		content := field(csvColContent)
		if title == "" && IsEmptyOrWhitespace(content) {
			result.Skipped = append(result.Skipped, SkippedItem{
				Identifier: identifier,
				Reason:     "no title or content",
			})
			continue
		}
		if title == "" {
			title = TitleFromContent(content, line)
		}

		date, err := parseCSVDate(field(csvColDate))
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedItem{
				Identifier: identifier,
				Reason:     err.Error(),
			})
			continue
		}

		entry := journal.Entry{
			ID:      uuid.NewString(),
			Title:   title,
			Content: content,
			Date:    date,
			Mood:    field(csvColMood),
		}
		if tags := field(csvColTags); tags != "" {
			for _, tag := range strings.Split(tags, ";") {
				if t := strings.TrimSpace(tag); t != "" {
					entry.Tags = append(entry.Tags, t)
				}
			}
		}
		result.Entries = append(result.Entries, entry)
	}

	return result, nil
}

func parseCSVDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}
