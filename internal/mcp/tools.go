package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/daybook/pkg/journal"
)

// JournalListInput represents input for the journal_list tool.
type JournalListInput struct {
	Tag   string `json:"tag,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// JournalListOutput represents output for the journal_list tool.
type JournalListOutput struct {
	Entries []EntryInfo `json:"entries"`
}

// EntryInfo is entry metadata without content.
type EntryInfo struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Date      string   `json:"date"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
	Mood      string   `json:"mood,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// JournalGetInput represents input for the journal_get tool.
type JournalGetInput struct {
	ID string `json:"id"`
}

// JournalGetOutput represents output for the journal_get tool.
type JournalGetOutput struct {
	EntryInfo
	Content string `json:"content"`
}

// JournalSearchInput represents input for the journal_search tool.
type JournalSearchInput struct {
	Query string `json:"query"`
}

// JournalSearchOutput represents output for the journal_search tool.
type JournalSearchOutput struct {
	Entries []EntryInfo `json:"entries"`
}

// SyncStatusOutput represents output for the sync_status tool.
type SyncStatusOutput struct {
	Enabled      bool     `json:"enabled"`
	PendingCount int      `json:"pendingCount"`
	ParkedCount  int      `json:"parkedCount"`
	ParkedIDs    []string `json:"parkedIds,omitempty"`
}

func entryInfo(e journal.Entry) EntryInfo {
	info := EntryInfo{
		ID:    e.ID,
		Title: e.Title,
		Date:  e.Date.Format(time.RFC3339),
		Mood:  e.Mood,
		Tags:  e.Tags,
	}
	if e.UpdatedAt != nil {
		info.UpdatedAt = e.UpdatedAt.Format(time.RFC3339)
	}
	return info
}

// handleJournalList handles the journal_list tool call.
func (s *Server) handleJournalList(ctx context.Context, _ *mcp.CallToolRequest, input JournalListInput) (*mcp.CallToolResult, JournalListOutput, error) {
	// Agent reads count as activity for the inactivity timeout.
	s.app.Lock.Touch()
	entries, err := s.app.Store.List(ctx)
	if err != nil {
		return nil, JournalListOutput{}, err
	}

	out := JournalListOutput{Entries: []EntryInfo{}}
	for _, e := range entries {
		if input.Tag != "" && !hasTag(e, input.Tag) {
			continue
		}
		out.Entries = append(out.Entries, entryInfo(e))
		if input.Limit > 0 && len(out.Entries) >= input.Limit {
			break
		}
	}

	return nil, out, nil
}

// handleJournalGet handles the journal_get tool call.
func (s *Server) handleJournalGet(ctx context.Context, _ *mcp.CallToolRequest, input JournalGetInput) (*mcp.CallToolResult, JournalGetOutput, error) {
	if input.ID == "" {
		return nil, JournalGetOutput{}, fmt.Errorf("id is required")
	}
	s.app.Lock.Touch()

	entry, err := s.app.Store.Get(ctx, input.ID)
	if err != nil {
		return nil, JournalGetOutput{}, err
	}

	return nil, JournalGetOutput{
		EntryInfo: entryInfo(entry),
		Content:   entry.Content,
	}, nil
}

// handleJournalSearch handles the journal_search tool call.
func (s *Server) handleJournalSearch(ctx context.Context, _ *mcp.CallToolRequest, input JournalSearchInput) (*mcp.CallToolResult, JournalSearchOutput, error) {
	s.app.Lock.Touch()
	entries, err := s.app.Store.Search(ctx, input.Query)
	if err != nil {
		return nil, JournalSearchOutput{}, err
	}

	out := JournalSearchOutput{Entries: []EntryInfo{}}
	for _, e := range entries {
		out.Entries = append(out.Entries, entryInfo(e))
	}
	return nil, out, nil
}

// handleSyncStatus handles the sync_status tool call.
func (s *Server) handleSyncStatus(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, SyncStatusOutput, error) {
	if s.app.Queue == nil {
		return nil, SyncStatusOutput{Enabled: false}, nil
	}

	pending, err := s.app.Queue.PendingCount(ctx)
	if err != nil {
		return nil, SyncStatusOutput{}, err
	}
	parked, err := s.app.Queue.ParkedItems(ctx)
	if err != nil {
		return nil, SyncStatusOutput{}, err
	}

	out := SyncStatusOutput{Enabled: true, PendingCount: pending, ParkedCount: len(parked)}
	for _, item := range parked {
		out.ParkedIDs = append(out.ParkedIDs, item.ID)
	}
	return nil, out, nil
}

func hasTag(e journal.Entry, tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
