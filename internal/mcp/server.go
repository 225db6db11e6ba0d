// Package mcp implements the MCP (Model Context Protocol) server for
// daybook. The surface is strictly read-only: agents can list, read and
// search entries but never write, and the journal must be unlocked with
// the password supplied at startup.
package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/daybook/internal/app"
)

// Server represents the MCP server for daybook.
type Server struct {
	server *mcp.Server
	app    *app.App
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// JournalPath is the path to the journal directory.
	// If empty, defaults to ~/.daybook.
	JournalPath string

	// Password unlocks the journal. If empty, the server reads the
	// DAYBOOK_PASSWORD environment variable.
	Password string
}

// NewServer creates a new MCP server instance over an unlocked journal.
func NewServer(ctx context.Context, opts *ServerOptions) (*Server, error) {
	if opts == nil {
		opts = &ServerOptions{}
	}

	a, err := app.Open(ctx, opts.JournalPath)
	if err != nil {
		return nil, err
	}

	password := opts.Password
	if password == "" {
		password = os.Getenv("DAYBOOK_PASSWORD")
		// Clear the variable after reading.
		os.Unsetenv("DAYBOOK_PASSWORD")
	}

	if a.Lock.Snapshot().HasCredential {
		if password == "" {
			return nil, fmt.Errorf("no password provided: set DAYBOOK_PASSWORD environment variable")
		}
		if err := a.Unlock(password); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to unlock journal: %w", err)
		}
	} else if err := a.ArmAudit(); err != nil {
		a.Close()
		return nil, err
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "daybook",
			Version: "1.0.0",
		},
		nil,
	)

	s := &Server{server: mcpServer, app: a}
	s.registerTools()
	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	// journal_list - entry metadata without content
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "journal_list",
		Description: "List journal entries newest first. Returns id, title, date, mood and tags. Does NOT return entry content.",
	}, s.handleJournalList)

	// journal_get - one full entry
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "journal_get",
		Description: "Read a single journal entry by id, including its content.",
	}, s.handleJournalGet)

	// journal_search - metadata of matching entries
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "journal_search",
		Description: "Search entries by text across title, content and tags. Returns matching entry metadata without content.",
	}, s.handleJournalSearch)

	// sync_status - outbound queue health
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Report the sync queue state: pending count and items that exhausted their retry budget.",
	}, s.handleSyncStatus)
}

// Run starts the MCP server using stdio transport. The inactivity poll
// and the queue processor run for the lifetime of the server, so a
// credentialed journal locks itself when agents go quiet.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.app.StartBackground(ctx)

	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close locks the journal and releases resources.
func (s *Server) Close() error {
	s.app.Lock.Lock()
	return s.app.Close()
}
