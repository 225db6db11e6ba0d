// Package app wires the daybook services around a journal directory.
// Both the CLI and the MCP server open the journal through it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forest6511/daybook/internal/config"
	"github.com/forest6511/daybook/pkg/audit"
	"github.com/forest6511/daybook/pkg/cipher"
	"github.com/forest6511/daybook/pkg/credential"
	"github.com/forest6511/daybook/pkg/journal"
	"github.com/forest6511/daybook/pkg/keystore"
	"github.com/forest6511/daybook/pkg/lock"
	"github.com/forest6511/daybook/pkg/syncqueue"
)

// App holds every service bound to one journal directory.
type App struct {
	Path   string
	Config *config.Config
	Keys   *keystore.FileStore
	Cipher *cipher.Service
	Creds  *credential.Service
	Lock   *lock.Controller
	Store  *journal.Store
	Queue  *syncqueue.Queue
	Audit  *audit.Logger

	db *sql.DB
}

// DefaultPath returns the default journal directory (~/.daybook).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".daybook"
	}
	return filepath.Join(home, ".daybook")
}

// Open builds the service graph for the journal at path, creating the
// directory on first use. The journal starts in the CHECKING phase;
// callers unlock it through the Lock controller.
func Open(ctx context.Context, path string) (*App, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("app: failed to create journal directory: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	keys := keystore.NewFileStore(filepath.Join(path, "keys"))
	auditLogger := audit.NewLogger(filepath.Join(path, "audit"))
	cipherSvc := cipher.NewService(keys, auditLogger)
	creds := credential.NewService()

	controller := lock.NewController(lock.Config{
		InactivityTimeout: cfg.Lock.InactivityTimeout.Std(),
		BackgroundTimeout: cfg.Lock.BackgroundTimeout.Std(),
		PollInterval:      cfg.Lock.PollInterval.Std(),
	}, creds, keys, nil, nil)
	if err := controller.Start(ctx); err != nil {
		return nil, err
	}

	db, err := journal.OpenDB(filepath.Join(path, "journal.db"))
	if err != nil {
		return nil, err
	}
	storage, err := journal.NewSQLiteStorage(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	var queue *syncqueue.Queue
	var syncer journal.Syncer
	if cfg.Sync.Remote != "" {
		token := os.Getenv("DAYBOOK_SYNC_TOKEN")
		remote := syncqueue.NewHTTPRemote(cfg.Sync.Remote, token)
		gate := syncqueue.NewHTTPGate(cfg.Sync.Remote, token)
		queue, err = syncqueue.New(db, remote, gate)
		if err != nil {
			db.Close()
			return nil, err
		}
		syncer = queue
	}

	store := journal.NewStore(storage, cipherSvc, controller, syncer)

	return &App{
		Path:   path,
		Config: cfg,
		Keys:   keys,
		Cipher: cipherSvc,
		Creds:  creds,
		Lock:   controller,
		Store:  store,
		Queue:  queue,
		Audit:  auditLogger,
		db:     db,
	}, nil
}

// StartBackground launches the inactivity poll and, when sync is
// configured, the queue processor that drains enqueued mutations. For
// long-lived processes; short-lived commands flush the queue explicitly.
// Both loops stop when ctx is cancelled.
func (a *App) StartBackground(ctx context.Context) {
	go a.Lock.Run(ctx)
	if a.Queue != nil {
		go a.Queue.Run(ctx)
	}
}

// Unlock opens the journal with the given password and arms the audit
// chain with the master key.
func (a *App) Unlock(password string) error {
	if err := a.Lock.UnlockWithPassword(password); err != nil {
		return err
	}
	return a.armAudit()
}

// ArmAudit derives the audit chain key. Call after any path that leaves
// the journal unlocked without going through Unlock.
func (a *App) ArmAudit() error {
	return a.armAudit()
}

func (a *App) armAudit() error {
	key, err := a.Cipher.GetOrCreateKey()
	if err != nil {
		return err
	}
	return a.Audit.SetHMACKey(key)
}

// Close releases the database connection.
func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
