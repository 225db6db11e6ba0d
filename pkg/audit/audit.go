// Package audit provides security event logging with an HMAC chain for
// tamper detection. Events never contain entry titles or content.
package audit

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// MinDiskSpace is the minimum free space required before an audit write.
const MinDiskSpace = 1024 * 1024

// Operation types for audit logging
const (
	// Lock operations
	OpUnlock       = "lock.unlock"
	OpUnlockFailed = "lock.unlock_failed"
	OpLock         = "lock.lock"

	// Credential operations
	OpCredentialSet    = "credential.set"
	OpCredentialChange = "credential.change"
	OpCredentialRemove = "credential.remove"

	// Entry operations
	OpEntryCreate = "entry.create"
	OpEntryUpdate = "entry.update"
	OpEntryDelete = "entry.delete"
	OpEntryImport = "entry.import"

	// Sync operations
	OpSyncPushFailed = "sync.push_failed"
	OpSyncItemParked = "sync.item_parked"

	// Cipher operations
	OpCipherFailure = "cipher.failure"

	// Backup operations
	OpBackupExport  = "backup.export"
	OpBackupRestore = "backup.restore"
)

// Source identifies where the operation originated
const (
	SourceCLI = "cli"
	SourceMCP = "mcp"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// Event is a single audit record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"` // RFC 3339 nanosecond precision

	Operation string `json:"op"`
	EntryID   string `json:"entryId,omitempty"`

	Source    string `json:"source"`
	SessionID string `json:"sessionId"`

	Result string     `json:"result"`
	Error  *ErrorInfo `json:"error,omitempty"`

	Context map[string]any `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links a record to its predecessor for tamper detection
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger appends events to monthly JSONL files, chaining each record's
// HMAC to the previous one so deletion or edits are detectable.
type Logger struct {
	path      string
	hmacKey   []byte
	mu        sync.Mutex
	sequence  int64
	prevHash  string
	sessionID string
	keySet    bool
}

// NewLogger creates an audit logger rooted at the given directory.
func NewLogger(path string) *Logger {
	return &Logger{
		path:      path,
		prevHash:  "genesis",
		sessionID: generateSessionID(),
	}
}

// SetHMACKey derives the chain key from the master key using HKDF-SHA256.
// Existing chain state is resumed so the chain spans sessions.
func (l *Logger) SetHMACKey(masterKey []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	reader := hkdf.New(sha256.New, masterKey, nil, []byte("audit-log-v1"))
	l.hmacKey = make([]byte, 32)
	if _, err := reader.Read(l.hmacKey); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.keySet = true

	if err := l.loadChainState(); err != nil {
		// First run, start a fresh chain.
		l.sequence = 0
		l.prevHash = "genesis"
	}
	return nil
}

// Log records an audit event.
func (l *Logger) Log(op, source, result, entryID string, errInfo *ErrorInfo, ctx map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.keySet {
		return fmt.Errorf("audit: HMAC key not set")
	}
	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	event := Event{
		Version:   1,
		ID:        generateEventID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		EntryID:   entryID,
		Source:    source,
		SessionID: l.sessionID,
		Result:    result,
		Error:     errInfo,
		Context:   ctx,
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash

	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write(l.buildRecordData(&event))
	event.Chain.HMAC = hex.EncodeToString(mac.Sum(nil))
	l.prevHash = event.Chain.HMAC

	if err := l.writeEvent(&event); err != nil {
		return err
	}
	return l.saveChainState()
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op, source, entryID string) error {
	return l.Log(op, source, ResultSuccess, entryID, nil, nil)
}

// LogError records a failed operation.
func (l *Logger) LogError(op, source, entryID, errCode, errMsg string) error {
	return l.Log(op, source, ResultError, entryID, &ErrorInfo{Code: errCode, Message: errMsg}, nil)
}

// LogDenied records a refused operation with its reason.
func (l *Logger) LogDenied(op, source, entryID, reason string) error {
	return l.Log(op, source, ResultDenied, entryID, nil, map[string]any{"reason": reason})
}

// RecordCipherFailure satisfies the cipher failure side-channel: a
// payload that failed to open is logged without surfacing to the user.
func (l *Logger) RecordCipherFailure(op string, err error) {
	// Audit failure here must not disturb the read path.
	_ = l.LogError(OpCipherFailure, SourceCLI, "", op, err.Error())
}

// buildRecordData covers every significant field, with context keys in
// sorted order so the HMAC is deterministic.
func (l *Logger) buildRecordData(event *Event) []byte {
	errorData := ""
	if event.Error != nil {
		errorData = fmt.Sprintf("%s|%s", event.Error.Code, event.Error.Message)
	}

	contextData := ""
	if event.Context != nil {
		keys := make([]string, 0, len(event.Context))
		for k := range event.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			contextData += fmt.Sprintf("%s=%v|", k, event.Context[k])
		}
	}

	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version,
		event.ID,
		event.Timestamp,
		event.Operation,
		event.EntryID,
		event.Source,
		event.SessionID,
		event.Result,
		errorData,
		contextData,
		event.Chain.Sequence,
		event.Chain.PrevHash,
	)
	return []byte(data)
}

// writeEvent appends an event to the current month's log file.
func (l *Logger) writeEvent(event *Event) error {
	filename := time.Now().UTC().Format("2006-01") + ".jsonl"
	logPath := filepath.Join(l.path, filename)

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

// ChainState holds the persistent chain state
type ChainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, "audit.meta"))
	if err != nil {
		return err
	}
	var state ChainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(ChainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.path, "audit.meta"), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// generateEventID creates a time-sortable unique identifier: a 48-bit
// millisecond timestamp followed by 80 random bits.
func generateEventID() string {
	ts := time.Now().UnixMilli()
	tsBytes := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		tsBytes[i] = byte(ts & 0xFF)
		ts >>= 8
	}

	randBytes := make([]byte, 10)
	if _, err := rand.Read(randBytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(append(tsBytes, randBytes...))
}

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"recordsTotal"`
	RecordsVerified int      `json:"recordsVerified"`
	Errors          []string `json:"errors,omitempty"`
}

// Verify checks the integrity of the audit log chain.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.keySet {
		return nil, fmt.Errorf("audit: HMAC key not set")
	}

	result := &VerifyResult{Valid: true}

	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// YYYY-MM.jsonl names sort chronologically.
	sort.Strings(files)

	expectedPrevHash := "genesis"
	var expectedSeq int64 = 1

	for _, file := range files {
		events, err := l.readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}

		for _, event := range events {
			result.RecordsTotal++

			if event.Chain.Sequence != expectedSeq {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"sequence gap at record %s: expected %d, got %d",
					event.ID, expectedSeq, event.Chain.Sequence))
			}
			if event.Chain.PrevHash != expectedPrevHash {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"chain broken at record %s: expected prev %s, got %s",
					event.ID, expectedPrevHash, event.Chain.PrevHash))
			}

			mac := hmac.New(sha256.New, l.hmacKey)
			mac.Write(l.buildRecordData(&event))
			if event.Chain.HMAC != hex.EncodeToString(mac.Sum(nil)) {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"HMAC mismatch at record %s: possible tampering", event.ID))
			}

			expectedPrevHash = event.Chain.HMAC
			expectedSeq++
		}
	}

	result.RecordsVerified = result.RecordsTotal
	return result, nil
}

// ListEvents returns audit events, oldest first. limit 0 means all;
// since zero means no time filter.
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)

	var all []Event
	for _, file := range files {
		events, err := l.readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		all = append(all, events...)
	}

	filtered := all
	if !since.IsZero() {
		filtered = nil
		for _, event := range all {
			eventTime, err := time.Parse(time.RFC3339Nano, event.Timestamp)
			if err != nil {
				continue
			}
			if eventTime.After(since) {
				filtered = append(filtered, event)
			}
		}
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

// Path returns the audit log directory path
func (l *Logger) Path() string {
	return l.path
}

func (l *Logger) readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to parse line: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
