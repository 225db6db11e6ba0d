package audit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	logger := NewLogger(t.TempDir())
	if err := logger.SetHMACKey(testKey()); err != nil {
		t.Fatalf("SetHMACKey() error: %v", err)
	}
	return logger
}

func TestLogWithoutKeyFails(t *testing.T) {
	logger := NewLogger(t.TempDir())
	if err := logger.LogSuccess(OpUnlock, SourceCLI, ""); err == nil {
		t.Error("Log() without HMAC key did not fail")
	}
}

func TestLogWritesMonthlyFile(t *testing.T) {
	logger := newTestLogger(t)

	if err := logger.LogSuccess(OpEntryCreate, SourceCLI, "entry-1"); err != nil {
		t.Fatalf("LogSuccess() error: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(logger.Path(), "*.jsonl"))
	if err != nil {
		t.Fatalf("Glob() error: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("found %d log files, want 1", len(files))
	}
	wantName := time.Now().UTC().Format("2006-01") + ".jsonl"
	if filepath.Base(files[0]) != wantName {
		t.Errorf("log file = %s, want %s", filepath.Base(files[0]), wantName)
	}

	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	var event Event
	if err := json.Unmarshal(data[:len(data)-1], &event); err != nil {
		t.Fatalf("event is not valid JSON: %v", err)
	}
	if event.Operation != OpEntryCreate || event.EntryID != "entry-1" || event.Result != ResultSuccess {
		t.Errorf("event = %+v", event)
	}
	if event.Chain.Sequence != 1 || event.Chain.PrevHash != "genesis" || event.Chain.HMAC == "" {
		t.Errorf("chain = %+v, want seq 1 from genesis", event.Chain)
	}
}

func TestVerifyIntactChain(t *testing.T) {
	logger := newTestLogger(t)

	ops := []string{OpUnlock, OpEntryCreate, OpEntryUpdate, OpLock}
	for _, op := range ops {
		if err := logger.LogSuccess(op, SourceCLI, ""); err != nil {
			t.Fatalf("LogSuccess(%s) error: %v", op, err)
		}
	}

	result, err := logger.Verify()
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !result.Valid || result.RecordsTotal != len(ops) {
		t.Errorf("Verify() = %+v, want valid with %d records", result, len(ops))
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	logger := newTestLogger(t)

	if err := logger.LogSuccess(OpUnlock, SourceCLI, ""); err != nil {
		t.Fatalf("LogSuccess() error: %v", err)
	}
	if err := logger.LogError(OpSyncPushFailed, SourceCLI, "e1", "network", "timeout"); err != nil {
		t.Fatalf("LogError() error: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(logger.Path(), "*.jsonl"))
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	lines := splitLines(data)

	// Rewrite the first event's operation without recomputing its HMAC.
	var first Event
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	first.Operation = OpEntryDelete
	edited, _ := json.Marshal(first)
	out := append(edited, '\n')
	out = append(out, lines[1]...)
	out = append(out, '\n')
	if err := os.WriteFile(files[0], out, 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	result, err := logger.Verify()
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if result.Valid || len(result.Errors) == 0 {
		t.Errorf("Verify() = %+v, want tampering detected", result)
	}
}

func TestChainResumesAcrossSessions(t *testing.T) {
	dir := t.TempDir()

	first := NewLogger(dir)
	if err := first.SetHMACKey(testKey()); err != nil {
		t.Fatalf("SetHMACKey() error: %v", err)
	}
	if err := first.LogSuccess(OpUnlock, SourceCLI, ""); err != nil {
		t.Fatalf("LogSuccess() error: %v", err)
	}

	second := NewLogger(dir)
	if err := second.SetHMACKey(testKey()); err != nil {
		t.Fatalf("SetHMACKey() error: %v", err)
	}
	if err := second.LogSuccess(OpLock, SourceCLI, ""); err != nil {
		t.Fatalf("LogSuccess() error: %v", err)
	}

	result, err := second.Verify()
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !result.Valid || result.RecordsTotal != 2 {
		t.Errorf("Verify() across sessions = %+v, want valid chain of 2", result)
	}
}

func TestRecordCipherFailureDoesNotPanic(t *testing.T) {
	logger := newTestLogger(t)
	logger.RecordCipherFailure("decrypt", errors.New("malformed payload"))

	events, err := logger.ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents() error: %v", err)
	}
	if len(events) != 1 || events[0].Operation != OpCipherFailure {
		t.Errorf("events = %+v, want one cipher failure record", events)
	}
}

func TestListEventsLimitAndSince(t *testing.T) {
	logger := newTestLogger(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := logger.LogSuccess(OpEntryCreate, SourceCLI, id); err != nil {
			t.Fatalf("LogSuccess() error: %v", err)
		}
	}

	events, err := logger.ListEvents(2, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents() error: %v", err)
	}
	if len(events) != 2 || events[0].EntryID != "b" || events[1].EntryID != "c" {
		t.Errorf("ListEvents(2) = %+v, want the two most recent", events)
	}

	none, err := logger.ListEvents(0, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListEvents() error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ListEvents(future since) returned %d events, want 0", len(none))
	}
}
