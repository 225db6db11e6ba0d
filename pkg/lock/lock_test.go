package lock

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/forest6511/daybook/pkg/credential"
	"github.com/forest6511/daybook/pkg/keystore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeBiometrics struct {
	available bool
	methods   []string
	succeed   bool
	calls     int
}

func (b *fakeBiometrics) IsAvailable(context.Context) (BiometricCapability, error) {
	return BiometricCapability{Available: b.available, SupportedMethods: b.methods}, nil
}

func (b *fakeBiometrics) Authenticate(context.Context) (bool, error) {
	b.calls++
	return b.succeed, nil
}

type guardSpy struct {
	mu         sync.Mutex
	suppressed bool
}

func (g *guardSpy) Suppress() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.suppressed = true
}

func (g *guardSpy) Allow() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.suppressed = false
}

func (g *guardSpy) isSuppressed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressed
}

type fixture struct {
	ctrl  *Controller
	keys  keystore.Store
	clock *fakeClock
	bio   *fakeBiometrics
	guard *guardSpy
}

func newFixture(t *testing.T, cfg Config, bio *fakeBiometrics) *fixture {
	t.Helper()
	keys := keystore.NewFileStore(filepath.Join(t.TempDir(), "keys"))
	clock := newFakeClock()
	guard := &guardSpy{}
	var biometrics Biometrics
	if bio != nil {
		biometrics = bio
	}
	ctrl := NewController(cfg, credential.NewService(), keys, biometrics, guard, WithClock(clock.Now))
	return &fixture{ctrl: ctrl, keys: keys, clock: clock, bio: bio, guard: guard}
}

func (f *fixture) startUnlockedWithCredential(t *testing.T, password string) {
	t.Helper()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := f.ctrl.SetCredential(password); err != nil {
		t.Fatalf("SetCredential() error: %v", err)
	}
}

func TestStartWithoutCredential(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	state := f.ctrl.Snapshot()
	if state.Phase != PhaseUnlocked {
		t.Errorf("phase after start without credential = %s, want unlocked", state.Phase)
	}
	if state.HasCredential {
		t.Error("HasCredential = true, want false")
	}
	if f.guard.isSuppressed() {
		t.Error("capture suppressed without a credential configured")
	}
}

func TestStartWithCredentialIsLocked(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.startUnlockedWithCredential(t, "Strong1!")

	// Simulate a cold start: fresh controller over the same keystore.
	ctrl2 := NewController(Config{}, credential.NewService(), f.keys, nil, nil, WithClock(f.clock.Now))
	if err := ctrl2.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	state := ctrl2.Snapshot()
	if state.Phase != PhaseLocked {
		t.Errorf("phase after cold start with credential = %s, want locked", state.Phase)
	}
	if !state.HasCredential {
		t.Error("HasCredential = false, want true")
	}
}

func TestUnlockWithPassword(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.startUnlockedWithCredential(t, "Strong1!")
	f.ctrl.Lock()

	if err := f.ctrl.UnlockWithPassword("Wrong1!!"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("UnlockWithPassword(wrong): got %v, want ErrInvalidPassword", err)
	}
	if f.ctrl.Unlocked() {
		t.Fatal("rejected attempt changed state to unlocked")
	}

	if err := f.ctrl.UnlockWithPassword("Strong1!"); err != nil {
		t.Fatalf("UnlockWithPassword() error: %v", err)
	}
	if !f.ctrl.Unlocked() {
		t.Fatal("phase is not unlocked after correct password")
	}
	if !f.guard.isSuppressed() {
		t.Error("capture not suppressed while unlocked with credential")
	}

	f.ctrl.Lock()
	if f.guard.isSuppressed() {
		t.Error("capture still suppressed after lock")
	}
}

func TestUnlockWithBiometrics(t *testing.T) {
	bio := &fakeBiometrics{available: true, methods: []string{"fingerprint"}, succeed: false}
	f := newFixture(t, Config{}, bio)
	f.startUnlockedWithCredential(t, "Strong1!")
	if err := f.ctrl.SetBiometricEnabled(true); err != nil {
		t.Fatalf("SetBiometricEnabled() error: %v", err)
	}
	f.ctrl.Lock()

	// Failed challenge: no state change, caller falls back to password.
	if err := f.ctrl.UnlockWithBiometrics(context.Background()); !errors.Is(err, ErrBiometricFailed) {
		t.Fatalf("UnlockWithBiometrics(): got %v, want ErrBiometricFailed", err)
	}
	if f.ctrl.Unlocked() {
		t.Fatal("failed biometric challenge unlocked the journal")
	}

	bio.succeed = true
	if err := f.ctrl.UnlockWithBiometrics(context.Background()); err != nil {
		t.Fatalf("UnlockWithBiometrics() error: %v", err)
	}
	if !f.ctrl.Unlocked() {
		t.Fatal("phase is not unlocked after successful biometric challenge")
	}
}

func TestBiometricsDisabledByDefault(t *testing.T) {
	bio := &fakeBiometrics{available: true, succeed: true}
	f := newFixture(t, Config{}, bio)
	f.startUnlockedWithCredential(t, "Strong1!")
	f.ctrl.Lock()

	if err := f.ctrl.UnlockWithBiometrics(context.Background()); !errors.Is(err, ErrBiometricUnavailable) {
		t.Errorf("UnlockWithBiometrics() with disabled preference: got %v, want ErrBiometricUnavailable", err)
	}
	if bio.calls != 0 {
		t.Errorf("Authenticate() called %d times with the preference disabled", bio.calls)
	}
}

func TestInactivityTimeout(t *testing.T) {
	f := newFixture(t, Config{InactivityTimeout: 5 * time.Minute}, nil)
	f.startUnlockedWithCredential(t, "Strong1!")

	// Activity keeps the journal unlocked.
	f.clock.Advance(4 * time.Minute)
	f.ctrl.Touch()
	f.clock.Advance(4 * time.Minute)
	f.ctrl.CheckInactivity()
	if !f.ctrl.Unlocked() {
		t.Fatal("locked despite activity within the timeout")
	}

	// No activity past the timeout locks.
	f.clock.Advance(2 * time.Minute)
	f.ctrl.CheckInactivity()
	if f.ctrl.Unlocked() {
		t.Fatal("not locked after exceeding the inactivity timeout")
	}
}

func TestBackgroundTimeout(t *testing.T) {
	f := newFixture(t, Config{BackgroundTimeout: 30 * time.Second}, nil)
	f.startUnlockedWithCredential(t, "Strong1!")

	// Short background stay does not lock.
	f.ctrl.EnterBackground()
	f.clock.Advance(10 * time.Second)
	f.ctrl.EnterForeground()
	if !f.ctrl.Unlocked() {
		t.Fatal("locked after a background stay within the timeout")
	}

	// Long background stay locks on return.
	f.ctrl.EnterBackground()
	f.clock.Advance(31 * time.Second)
	f.ctrl.EnterForeground()
	if f.ctrl.Unlocked() {
		t.Fatal("not locked after exceeding the background timeout")
	}
}

func TestNoCredentialNeverLocks(t *testing.T) {
	f := newFixture(t, Config{InactivityTimeout: time.Minute}, nil)
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	f.ctrl.Lock()
	f.clock.Advance(time.Hour)
	f.ctrl.CheckInactivity()
	f.ctrl.EnterBackground()
	f.clock.Advance(time.Hour)
	f.ctrl.EnterForeground()

	if !f.ctrl.Unlocked() {
		t.Error("controller without a credential left the unlocked phase")
	}
}

func TestSetCredentialValidation(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	err := f.ctrl.SetCredential("weak")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("SetCredential(weak): got %v, want ValidationError", err)
	}
	if len(verr.Problems) == 0 {
		t.Error("ValidationError carries no problems")
	}

	if err := f.ctrl.SetCredential("Strong1!"); err != nil {
		t.Fatalf("SetCredential() error: %v", err)
	}
	if err := f.ctrl.SetCredential("Another1!"); !errors.Is(err, ErrCredentialExists) {
		t.Errorf("second SetCredential(): got %v, want ErrCredentialExists", err)
	}
}

func TestChangeCredentialRequiresProof(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.startUnlockedWithCredential(t, "Strong1!")

	if err := f.ctrl.ChangeCredential("Wrong1!!", "Another1!"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("ChangeCredential(wrong current): got %v, want ErrInvalidPassword", err)
	}

	// Changing while locked is disallowed.
	f.ctrl.Lock()
	if err := f.ctrl.ChangeCredential("Strong1!", "Another1!"); !errors.Is(err, ErrLocked) {
		t.Fatalf("ChangeCredential() while locked: got %v, want ErrLocked", err)
	}

	if err := f.ctrl.UnlockWithPassword("Strong1!"); err != nil {
		t.Fatalf("UnlockWithPassword() error: %v", err)
	}
	if err := f.ctrl.ChangeCredential("Strong1!", "Another1!"); err != nil {
		t.Fatalf("ChangeCredential() error: %v", err)
	}

	f.ctrl.Lock()
	if err := f.ctrl.UnlockWithPassword("Another1!"); err != nil {
		t.Errorf("UnlockWithPassword(new) after change: %v", err)
	}
}

func TestRemoveCredentialDisablesBiometrics(t *testing.T) {
	bio := &fakeBiometrics{available: true, succeed: true}
	f := newFixture(t, Config{}, bio)
	f.startUnlockedWithCredential(t, "Strong1!")
	if err := f.ctrl.SetBiometricEnabled(true); err != nil {
		t.Fatalf("SetBiometricEnabled() error: %v", err)
	}

	if err := f.ctrl.RemoveCredential("Strong1!"); err != nil {
		t.Fatalf("RemoveCredential() error: %v", err)
	}

	state := f.ctrl.Snapshot()
	if state.HasCredential {
		t.Error("HasCredential = true after removal")
	}
	if state.Biometric.Enabled {
		t.Error("biometric preference survived credential removal")
	}
	if _, err := f.keys.Get(keystore.KeyCredentialHash); !errors.Is(err, keystore.ErrNotFound) {
		t.Errorf("credential hash still stored: %v", err)
	}
	if f.guard.isSuppressed() {
		t.Error("capture still suppressed after credential removal")
	}
}
