// Package lock implements the state machine gating all journal access:
// password and biometric unlock, inactivity and backgrounding timeouts, and
// the credential lifecycle.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/forest6511/daybook/pkg/credential"
	"github.com/forest6511/daybook/pkg/keystore"
)

// Phase is the lock state. The only legal transitions are
// CHECKING -> LOCKED, CHECKING -> UNLOCKED (no credential configured),
// and LOCKED <-> UNLOCKED.
type Phase int

const (
	// PhaseChecking is the startup state while the stored credential and
	// biometric capability are probed.
	PhaseChecking Phase = iota

	// PhaseLocked denies all journal reads and writes.
	PhaseLocked

	// PhaseUnlocked permits journal access. With no credential configured
	// the controller stays in this phase permanently.
	PhaseUnlocked
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseChecking:
		return "checking"
	case PhaseLocked:
		return "locked"
	case PhaseUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Default timeouts. Inactivity is polled on a fixed interval rather than a
// single deferred timer so the check survives process suspension; the
// background timeout compares wall-clock instants because timers do not run
// reliably while the app is backgrounded.
const (
	DefaultInactivityTimeout = 5 * time.Minute
	DefaultBackgroundTimeout = 30 * time.Second
	DefaultPollInterval      = 30 * time.Second
)

// Sentinel errors.
var (
	// ErrNotStarted indicates an operation before Start completed.
	ErrNotStarted = errors.New("lock: controller not started")

	// ErrLocked indicates an operation that requires the unlocked phase.
	ErrLocked = errors.New("lock: journal is locked")

	// ErrInvalidPassword indicates a rejected password attempt. State is
	// unchanged.
	ErrInvalidPassword = errors.New("lock: invalid password")

	// ErrNoCredential indicates an unlock or credential operation while no
	// credential is configured.
	ErrNoCredential = errors.New("lock: no credential configured")

	// ErrCredentialExists indicates SetCredential while one is configured.
	ErrCredentialExists = errors.New("lock: credential already configured")

	// ErrBiometricUnavailable indicates no usable biometric hardware or a
	// disabled biometric preference.
	ErrBiometricUnavailable = errors.New("lock: biometric unlock unavailable")

	// ErrBiometricFailed indicates a failed biometric challenge. State is
	// unchanged; callers fall back to the password path.
	ErrBiometricFailed = errors.New("lock: biometric challenge failed")
)

// ValidationError carries the password-rule violations that rejected a
// credential change.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "lock: password rejected: " + strings.Join(e.Problems, "; ")
}

// BiometricCapability describes what the device biometric hardware offers.
type BiometricCapability struct {
	Available        bool
	SupportedMethods []string
}

// Biometrics is the external biometric challenge provider.
type Biometrics interface {
	// IsAvailable probes device capability.
	IsAvailable(ctx context.Context) (BiometricCapability, error)

	// Authenticate presents the biometric challenge and reports success.
	Authenticate(ctx context.Context) (bool, error)
}

// CaptureGuard suppresses screen capture while sensitive content is
// visible.
type CaptureGuard interface {
	Suppress()
	Allow()
}

// Config holds the controller timeouts. Zero values fall back to defaults.
type Config struct {
	InactivityTimeout time.Duration
	BackgroundTimeout time.Duration
	PollInterval      time.Duration
}

func (c Config) withDefaults() Config {
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.BackgroundTimeout <= 0 {
		c.BackgroundTimeout = DefaultBackgroundTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// BiometricState is the biometric part of the controller state.
type BiometricState struct {
	Available        bool
	SupportedMethods []string
	Enabled          bool
}

// State is a snapshot of the controller.
type State struct {
	Phase          Phase
	HasCredential  bool
	Biometric      BiometricState
	LastActivityAt time.Time
	BackgroundedAt *time.Time
}

// Controller is the journal lock state machine. All mutation goes through
// one mutex; no two concurrent authentication attempts can race into an
// inconsistent state.
type Controller struct {
	cfg   Config
	creds *credential.Service
	keys  keystore.Store
	bio   Biometrics
	guard CaptureGuard
	now   func() time.Time

	mu      sync.Mutex
	started bool
	state   State
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController wires the lock controller. bio and guard may be nil when
// the platform offers neither.
func NewController(cfg Config, creds *credential.Service, keys keystore.Store, bio Biometrics, guard CaptureGuard, opts ...Option) *Controller {
	c := &Controller{
		cfg:   cfg.withDefaults(),
		creds: creds,
		keys:  keys,
		bio:   bio,
		guard: guard,
		now:   time.Now,
		state: State{Phase: PhaseChecking},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start probes the stored credential and biometric capability, then leaves
// CHECKING for LOCKED (credential configured) or UNLOCKED (none).
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hasCredential, err := c.credentialExists()
	if err != nil {
		return err
	}

	bioState := BiometricState{}
	if c.bio != nil {
		capability, err := c.bio.IsAvailable(ctx)
		if err == nil {
			bioState.Available = capability.Available
			bioState.SupportedMethods = capability.SupportedMethods
		}
		// Probe failure counts as unavailable, never blocks startup.
	}
	if bioState.Available {
		pref, err := c.keys.Get(keystore.KeyBiometricEnabled)
		if err == nil && string(pref) == "1" {
			bioState.Enabled = true
		}
	}

	now := c.now()
	c.state = State{
		HasCredential:  hasCredential,
		Biometric:      bioState,
		LastActivityAt: now,
	}
	if hasCredential {
		c.state.Phase = PhaseLocked
	} else {
		c.state.Phase = PhaseUnlocked
	}
	c.started = true
	c.applyCaptureGuard()
	return nil
}

// Run polls the inactivity check until ctx is done. Callers start it once
// alongside the UI loop.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckInactivity()
		}
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	if c.state.BackgroundedAt != nil {
		t := *c.state.BackgroundedAt
		s.BackgroundedAt = &t
	}
	s.Biometric.SupportedMethods = append([]string(nil), c.state.Biometric.SupportedMethods...)
	return s
}

// Unlocked reports whether journal access is currently permitted.
func (c *Controller) Unlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase == PhaseUnlocked
}

// UnlockWithPassword verifies the password and unlocks. A rejected attempt
// leaves the state unchanged.
func (c *Controller) UnlockWithPassword(password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}
	if !c.state.HasCredential {
		return ErrNoCredential
	}
	if c.state.Phase == PhaseUnlocked {
		return nil
	}

	ok, err := c.verifyAgainstStored(password)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidPassword
	}

	c.transition(PhaseUnlocked)
	return nil
}

// UnlockWithBiometrics presents the biometric challenge and unlocks on
// success. A failed challenge is reported as ErrBiometricFailed without a
// state change so the caller can fall back to the password path.
func (c *Controller) UnlockWithBiometrics(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}
	if !c.state.HasCredential {
		return ErrNoCredential
	}
	if c.bio == nil || !c.state.Biometric.Available || !c.state.Biometric.Enabled {
		return ErrBiometricUnavailable
	}
	if c.state.Phase == PhaseUnlocked {
		return nil
	}

	ok, err := c.bio.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBiometricFailed, err)
	}
	if !ok {
		return ErrBiometricFailed
	}

	c.transition(PhaseUnlocked)
	return nil
}

// Lock locks the journal immediately (explicit user action). Without a
// configured credential there is nothing to lock behind, so it is a no-op.
func (c *Controller) Lock() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.HasCredential || c.state.Phase != PhaseUnlocked {
		return
	}
	c.transition(PhaseLocked)
}

// Touch records a user-initiated interaction with journal content,
// resetting the inactivity clock.
func (c *Controller) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase == PhaseUnlocked {
		c.state.LastActivityAt = c.now()
	}
}

// CheckInactivity locks the journal when no tracked activity happened for
// the configured timeout. Run calls it on every poll tick.
func (c *Controller) CheckInactivity() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != PhaseUnlocked || !c.state.HasCredential {
		return
	}
	if c.now().Sub(c.state.LastActivityAt) >= c.cfg.InactivityTimeout {
		c.transition(PhaseLocked)
	}
}

// EnterBackground records the wall-clock instant the app left the
// foreground.
func (c *Controller) EnterBackground() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.state.BackgroundedAt = &now
}

// EnterForeground compares wall-clock time spent in the background against
// the background timeout and locks when it was exceeded. Returning within
// the timeout counts as activity.
func (c *Controller) EnterForeground() {
	c.mu.Lock()
	defer c.mu.Unlock()

	backgroundedAt := c.state.BackgroundedAt
	c.state.BackgroundedAt = nil
	if backgroundedAt == nil || c.state.Phase != PhaseUnlocked || !c.state.HasCredential {
		return
	}

	if c.now().Sub(*backgroundedAt) >= c.cfg.BackgroundTimeout {
		c.transition(PhaseLocked)
		return
	}
	c.state.LastActivityAt = c.now()
}

// SetCredential configures the lock credential for the first time. The
// password must pass validation.
func (c *Controller) SetCredential(password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}
	if c.state.HasCredential {
		return ErrCredentialExists
	}

	if err := c.storeCredential(password); err != nil {
		return err
	}
	c.state.HasCredential = true
	// Already in the unlocked (no-credential) phase; keep it, but capture
	// suppression now applies.
	c.state.LastActivityAt = c.now()
	c.applyCaptureGuard()
	return nil
}

// ChangeCredential replaces the credential. The controller must be
// unlocked and the current password must verify: changing a password you
// cannot currently prove is disallowed.
func (c *Controller) ChangeCredential(current, next string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireProvenUnlock(current); err != nil {
		return err
	}
	return c.storeCredential(next)
}

// RemoveCredential deletes the credential and disables biometric unlock.
// The controller must be unlocked and the current password must verify.
func (c *Controller) RemoveCredential(current string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireProvenUnlock(current); err != nil {
		return err
	}

	if err := c.keys.Delete(keystore.KeyCredentialHash); err != nil {
		return err
	}
	if err := c.keys.Delete(keystore.KeyBiometricEnabled); err != nil {
		return err
	}
	c.state.HasCredential = false
	c.state.Biometric.Enabled = false
	c.state.Phase = PhaseUnlocked
	c.applyCaptureGuard()
	return nil
}

// SetBiometricEnabled persists the biometric-unlock preference. Requires
// an unlocked controller and available biometric hardware.
func (c *Controller) SetBiometricEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}
	if c.state.Phase != PhaseUnlocked {
		return ErrLocked
	}
	if enabled && !c.state.Biometric.Available {
		return ErrBiometricUnavailable
	}

	value := []byte("0")
	if enabled {
		value = []byte("1")
	}
	if err := c.keys.Set(keystore.KeyBiometricEnabled, value); err != nil {
		return err
	}
	c.state.Biometric.Enabled = enabled
	return nil
}

// transition moves between LOCKED and UNLOCKED and applies the capture
// guard side effect. Callers hold the mutex.
func (c *Controller) transition(next Phase) {
	c.state.Phase = next
	if next == PhaseUnlocked {
		c.state.LastActivityAt = c.now()
	}
	c.applyCaptureGuard()
}

// applyCaptureGuard suppresses screen capture while unlocked with a
// credential configured, and permits it again while locked.
func (c *Controller) applyCaptureGuard() {
	if c.guard == nil {
		return
	}
	if c.state.Phase == PhaseUnlocked && c.state.HasCredential {
		c.guard.Suppress()
	} else {
		c.guard.Allow()
	}
}

func (c *Controller) requireProvenUnlock(current string) error {
	if !c.started {
		return ErrNotStarted
	}
	if !c.state.HasCredential {
		return ErrNoCredential
	}
	if c.state.Phase != PhaseUnlocked {
		return ErrLocked
	}

	ok, err := c.verifyAgainstStored(current)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidPassword
	}
	return nil
}

func (c *Controller) storeCredential(password string) error {
	if result := c.creds.ValidatePassword(password); !result.IsValid {
		return &ValidationError{Problems: result.Errors}
	}

	hash, err := c.creds.HashPassword(password)
	if err != nil {
		return err
	}
	return c.keys.Set(keystore.KeyCredentialHash, []byte(hash))
}

func (c *Controller) verifyAgainstStored(password string) (bool, error) {
	stored, err := c.keys.Get(keystore.KeyCredentialHash)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return false, ErrNoCredential
		}
		return false, err
	}
	return c.creds.VerifyPassword(password, string(stored))
}

func (c *Controller) credentialExists() (bool, error) {
	_, err := c.keys.Get(keystore.KeyCredentialHash)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, keystore.ErrNotFound) {
		return false, nil
	}
	return false, err
}
