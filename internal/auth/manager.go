// Package auth owns the process-wide authentication session: the persisted
// token, the identity it resolves to, and whether resolution has finished.
package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/qmuntal/stateless"

	"github.com/comigor/loanchat-go/internal/apperr"
	"github.com/comigor/loanchat-go/internal/logger"
	"github.com/comigor/loanchat-go/internal/metrics"
	"github.com/comigor/loanchat-go/internal/orchestrator"
	"github.com/comigor/loanchat-go/internal/tokenstore"
)

// State of the auth machine.
type State string

const (
	StateStart     State = "Start"
	StateVerifying State = "Verifying"
	StateResolved  State = "Resolved"
	StateAnonymous State = "Anonymous"
)

type trigger string

const (
	triggerNoToken    trigger = "NoToken"
	triggerTokenFound trigger = "TokenFound"
	triggerVerified   trigger = "Verified"
	triggerRejected   trigger = "Rejected"
	triggerLoggedIn   trigger = "LoggedIn"
	triggerLogout     trigger = "Logout"
)

// Status tells the presentation layer whether it may decide what to render.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

// User is the resolved identity.
type User = orchestrator.User

// Snapshot is a consistent read of the auth session.
type Snapshot struct {
	State  State
	Status Status
	User   *User
	Token  string
}

// Authenticated reports whether protected content may be shown.
func (s Snapshot) Authenticated() bool { return s.State == StateResolved && s.User != nil }

// Manager is the single auth session of the process.
type Manager struct {
	api    orchestrator.AuthAPI
	tokens tokenstore.Store

	mu       sync.Mutex
	fsm      *stateless.StateMachine
	user     *User
	token    string
	inflight bool
	// epoch increments on every Logout so a login that settles afterwards is discarded.
	epoch uint64
}

// NewManager builds a Manager in StateStart. Call Resolve once at startup.
func NewManager(api orchestrator.AuthAPI, tokens tokenstore.Store) *Manager {
	m := &Manager{api: api, tokens: tokens}

	fsm := stateless.NewStateMachineWithMode(StateStart, stateless.FiringImmediate)
	fsm.Configure(StateStart).
		Permit(triggerNoToken, StateAnonymous).
		Permit(triggerTokenFound, StateVerifying).
		Permit(triggerLogout, StateAnonymous)

	fsm.Configure(StateVerifying).
		Permit(triggerVerified, StateResolved).
		Permit(triggerRejected, StateAnonymous).
		Permit(triggerLogout, StateAnonymous)

	fsm.Configure(StateResolved).
		OnEntry(func(_ context.Context, _ ...any) error {
			metrics.RecordAuthResolution("resolved")
			return nil
		}).
		PermitReentry(triggerLoggedIn).
		Permit(triggerLogout, StateAnonymous)

	fsm.Configure(StateAnonymous).
		OnEntry(func(_ context.Context, _ ...any) error {
			m.user = nil
			m.token = ""
			metrics.RecordAuthResolution("anonymous")
			return nil
		}).
		Permit(triggerLoggedIn, StateResolved).
		Ignore(triggerLogout)

	fsm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		logger.L.Debug("auth transition", "from", t.Source, "to", t.Destination, "trigger", t.Trigger)
	})

	m.fsm = fsm
	return m
}

// State returns the current machine state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	return m.fsm.MustState().(State)
}

// Status is pending until the startup resolution has settled.
func (m *Manager) Status() Status {
	return m.Snapshot().Status
}

// Token returns the in-memory token, "" when anonymous.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Snapshot returns a copy of the auth session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{State: m.stateLocked(), Token: m.token, Status: StatusResolved}
	if s.State == StateStart || s.State == StateVerifying {
		s.Status = StatusPending
	}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	return s
}

func (m *Manager) fire(t trigger) {
	if err := m.fsm.Fire(t); err != nil {
		// Only reachable through a misconfigured machine.
		logger.L.Error("auth transition rejected", "trigger", t, "error", err)
	}
}

// Resolve reads the persisted token and verifies it. It is a no-op once the
// machine has left StateStart.
func (m *Manager) Resolve(ctx context.Context) Snapshot {
	if m.State() != StateStart {
		return m.Snapshot()
	}
	// The store may block on disk; it is read without holding mu.
	token, err := m.tokens.Load(ctx)

	m.mu.Lock()
	if m.stateLocked() != StateStart {
		// resolved or logged in while the store was read
		defer m.mu.Unlock()
		return m.snapshotLocked()
	}
	switch {
	case errors.Is(err, tokenstore.ErrCorrupt):
		logger.L.Warn("persisted token is corrupt; forcing logout")
		m.clearPersisted(ctx)
		token = ""
	case err != nil:
		logger.L.Warn("token store unreadable; continuing anonymous", "error", err)
		token = ""
	}
	if token == "" {
		defer m.mu.Unlock()
		m.fire(triggerNoToken)
		return m.snapshotLocked()
	}
	m.token = token
	m.fire(triggerTokenFound)
	m.mu.Unlock()

	user, err := m.api.Me(ctx, token)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.stateLocked() != StateVerifying:
		// logged out meanwhile
	case err != nil:
		logger.L.Info("persisted token rejected; clearing", "error", err)
		m.clearPersisted(ctx)
		m.fire(triggerRejected)
	default:
		m.user = user
		m.fire(triggerVerified)
		logger.L.Info("session restored", "user", user.Email)
	}
	return m.snapshotLocked()
}

// Login exchanges credentials for a token, persists it, then fetches the
// identity. A failed login leaves the session untouched. A failed identity
// fetch puts back the token the session had before, so a user is never
// present without a persisted token.
func (m *Manager) Login(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, &apperr.ValidationError{Field: "email", Reason: "required"}
	}
	if password == "" {
		return nil, &apperr.ValidationError{Field: "password", Reason: "required"}
	}

	m.mu.Lock()
	switch {
	case m.inflight:
		m.mu.Unlock()
		return nil, &apperr.BusyError{Op: "login"}
	case m.stateLocked() == StateStart || m.stateLocked() == StateVerifying:
		m.mu.Unlock()
		return nil, apperr.ErrAuthPending
	}
	m.inflight = true
	epoch := m.epoch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inflight = false
		m.mu.Unlock()
	}()

	tok, err := m.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := m.tokens.Save(ctx, tok.AccessToken); err != nil {
		return nil, err
	}

	user, err := m.api.Me(ctx, tok.AccessToken)
	if err != nil {
		m.restorePersisted(ctx)
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		m.clearPersisted(ctx)
		return nil, apperr.ErrUnauthenticated
	}
	m.token = tok.AccessToken
	m.user = user
	m.fire(triggerLoggedIn)
	logger.L.Info("logged in", "user", user.Email)
	u := *user
	return &u, nil
}

// Logout clears the persisted token and the in-memory identity. It never fails
// and may be called in any state.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	m.clearPersisted(ctx)
	m.user = nil
	m.token = ""
	m.fire(triggerLogout)
}

// restorePersisted puts back the token of the current session, if any, after
// a login attempt overwrote it.
func (m *Manager) restorePersisted(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		m.clearPersisted(ctx)
		return
	}
	if err := m.tokens.Save(ctx, m.token); err != nil {
		logger.L.Warn("failed to restore persisted token", "error", err)
	}
}

func (m *Manager) clearPersisted(ctx context.Context) {
	if err := m.tokens.Clear(ctx); err != nil {
		logger.L.Warn("failed to clear persisted token", "error", err)
	}
}

// SignupRequest is the input of Signup.
type SignupRequest = orchestrator.SignupRequest

// Signup registers an account after local validation. It does not log in.
func (m *Manager) Signup(ctx context.Context, req SignupRequest) (*User, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := ValidateSignup(req); err != nil {
		return nil, err
	}
	return m.api.Signup(ctx, req)
}

// ValidateSignup applies the local account rules.
func ValidateSignup(req SignupRequest) error {
	// a bare address only; display names such as "Ana <ana@example.com>" are rejected
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		return &apperr.ValidationError{Field: "email", Reason: "must be a valid address"}
	}
	if utf8.RuneCountInString(req.Password) < 8 {
		return &apperr.ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.FullName)) < 2 {
		return &apperr.ValidationError{Field: "full_name", Reason: "must be at least 2 characters"}
	}
	return nil
}
