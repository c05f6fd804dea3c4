package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/comigor/loanchat-go/internal/apperr"
	"github.com/comigor/loanchat-go/internal/orchestrator"
	"github.com/comigor/loanchat-go/internal/tokenstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockAuthAPI struct {
	mu       sync.Mutex
	meCalls  []string
	loginF   func(email, password string) (*orchestrator.TokenResponse, error)
	meF      func(ctx context.Context, token string) (*orchestrator.User, error)
	signupF  func(req orchestrator.SignupRequest) (*orchestrator.User, error)
	signupCt int
}

func (m *mockAuthAPI) Login(_ context.Context, email, password string) (*orchestrator.TokenResponse, error) {
	return m.loginF(email, password)
}

func (m *mockAuthAPI) Me(ctx context.Context, token string) (*orchestrator.User, error) {
	m.mu.Lock()
	m.meCalls = append(m.meCalls, token)
	m.mu.Unlock()
	return m.meF(ctx, token)
}

func (m *mockAuthAPI) Signup(_ context.Context, req orchestrator.SignupRequest) (*orchestrator.User, error) {
	m.signupCt++
	return m.signupF(req)
}

var ana = &orchestrator.User{ID: "u1", Email: "ana@example.com", FullName: "Ana Lima", Role: "customer"}

func meAccepting(valid string) func(context.Context, string) (*orchestrator.User, error) {
	return func(_ context.Context, token string) (*orchestrator.User, error) {
		if token != valid {
			return nil, &apperr.TransportError{Op: "me", Status: 401, Body: "Could not validate credentials"}
		}
		u := *ana
		return &u, nil
	}
}

func persisted(t *testing.T, s tokenstore.Store) string {
	t.Helper()
	tok, err := s.Load(context.Background())
	require.NoError(t, err)
	return tok
}

func TestResolve_NoToken(t *testing.T) {
	api := &mockAuthAPI{meF: meAccepting("good")}
	m := NewManager(api, tokenstore.NewMemory())
	require.Equal(t, StatusPending, m.Status())

	snap := m.Resolve(context.Background())
	require.Equal(t, StateAnonymous, snap.State)
	require.Equal(t, StatusResolved, snap.Status)
	require.Nil(t, snap.User)
	require.Empty(t, api.meCalls)
}

func TestResolve_ValidToken(t *testing.T) {
	store := tokenstore.NewMemory()
	require.NoError(t, store.Save(context.Background(), "good"))
	m := NewManager(&mockAuthAPI{meF: meAccepting("good")}, store)

	snap := m.Resolve(context.Background())
	require.Equal(t, StateResolved, snap.State)
	require.True(t, snap.Authenticated())
	require.Equal(t, "ana@example.com", snap.User.Email)
	require.Equal(t, "good", m.Token())
	require.Equal(t, "good", persisted(t, store))
}

func TestResolve_NeverAnonymousBeforeVerification(t *testing.T) {
	store := tokenstore.NewMemory()
	require.NoError(t, store.Save(context.Background(), "good"))

	var m *Manager
	var during Snapshot
	api := &mockAuthAPI{meF: func(ctx context.Context, token string) (*orchestrator.User, error) {
		during = m.Snapshot()
		return meAccepting("good")(ctx, token)
	}}
	m = NewManager(api, store)
	m.Resolve(context.Background())

	require.Equal(t, StateVerifying, during.State)
	require.Equal(t, StatusPending, during.Status)
	require.Nil(t, during.User)
	require.Equal(t, StateResolved, m.State())
}

func TestResolve_InvalidTokenClearsIt(t *testing.T) {
	store := tokenstore.NewMemory()
	require.NoError(t, store.Save(context.Background(), "expired"))
	m := NewManager(&mockAuthAPI{meF: meAccepting("good")}, store)

	snap := m.Resolve(context.Background())
	require.Equal(t, StateAnonymous, snap.State)
	require.Equal(t, StatusResolved, snap.Status)
	require.Nil(t, snap.User)
	require.Empty(t, snap.Token)
	require.Empty(t, persisted(t, store))
}

type corruptStore struct {
	tokenstore.Memory
	cleared bool
}

func (c *corruptStore) Load(context.Context) (string, error) {
	if c.cleared {
		return "", nil
	}
	return "", tokenstore.ErrCorrupt
}

func (c *corruptStore) Clear(context.Context) error {
	c.cleared = true
	return nil
}

func TestResolve_CorruptTokenForcesLogout(t *testing.T) {
	store := &corruptStore{}
	api := &mockAuthAPI{meF: meAccepting("good")}
	m := NewManager(api, store)

	snap := m.Resolve(context.Background())
	require.Equal(t, StateAnonymous, snap.State)
	require.True(t, store.cleared)
	require.Empty(t, api.meCalls)
}

// slowStore runs afterLoad once the token has been read, standing in for a
// store that blocks on disk while other callers use the manager.
type slowStore struct {
	*tokenstore.Memory
	afterLoad func()
}

func (s *slowStore) Load(ctx context.Context) (string, error) {
	token, err := s.Memory.Load(ctx)
	s.afterLoad()
	return token, err
}

func TestResolve_StoreReadDoesNotHoldLock(t *testing.T) {
	ctx := context.Background()
	store := &slowStore{Memory: tokenstore.NewMemory()}
	require.NoError(t, store.Save(ctx, "good"))
	api := &mockAuthAPI{meF: meAccepting("good")}
	m := NewManager(api, store)

	store.afterLoad = func() {
		require.True(t, m.mu.TryLock(), "manager locked while reading the token store")
		m.mu.Unlock()
		require.Equal(t, StatusPending, m.Status())
		m.Logout(ctx)
	}

	snap := m.Resolve(ctx)
	require.Equal(t, StateAnonymous, snap.State)
	require.Nil(t, snap.User)
	require.Empty(t, api.meCalls)
	require.Empty(t, persisted(t, store.Memory))
}

func TestResolve_Idempotent(t *testing.T) {
	store := tokenstore.NewMemory()
	require.NoError(t, store.Save(context.Background(), "good"))
	api := &mockAuthAPI{meF: meAccepting("good")}
	m := NewManager(api, store)

	m.Resolve(context.Background())
	m.Resolve(context.Background())
	require.Len(t, api.meCalls, 1)
}

func TestLogin_Success(t *testing.T) {
	store := tokenstore.NewMemory()
	api := &mockAuthAPI{
		meF: meAccepting("fresh"),
		loginF: func(email, password string) (*orchestrator.TokenResponse, error) {
			require.Equal(t, "ana@example.com", email)
			return &orchestrator.TokenResponse{AccessToken: "fresh"}, nil
		},
	}
	m := NewManager(api, store)
	m.Resolve(context.Background())

	u, err := m.Login(context.Background(), " ana@example.com ", "secret123")
	require.NoError(t, err)
	require.Equal(t, "Ana Lima", u.FullName)
	require.Equal(t, StateResolved, m.State())
	require.Equal(t, "fresh", persisted(t, store))
	require.Equal(t, []string{"fresh"}, api.meCalls)
}

func TestLogin_FailureLeavesNoPartialState(t *testing.T) {
	store := tokenstore.NewMemory()
	api := &mockAuthAPI{
		meF: meAccepting("fresh"),
		loginF: func(string, string) (*orchestrator.TokenResponse, error) {
			return nil, &apperr.TransportError{Op: "login", Status: 401, Body: "Incorrect email or password"}
		},
	}
	m := NewManager(api, store)
	m.Resolve(context.Background())

	_, err := m.Login(context.Background(), "ana@example.com", "wrong")
	var te *apperr.TransportError
	require.True(t, errors.As(err, &te))
	require.True(t, te.Unauthorized())

	snap := m.Snapshot()
	require.Equal(t, StateAnonymous, snap.State)
	require.Nil(t, snap.User)
	require.Empty(t, persisted(t, store))
	require.Empty(t, api.meCalls)
}

func TestLogin_IdentityFetchFailureDropsNewToken(t *testing.T) {
	store := tokenstore.NewMemory()
	api := &mockAuthAPI{
		meF: func(context.Context, string) (*orchestrator.User, error) {
			return nil, &apperr.TransportError{Op: "me", Status: 500}
		},
		loginF: func(string, string) (*orchestrator.TokenResponse, error) {
			return &orchestrator.TokenResponse{AccessToken: "fresh"}, nil
		},
	}
	m := NewManager(api, store)
	m.Resolve(context.Background())

	_, err := m.Login(context.Background(), "ana@example.com", "secret123")
	require.ErrorIs(t, err, apperr.ErrTransport)
	require.Equal(t, StateAnonymous, m.State())
	require.Empty(t, persisted(t, store))
}

func TestLogin_IdentityFetchFailureKeepsPreviousSession(t *testing.T) {
	store := tokenstore.NewMemory()
	require.NoError(t, store.Save(context.Background(), "good"))
	api := &mockAuthAPI{
		meF: meAccepting("good"),
		loginF: func(string, string) (*orchestrator.TokenResponse, error) {
			return &orchestrator.TokenResponse{AccessToken: "other"}, nil
		},
	}
	m := NewManager(api, store)
	m.Resolve(context.Background())

	_, err := m.Login(context.Background(), "bob@example.com", "secret123")
	require.Error(t, err)
	require.Equal(t, StateResolved, m.State())
	require.Equal(t, "good", persisted(t, store))
	require.Equal(t, "good", m.Token())
}

func TestLogin_RejectedWhilePending(t *testing.T) {
	m := NewManager(&mockAuthAPI{}, tokenstore.NewMemory())
	_, err := m.Login(context.Background(), "ana@example.com", "secret123")
	require.ErrorIs(t, err, apperr.ErrAuthPending)
}

func TestLogin_ValidatesInput(t *testing.T) {
	m := NewManager(&mockAuthAPI{}, tokenstore.NewMemory())
	m.Resolve(context.Background())

	_, err := m.Login(context.Background(), "  ", "secret123")
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = m.Login(context.Background(), "ana@example.com", "")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLogout_IdempotentAndClears(t *testing.T) {
	store := tokenstore.NewMemory()
	require.NoError(t, store.Save(context.Background(), "good"))
	m := NewManager(&mockAuthAPI{meF: meAccepting("good")}, store)
	m.Resolve(context.Background())
	require.Equal(t, StateResolved, m.State())

	m.Logout(context.Background())
	m.Logout(context.Background())

	snap := m.Snapshot()
	require.Equal(t, StateAnonymous, snap.State)
	require.Nil(t, snap.User)
	require.Empty(t, snap.Token)
	require.Empty(t, persisted(t, store))
}

func TestLogout_DuringVerificationWins(t *testing.T) {
	store := tokenstore.NewMemory()
	require.NoError(t, store.Save(context.Background(), "good"))

	var m *Manager
	api := &mockAuthAPI{meF: func(ctx context.Context, token string) (*orchestrator.User, error) {
		m.Logout(ctx)
		return meAccepting("good")(ctx, token)
	}}
	m = NewManager(api, store)

	snap := m.Resolve(context.Background())
	require.Equal(t, StateAnonymous, snap.State)
	require.Nil(t, snap.User)
	require.Empty(t, persisted(t, store))
}

func TestUserImpliesToken(t *testing.T) {
	store := tokenstore.NewMemory()
	api := &mockAuthAPI{
		meF: meAccepting("fresh"),
		loginF: func(string, string) (*orchestrator.TokenResponse, error) {
			return &orchestrator.TokenResponse{AccessToken: "fresh"}, nil
		},
	}
	m := NewManager(api, store)

	check := func() {
		snap := m.Snapshot()
		if snap.User != nil {
			require.NotEmpty(t, snap.Token)
			require.NotEmpty(t, persisted(t, store))
		}
	}
	check()
	m.Resolve(context.Background())
	check()
	_, err := m.Login(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	check()
	m.Logout(context.Background())
	check()
}

func TestSignup(t *testing.T) {
	api := &mockAuthAPI{signupF: func(req orchestrator.SignupRequest) (*orchestrator.User, error) {
		return &orchestrator.User{ID: "u9", Email: req.Email, FullName: req.FullName}, nil
	}}
	m := NewManager(api, tokenstore.NewMemory())

	tests := []struct {
		name  string
		req   SignupRequest
		field string
	}{
		{"bad email", SignupRequest{Email: "ana", Password: "longenough", FullName: "Ana"}, "email"},
		{"display name in email", SignupRequest{Email: "Ana <ana@example.com>", Password: "longenough", FullName: "Ana"}, "email"},
		{"short password", SignupRequest{Email: "ana@example.com", Password: "short", FullName: "Ana"}, "password"},
		{"short name", SignupRequest{Email: "ana@example.com", Password: "longenough", FullName: " A "}, "full_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Signup(context.Background(), tt.req)
			var ve *apperr.ValidationError
			require.True(t, errors.As(err, &ve))
			require.Equal(t, tt.field, ve.Field)
		})
	}
	require.Zero(t, api.signupCt)

	u, err := m.Signup(context.Background(), SignupRequest{Email: "ana@example.com", Password: "longenough", FullName: "Ana Lima"})
	require.NoError(t, err)
	require.Equal(t, "u9", u.ID)
	require.Equal(t, StateStart, m.State())
}
