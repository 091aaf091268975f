package auth

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/marcogenualdo/hrhub-coa/internal/session"
	"github.com/marcogenualdo/hrhub-coa/internal/store"
)

// Manager owns the process's single session. It reuses a session the
// portal still accepts and logs in again only when it does not.
type Manager struct {
	mu sync.Mutex

	store         store.Store
	prober        Prober
	authenticator Authenticator
	defaults      Credentials
	authCookie    string
	logger        *slog.Logger

	state     *session.State
	lastLogin time.Time
}

func NewManager(st store.Store, prober Prober, authenticator Authenticator, defaults Credentials, authCookie string, logger *slog.Logger) *Manager {
	return &Manager{
		store:         st,
		prober:        prober,
		authenticator: authenticator,
		defaults:      defaults,
		authCookie:    authCookie,
		logger:        logger,
	}
}

// EnsureAuthenticated returns a state the portal accepts, logging in with
// creds (or the configured defaults) when no stored state is valid.
func (m *Manager) EnsureAuthenticated(ctx context.Context, creds Credentials) (*session.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ensure(ctx, creds)
}

// WithSession runs fn with an authenticated state while holding the
// manager lock. If fn derives the employee id the state is persisted again.
func (m *Manager) WithSession(ctx context.Context, creds Credentials, fn func(ctx context.Context, s *session.State) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.ensure(ctx, creds)
	if err != nil {
		return err
	}

	before := s.EmployeeIDValue()
	fnErr := fn(ctx, s)

	if after := s.EmployeeIDValue(); after != "" && after != before {
		m.persist(ctx, s)
	}

	return fnErr
}

// Invalidate marks the current state stale so the next call probes and,
// if needed, logs in again.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != nil {
		m.state.Invalidate()
	}
}

// Status is a point-in-time view of the session for health reporting.
type Status struct {
	Populated       bool      `json:"populated"`
	Stale           bool      `json:"stale"`
	EmployeeIDKnown bool      `json:"employee_id_known"`
	LastLogin       time.Time `json:"last_login,omitzero"`
	Store           string    `json:"store"`
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Status{
		Populated:       m.state.Populated(m.authCookie),
		Stale:           m.state.Stale(),
		EmployeeIDKnown: m.state.EmployeeIDValue() != "",
		LastLogin:       m.lastLogin,
		Store:           m.store.Type(),
	}
}

func (m *Manager) ensure(ctx context.Context, creds Credentials) (*session.State, error) {
	var rejected map[string]string
	if m.state.Populated(m.authCookie) && !m.state.Stale() {
		if m.valid(ctx, m.state, "memory") {
			return m.state, nil
		}
		m.state.Invalidate()
		rejected = m.state.Cookies
	}

	if loaded := m.load(ctx); loaded != nil {
		switch {
		case rejected != nil && maps.Equal(loaded.Cookies, rejected):
			m.logger.Debug("stored session is the one just rejected", "store", m.store.Type())
		case m.valid(ctx, loaded, "store"):
			m.state = loaded
			return m.state, nil
		}
	}

	return m.login(ctx, creds.Or(m.defaults))
}

func (m *Manager) load(ctx context.Context) *session.State {
	s, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.logger.Debug("no stored session", "store", m.store.Type())
		} else {
			m.logger.Warn("failed to load stored session", "store", m.store.Type(), "error", err)
		}
		return nil
	}

	if !s.Populated(m.authCookie) {
		m.logger.Debug("stored session is empty", "store", m.store.Type())
		return nil
	}

	return s
}

func (m *Manager) valid(ctx context.Context, s *session.State, source string) bool {
	ok, err := m.prober.Probe(ctx, s)
	if err != nil {
		m.logger.Warn("session probe failed", "source", source, "error", err)
		return false
	}
	if !ok {
		m.logger.Info("session no longer accepted by portal", "source", source)
		return false
	}

	m.logger.Debug("reusing session", "source", source)
	return true
}

func (m *Manager) login(ctx context.Context, creds Credentials) (*session.State, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	s, err := m.authenticator.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}

	m.state = s
	m.lastLogin = s.AuthenticatedAt()
	if m.lastLogin.IsZero() {
		m.lastLogin = time.Now()
	}
	m.persist(ctx, s)

	return s, nil
}

func (m *Manager) persist(ctx context.Context, s *session.State) {
	if err := m.store.Save(ctx, s); err != nil {
		m.logger.Error("failed to persist session", "store", m.store.Type(), "error", err)
		return
	}
	m.logger.Debug("persisted session", "store", m.store.Type())
}
