package session

import (
	"context"
	"sync"
	"time"
)

// ManagerOption customizes Manager construction.
type ManagerOption func(*Manager)

// WithLogger overrides the Manager logger.
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithActivitySink sets the ActivitySink used to publish session events.
func WithActivitySink(sink ActivitySink) ManagerOption {
	return func(m *Manager) {
		m.activitySink = normalizeActivitySink(sink)
	}
}

// WithInvalidationListener subscribes a listener to session teardown. The
// navigation layer registers here to redirect to the login surface; the
// Manager itself carries no navigation concerns.
func WithInvalidationListener(listener InvalidationListener) ManagerOption {
	return func(m *Manager) {
		if listener != nil {
			m.invalidationListeners = append(m.invalidationListeners, listener)
		}
	}
}

// Manager is the session state machine. It orchestrates bootstrap, login,
// identity refresh, and logout, and owns the token/identity/status state that
// guards and consumers observe through Snapshot.
//
// All failures settle the session to the anonymous Ready sub-state
// (token absent, LastError set); no error escapes to callers. Overlapping
// flows follow last-write-wins: every authoritative flow bumps a generation
// counter and an in-flight response from an earlier generation is discarded
// rather than allowed to overwrite newer state.
type Manager struct {
	store                 CredentialStore
	client                IdentityClient
	logger                Logger
	now                   func() time.Time
	activitySink          ActivitySink
	invalidationListeners []InvalidationListener

	mu        sync.Mutex
	token     string
	identity  *Identity
	lastError string
	booted    bool
	inflight  int
	gen       uint64
}

// NewManager returns a Manager wired to the given store and client.
func NewManager(store CredentialStore, client IdentityClient, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:        store,
		client:       client,
		logger:       defLogger{},
		now:          time.Now,
		activitySink: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// New builds a Manager plus its Client from a Config. The credential store
// defaults to a FileStore under stateDir scoped to the service origin.
func New(cfg Config, stateDir string, opts ...ManagerOption) (*Manager, *Client, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, nil, err
	}

	client, err := NewClient(cfg.GetBaseURL())
	if err != nil {
		return nil, nil, err
	}

	origin := cfg.GetOrigin()
	if origin == "" {
		origin = client.Origin()
	}

	store := NewFileStore(stateDir, origin)
	return NewManager(store, client, opts...), client, nil
}

// Status derives the current loading phase.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	switch {
	case m.inflight > 0:
		return StatusResolving
	case !m.booted:
		return StatusInitializing
	default:
		return StatusReady
	}
}

// Snapshot returns an immutable view of the session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Token:     m.token,
		Status:    m.statusLocked(),
		LastError: m.lastError,
	}
	if m.identity != nil {
		identity := *m.identity
		snap.Identity = &identity
	}
	return snap
}

// Token returns the current bearer credential, if any.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

// Identity returns the resolved identity, if any.
func (m *Manager) Identity() (*Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return nil, false
	}
	identity := *m.identity
	return &identity, true
}

// LastError returns the most recent session-level failure message.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// Bootstrap populates the session from the credential store and reconciles it
// with the identity service. It is meant to run exactly once at application
// start, before the route guard makes its first decision; repeated calls are
// no-ops. The session reaches StatusReady when Bootstrap returns.
func (m *Manager) Bootstrap(ctx context.Context) {
	m.mu.Lock()
	if m.booted {
		m.mu.Unlock()
		return
	}
	m.booted = true

	token, ok := m.store.Load()
	if !ok {
		m.token = ""
		m.identity = nil
		m.client.ClearAuthHeader()
		m.mu.Unlock()

		m.record(ctx, ActivityEvent{
			EventType: ActivityEventBootstrap,
			Reason:    "anonymous",
		})
		return
	}

	m.token = token
	m.client.SetAuthHeader(token)

	m.gen++
	gen := m.gen
	m.inflight++
	m.mu.Unlock()

	if exp, isJWT := TokenExpiry(token); isJWT && exp.Before(m.now()) {
		m.logger.Debug("stored token expired at %s, verifying with identity service", exp.Format(time.RFC3339))
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventBootstrap,
		Reason:    "stored-credential",
	})

	identity, err := m.client.FetchIdentity(ctx)
	m.settleIdentity(ctx, gen, identity, err)
}

// Login exchanges credentials for a token, persists it, and resolves the
// identity before returning. It reports success; on failure the session is
// reset to anonymous and LastError carries the server detail (or a generic
// message when the server gave none).
//
// Overlapping Login calls may proceed concurrently; the last call wins and
// earlier in-flight outcomes are discarded.
func (m *Manager) Login(ctx context.Context, username, password string) bool {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.inflight++
	m.mu.Unlock()

	token, err := m.client.Login(ctx, username, password)
	if err != nil {
		m.logger.Info("login rejected: %v", err)

		m.mu.Lock()
		m.inflight--
		m.booted = true
		superseded := gen != m.gen
		if !superseded {
			m.clearLocked()
			m.lastError = ErrorMessage(err, ErrInvalidCredentials.Message)
		}
		m.mu.Unlock()

		if !superseded {
			m.record(ctx, ActivityEvent{
				EventType: ActivityEventLoginFailure,
				Reason:    ErrorMessage(err, ErrInvalidCredentials.Message),
			})
		}
		return false
	}

	m.mu.Lock()
	if gen != m.gen {
		m.inflight--
		m.mu.Unlock()
		return false
	}
	m.token = token
	m.store.Save(token)
	m.client.SetAuthHeader(token)
	m.mu.Unlock()

	identity, err := m.client.FetchIdentity(ctx)

	m.mu.Lock()
	m.inflight--
	m.booted = true
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}

	if err != nil {
		m.clearLocked()
		m.lastError = ErrorMessage(err, ErrSessionExpired.Message)
		m.mu.Unlock()

		m.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Reason:    ErrorMessage(err, ErrSessionExpired.Message),
		})
		return false
	}

	m.identity = identity
	m.lastError = ""
	userID := identity.ID
	m.mu.Unlock()

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    userID,
	})
	return true
}

// RefreshIdentity re-resolves the profile behind the current token. Without a
// token it only clears the identity. Any fetch failure, of any kind, is
// treated as an invalid session and triggers logout-equivalent cleanup
// (fail closed); the failure is never retried here.
func (m *Manager) RefreshIdentity(ctx context.Context) {
	m.mu.Lock()
	if m.token == "" {
		m.identity = nil
		m.mu.Unlock()
		return
	}

	m.gen++
	gen := m.gen
	m.inflight++
	m.mu.Unlock()

	identity, err := m.client.FetchIdentity(ctx)
	m.settleIdentity(ctx, gen, identity, err)
}

// Logout clears the credential store, the session state, and the adapter's
// auth header, then notifies invalidation listeners. Idempotent.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	// invalidate any in-flight identity responses
	m.gen++
	hadToken := m.token != ""
	m.clearLocked()
	m.lastError = ""
	m.booted = true
	m.mu.Unlock()

	if hadToken {
		m.record(ctx, ActivityEvent{EventType: ActivityEventLogout})
	}
	m.notifyInvalidated(ctx, ReasonLogout)
}

// settleIdentity commits the outcome of an identity fetch, unless the session
// moved on: a response from a superseded generation, or one arriving after
// the token was torn down, is discarded without touching state.
func (m *Manager) settleIdentity(ctx context.Context, gen uint64, identity *Identity, err error) {
	m.mu.Lock()
	m.inflight--

	if gen != m.gen || m.token == "" {
		m.mu.Unlock()
		return
	}

	if err != nil {
		m.logger.Info("identity fetch failed, invalidating session: %v", err)
		m.clearLocked()
		m.lastError = ErrorMessage(err, ErrSessionExpired.Message)
		reason := m.lastError
		m.mu.Unlock()

		m.record(ctx, ActivityEvent{
			EventType: ActivityEventInvalidated,
			Reason:    reason,
		})
		m.notifyInvalidated(ctx, ReasonExpired)
		return
	}

	m.identity = identity
	m.lastError = ""
	m.mu.Unlock()
}

// clearLocked resets the session to anonymous. Callers hold m.mu and decide
// what happens to lastError.
func (m *Manager) clearLocked() {
	m.store.Clear()
	m.token = ""
	m.identity = nil
	m.client.ClearAuthHeader()
}

func (m *Manager) notifyInvalidated(ctx context.Context, reason InvalidationReason) {
	for _, listener := range m.invalidationListeners {
		listener(ctx, reason)
	}
}

func (m *Manager) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}

	sink := normalizeActivitySink(m.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("session activity sink error: %v", err)
	}
}
