package session

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Status is the derived loading phase of the session. It is computed from the
// token, the resolved identity, and in-flight fetch state, never stored.
type Status string

const (
	// StatusInitializing means Bootstrap has not completed yet.
	StatusInitializing Status = "initializing"
	// StatusResolving means an authoritative flow (bootstrap, login, or
	// identity refresh) is in flight.
	StatusResolving Status = "resolving"
	// StatusReady means the session settled: either authenticated with a
	// resolved identity, or anonymous.
	StatusReady Status = "ready"
)

// Identity is the server-confirmed profile of the authenticated principal.
// It is replaced wholesale on each successful fetch, never partially mutated.
type Identity struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Active    bool   `json:"is_active"`
	Superuser bool   `json:"is_superuser"`
}

// Snapshot is an immutable view of the session. Guards and consumers only
// ever observe snapshots; no error from the underlying flows escapes past it.
type Snapshot struct {
	Token     string
	Identity  *Identity
	Status    Status
	LastError string
}

// Authenticated reports whether the snapshot carries a credential. The
// identity may still be unresolved while a fetch is in flight.
func (s Snapshot) Authenticated() bool {
	return s.Token != ""
}

// CredentialStore is durable, origin-scoped persistence for the bearer token.
// Operations are synchronous and never fail the caller: when the backing
// medium is unavailable implementations degrade to non-persistent behavior.
type CredentialStore interface {
	Save(token string)
	Load() (string, bool)
	Clear()
}

// IdentityClient is the outbound surface the Manager drives. Client is the
// default implementation; tests substitute their own.
type IdentityClient interface {
	SetAuthHeader(token string)
	ClearAuthHeader()
	Login(ctx context.Context, username, password string) (string, error)
	FetchIdentity(ctx context.Context) (*Identity, error)
}

// InvalidationListener is notified when the session is torn down, either by
// an explicit logout or because the identity service rejected the credential.
// The navigation layer subscribes here to redirect to the login surface.
type InvalidationListener func(ctx context.Context, reason InvalidationReason)

// InvalidationReason says why the session was invalidated.
type InvalidationReason string

const (
	ReasonLogout  InvalidationReason = "logout"
	ReasonExpired InvalidationReason = "expired"
)

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
