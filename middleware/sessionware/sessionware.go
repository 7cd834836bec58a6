// Package sessionware gates go-router routes behind a client-resident
// session. It re-evaluates the session snapshot on every request: while the
// session is settling it renders an interstitial, anonymous requests are
// redirected to the login surface with the original URL preserved as a
// return target, and configured public routes bypass the gate entirely.
package sessionware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-router"
	"github.com/goliatone/go-session"
)

// SessionReader exposes the current session state. *session.Manager
// implements it.
type SessionReader interface {
	Snapshot() session.Snapshot
}

// Decision is the guard's verdict for a navigation.
type Decision int

const (
	// DecisionAllow renders the protected content.
	DecisionAllow Decision = iota
	// DecisionPending renders the authentication-pending interstitial while
	// the session has not settled yet.
	DecisionPending
	// DecisionResolving renders the distinct interstitial for the transient
	// window where a token is present but the identity is not yet resolved,
	// avoiding a flash of unauthenticated content.
	DecisionResolving
	// DecisionRedirect sends the navigation to the login surface.
	DecisionRedirect
)

type Config struct {
	// Session supplies the snapshot the guard decides on. Required.
	Session SessionReader
	// Filter skips the guard for matching requests.
	Filter func(router.Context) bool
	// LoginPath is the login surface. Defaults to "/login".
	LoginPath string
	// ReturnToParam carries the originally requested URL. Defaults to "next".
	ReturnToParam string
	// PublicRoutes are path prefixes exempt from the gate.
	PublicRoutes []string
	// ContextKey is the router locals key for the resolved identity.
	// Defaults to "identity".
	ContextKey string
	// PendingHandler renders the authentication-pending interstitial.
	PendingHandler router.HandlerFunc
	// ResolvingHandler renders the resolving-identity interstitial.
	ResolvingHandler router.HandlerFunc
}

// Decide is the pure guard policy: given the navigation path and a session
// snapshot, pick a rendering. Hosts that do not route through go-router can
// consume it directly.
func Decide(path string, snap session.Snapshot, publicRoutes []string) Decision {
	if isPublic(path, publicRoutes) {
		return DecisionAllow
	}

	if snap.Status != session.StatusReady {
		if snap.Authenticated() && snap.Identity == nil {
			return DecisionResolving
		}
		return DecisionPending
	}

	if !snap.Authenticated() {
		return DecisionRedirect
	}

	if snap.Identity == nil {
		return DecisionResolving
	}

	return DecisionAllow
}

func isPublic(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// New returns the guard middleware.
func New(config ...Config) router.MiddlewareFunc {
	cfg := configDefault(config...)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			snap := cfg.Session.Snapshot()

			switch Decide(ctx.Path(), snap, cfg.PublicRoutes) {
			case DecisionPending:
				return cfg.PendingHandler(ctx)
			case DecisionResolving:
				return cfg.ResolvingHandler(ctx)
			case DecisionRedirect:
				return redirectToLogin(ctx, cfg)
			}

			if snap.Identity != nil {
				ctx.Locals(cfg.ContextKey, snap.Identity)
				ctx.SetContext(session.WithIdentity(ctx.Context(), snap.Identity))
			}

			return ctx.Next()
		}
	}
}

// LoginURL builds the login redirect target carrying original as the return
// target.
func LoginURL(loginPath, returnToParam, original string) string {
	if original == "" {
		return loginPath
	}
	return loginPath + "?" + returnToParam + "=" + url.QueryEscape(original)
}

func redirectToLogin(ctx router.Context, cfg Config) error {
	target := LoginURL(cfg.LoginPath, cfg.ReturnToParam, ctx.OriginalURL())

	statusCode := http.StatusSeeOther
	if ctx.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return ctx.Redirect(target, statusCode)
}

func configDefault(config ...Config) Config {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Session == nil {
		panic("sessionware: Config.Session is required")
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.ReturnToParam == "" {
		cfg.ReturnToParam = "next"
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = "identity"
	}
	if cfg.PendingHandler == nil {
		cfg.PendingHandler = interstitial("authenticating, retry shortly")
	}
	if cfg.ResolvingHandler == nil {
		cfg.ResolvingHandler = interstitial("resolving identity, retry shortly")
	}

	return cfg
}

func interstitial(message string) router.HandlerFunc {
	return func(ctx router.Context) error {
		ctx.SetHeader("Retry-After", "1")
		return ctx.Status(http.StatusServiceUnavailable).SendString(message)
	}
}
