// Package session keeps portal requests logged in. A Guard checks every page
// for proof of an active session and silently logs back in once when the
// cookies have expired.
package session

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tsquare/auth"
	"tsquare/transport"
)

var (
	// ErrThirdPartyExpired means a different single sign-on session expired;
	// logging in again here does not help.
	ErrThirdPartyExpired = errors.New("third-party login expired")
	// ErrLoggedOut means the session expired and no credentials are known.
	ErrLoggedOut = errors.New("logged out, please re-enter credentials")
	// ErrNetworkOrCredentials means the silent login failed.
	ErrNetworkOrCredentials = errors.New("network error or invalid credentials")
)

// IsNetworkError reports whether err belongs to the single network error
// signal shown to the user.
func IsNetworkError(err error) bool {
	return errors.Is(err, transport.ErrNetworkUnavailable) || errors.Is(err, ErrNetworkOrCredentials)
}

// Fetcher issues raw requests. *transport.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (string, error)
	Post(ctx context.Context, rawURL string, form url.Values) (string, error)
}

// Authenticator logs in. *auth.Authenticator implements it.
type Authenticator interface {
	Login(ctx context.Context, creds auth.Credentials) (auth.Result, error)
}

// Options holds the markers the guard inspects.
type Options struct {
	LoggedInMarker   string
	ThirdPartyMarker string
}

// DefaultOptions match the portal's templates.
var DefaultOptions = Options{
	LoggedInMarker:   auth.LoggedInMarker,
	ThirdPartyMarker: "SAMLRequest",
}

// Guard wraps a Fetcher with session checks.
type Guard struct {
	fetcher Fetcher
	authn   Authenticator
	sources []CredentialSource
	memory  *Memory
	opts    Options
	log     logrus.FieldLogger

	mu         sync.Mutex
	generation uint64
	active     int32
}

// New creates a Guard. Credentials are taken from the first source that has
// them. The first *Memory among sources receives the credentials of every
// successful login; one is added in front when there is none.
func New(f Fetcher, a Authenticator, sources []CredentialSource, opts Options, logger logrus.FieldLogger) *Guard {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.LoggedInMarker == "" {
		opts.LoggedInMarker = DefaultOptions.LoggedInMarker
	}
	g := &Guard{
		fetcher: f,
		authn:   a,
		opts:    opts,
		log:     logger.WithField("component", "session"),
	}
	for _, s := range sources {
		if m, ok := s.(*Memory); ok && g.memory == nil {
			g.memory = m
		}
	}
	if g.memory == nil {
		g.memory = &Memory{}
		sources = append([]CredentialSource{g.memory}, sources...)
	}
	g.sources = sources
	return g
}

// Memory returns the in-memory credential holder.
func (g *Guard) Memory() *Memory {
	return g.memory
}

// Reauthenticating reports whether a login is in flight. Callers hold off
// navigation while it is true.
func (g *Guard) Reauthenticating() bool {
	return atomic.LoadInt32(&g.active) == 1
}

// Fetch GETs rawURL and returns the page once it proves an active session.
func (g *Guard) Fetch(ctx context.Context, rawURL string) (string, error) {
	return g.guard(ctx, rawURL, func(ctx context.Context) (string, error) {
		return g.fetcher.Get(ctx, rawURL)
	})
}

// Post is Fetch for form submissions.
func (g *Guard) Post(ctx context.Context, rawURL string, form url.Values) (string, error) {
	return g.guard(ctx, rawURL, func(ctx context.Context) (string, error) {
		return g.fetcher.Post(ctx, rawURL, form)
	})
}

func (g *Guard) loggedIn(body string) bool {
	return strings.Contains(body, g.opts.LoggedInMarker)
}

func (g *Guard) guard(ctx context.Context, rawURL string, do func(context.Context) (string, error)) (string, error) {
	g.mu.Lock()
	seen := g.generation
	g.mu.Unlock()

	body, err := do(ctx)
	if err != nil {
		return "", err
	}
	if g.loggedIn(body) {
		return body, nil
	}
	if g.opts.ThirdPartyMarker != "" && strings.Contains(body, g.opts.ThirdPartyMarker) {
		g.log.WithField("url", rawURL).Debug("third-party session expired")
		return "", ErrThirdPartyExpired
	}

	g.log.WithField("url", rawURL).Debug("session expired, logging in again")
	if err := g.reauthenticate(ctx, seen); err != nil {
		return "", err
	}
	body, err = do(ctx)
	if err != nil {
		return "", err
	}
	if !g.loggedIn(body) {
		g.log.WithField("url", rawURL).Warn("still logged out after login")
		g.memory.Clear()
		return "", ErrNetworkOrCredentials
	}
	return body, nil
}

// reauthenticate logs in once. A login that completed while this caller
// waited for the lock stands in for its own.
func (g *Guard) reauthenticate(ctx context.Context, seen uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.generation != seen {
		return nil
	}
	atomic.StoreInt32(&g.active, 1)
	defer atomic.StoreInt32(&g.active, 0)

	creds, ok := g.credentials(ctx)
	if !ok {
		return ErrLoggedOut
	}
	res, err := g.authn.Login(ctx, creds)
	if err != nil || !res.OK() {
		g.log.WithError(err).WithField("state", res.State).Warn("silent login failed")
		g.memory.Clear()
		if err == nil {
			return ErrNetworkOrCredentials
		}
		return errors.Wrap(ErrNetworkOrCredentials, err.Error())
	}
	g.memory.Set(creds)
	g.generation++
	return nil
}

func (g *Guard) credentials(ctx context.Context) (auth.Credentials, bool) {
	for _, s := range g.sources {
		c, ok, err := s.Credentials(ctx)
		if err != nil {
			g.log.WithError(err).Debugf("credential source %T", s)
			continue
		}
		if ok {
			return c, true
		}
	}
	return auth.Credentials{}, false
}

// Login performs an explicit login and remembers creds on success.
func (g *Guard) Login(ctx context.Context, creds auth.Credentials) (auth.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	atomic.StoreInt32(&g.active, 1)
	defer atomic.StoreInt32(&g.active, 0)

	res, err := g.authn.Login(ctx, creds)
	if err != nil {
		return res, err
	}
	if res.OK() {
		g.memory.Set(creds)
		g.generation++
	}
	return res, nil
}

// Logout forgets the in-memory credentials, the authenticator's session
// state and every cookie.
func (g *Guard) Logout() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.memory.Clear()
	if s, ok := g.authn.(interface{ Session() *auth.SessionState }); ok {
		s.Session().Reset()
	}
	if r, ok := g.fetcher.(interface{ ResetCookies() error }); ok {
		return r.ResetCookies()
	}
	return nil
}
