// Package auth drives the CAS login handshake in front of the portal,
// including the two-factor detour.
package auth

import (
	"context"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tsquare/htmldoc"
)

// LoggedInMarker only appears on pages served to an authenticated session.
const LoggedInMarker = "Log Out"

// rejectedMarker is how CAS reports a wrong username or password.
const rejectedMarker = "Incorrect login"

var (
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrTwoFactorTimeout   = errors.New("two-factor prompt did not appear")
	ErrLoginPage          = errors.New("login page has no form tokens")
)

// Transport is the subset of the HTTP client the handshake needs.
type Transport interface {
	Get(ctx context.Context, rawURL string) (string, error)
	Post(ctx context.Context, rawURL string, form url.Values) (string, error)
}

// Options holds the login endpoint and the markers used to pick the form
// apart. They follow the server template, so they are configuration.
type Options struct {
	LoginURL        string
	Service         string
	FormMarker      string
	TicketMarker    string
	ExecutionMarker string
	TwoFactorMarker string
	MarkerLimit     int
	TwoFactorWait   time.Duration
	ApproveWait     time.Duration
}

// DefaultOptions match the Georgia Tech CAS deployment.
var DefaultOptions = Options{
	LoginURL:        "https://login.gatech.edu/cas/login",
	Service:         "https://t-square.gatech.edu/sakai-login-tool/container",
	FormMarker:      `action="`,
	TicketMarker:    `name="lt" value="`,
	ExecutionMarker: `name="execution" value="`,
	TwoFactorMarker: "duo_iframe",
	MarkerLimit:     htmldoc.DefaultLimit,
	TwoFactorWait:   5 * time.Second,
	ApproveWait:     90 * time.Second,
}

// Result is the terminal state of a login and, on success, the landing page.
// Page is empty when the two-factor path completed out of band.
type Result struct {
	State State
	Page  string
}

// OK reports whether the session should now be usable. A two-factor timeout
// counts: the user approves out of band and the next request proves it.
func (r Result) OK() bool {
	return r.State == Success || r.State == TimedOut
}

// Outcome is what LoginAsync delivers.
type Outcome struct {
	Result Result
	Err    error
}

// Authenticator logs a user into the portal. It is safe for concurrent use,
// though concurrent logins share one SessionState.
type Authenticator struct {
	transport Transport
	opts      Options
	twoFactor TwoFactor
	session   *SessionState
	log       logrus.FieldLogger
}

// New creates an Authenticator. twoFactor may be nil, in which case a
// two-factor challenge times out immediately.
func New(t Transport, opts Options, twoFactor TwoFactor, logger logrus.FieldLogger) *Authenticator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.MarkerLimit <= 0 {
		opts.MarkerLimit = htmldoc.DefaultLimit
	}
	if opts.TwoFactorWait <= 0 {
		opts.TwoFactorWait = DefaultOptions.TwoFactorWait
	}
	if opts.ApproveWait <= 0 {
		opts.ApproveWait = DefaultOptions.ApproveWait
	}
	return &Authenticator{
		transport: t,
		opts:      opts,
		twoFactor: twoFactor,
		session:   &SessionState{},
		log:       logger.WithField("component", "auth"),
	}
}

// Session exposes the authenticator's session state.
func (a *Authenticator) Session() *SessionState {
	return a.session
}

// LoginURL is the CAS login page for the configured service.
func (a *Authenticator) LoginURL() string {
	u, err := url.Parse(a.opts.LoginURL)
	if err != nil || a.opts.Service == "" {
		return a.opts.LoginURL
	}
	q := u.Query()
	q.Set("service", a.opts.Service)
	u.RawQuery = q.Encode()
	return u.String()
}

// LoginAsync runs Login on its own goroutine. The returned channel receives
// exactly one Outcome and is then closed, whatever happens inside Login.
func (a *Authenticator) LoginAsync(ctx context.Context, creds Credentials) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		var out Outcome
		defer func() {
			if r := recover(); r != nil {
				a.log.Errorf("login panicked: %v", r)
				out = Outcome{Result: Result{State: SubmittingCredentials}, Err: errors.Errorf("login panicked: %v", r)}
			}
			ch <- out
			close(ch)
		}()
		out.Result, out.Err = a.Login(ctx, creds)
	}()
	return ch
}

// Login performs the whole handshake. A nil error comes with a Result whose
// OK method is true.
func (a *Authenticator) Login(ctx context.Context, creds Credentials) (Result, error) {
	log := a.log.WithField("user", creds.Username)
	state := RequestingLoginPage
	log.Debug(state)

	loginURL := a.LoginURL()
	page, err := a.transport.Get(ctx, loginURL)
	if err != nil {
		return Result{State: state}, err
	}
	if strings.Contains(page, LoggedInMarker) {
		log.Debug("already authenticated")
		a.session.setUsername(creds.Username)
		return Result{State: Success, Page: page}, nil
	}

	path, ticket, execution, err := a.formTokens(page, loginURL)
	if err != nil {
		log.Warn(err)
		return Result{State: state}, err
	}

	state = SubmittingCredentials
	log.Debug(state)
	form := url.Values{
		"username": {creds.Username},
		"password": {creds.Password},
		"lt":       {ticket},
		"_eventId": {"submit"},
		"submit":   {"LOGIN"},
		"warn":     {"true"},
	}
	if execution != "" {
		form.Set("execution", execution)
	}
	body, err := a.transport.Post(ctx, path, form)
	if err != nil {
		return Result{State: state}, err
	}

	switch {
	case strings.Contains(body, rejectedMarker):
		log.Debug(IncorrectCredentials)
		return Result{State: IncorrectCredentials}, ErrInvalidCredentials
	case strings.Contains(body, a.opts.TwoFactorMarker):
		log.Debug(TwoFactorPending)
		res := a.twoFactorStep(ctx, body, log)
		if res.OK() {
			a.session.setUsername(creds.Username)
		}
		return res, nil
	}
	log.Debug(Success)
	a.session.setUsername(creds.Username)
	return Result{State: Success, Page: body}, nil
}

// formTokens pulls the form-post path, login ticket and execution value out
// of the login page. Fresh values replace the cached ones; when the page
// yields nothing the cached values from an earlier page are used.
func (a *Authenticator) formTokens(page, loginURL string) (path, ticket, execution string, err error) {
	limit := a.opts.MarkerLimit
	rawPath, okPath := htmldoc.Extract(page, a.opts.FormMarker, limit)
	rawTicket, okTicket := htmldoc.Extract(page, a.opts.TicketMarker, limit)
	rawExecution, _ := htmldoc.Extract(page, a.opts.ExecutionMarker, limit)

	if okPath && (okTicket || rawExecution != "") {
		path = html.UnescapeString(rawPath)
		ticket = html.UnescapeString(rawTicket)
		execution = html.UnescapeString(rawExecution)
		a.session.setTokens(path, ticket, execution)
	} else {
		path, ticket, execution = a.session.tokens()
		if path == "" {
			return "", "", "", ErrLoginPage
		}
		a.log.Debug("using cached login form tokens")
	}

	base, err := url.Parse(loginURL)
	if err != nil {
		return "", "", "", errors.Wrap(err, "parse login url")
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", "", "", errors.Wrapf(ErrLoginPage, "bad form path %q", path)
	}
	return base.ResolveReference(ref).String(), ticket, execution, nil
}

func (a *Authenticator) twoFactorStep(ctx context.Context, page string, log logrus.FieldLogger) Result {
	if a.twoFactor == nil {
		log.Warn(ErrTwoFactorTimeout)
		return Result{State: TimedOut}
	}

	wait, cancel := context.WithTimeout(ctx, a.opts.TwoFactorWait)
	frame, err := a.twoFactor.IframeURL(wait, page, a.LoginURL())
	cancel()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warnf("two-factor render: %s", err)
	}
	if frame == "" {
		log.Warn(ErrTwoFactorTimeout)
		return Result{State: TimedOut}
	}
	a.session.setTwoFactorURL(frame)

	approve, cancel := context.WithTimeout(ctx, a.opts.ApproveWait)
	defer cancel()
	if err := a.twoFactor.Approve(approve, a.session.TakeTwoFactorURL()); err != nil {
		log.Warnf("two-factor approval: %s", err)
	}
	return Result{State: Success}
}
