package session

import (
	"context"
	"net/url"
	"os"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"

	"tsquare/auth"
	"tsquare/secret"
	"tsquare/transport"
)

const (
	loginPage = `<html><form action="/cas/login"><input name="lt" value="LT-1"></form></html>`
	classPage = `<html><a href="/logout">Log Out</a><p>CS 1332 announcements</p></html>`
)

// fakePortal serves loginPage until loggedIn is set.
type fakePortal struct {
	mu       sync.Mutex
	loggedIn bool
	body     string
	gets     int
	posts    int
	resets   int
	err      error
}

func (f *fakePortal) page() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.body != "" {
		return f.body, nil
	}
	if f.loggedIn {
		return classPage, nil
	}
	return loginPage, nil
}

func (f *fakePortal) Get(ctx context.Context, rawURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return f.page()
}

func (f *fakePortal) Post(ctx context.Context, rawURL string, form url.Values) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts++
	return f.page()
}

func (f *fakePortal) ResetCookies() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.loggedIn = false
	return nil
}

type fakeAuth struct {
	portal *fakePortal
	result auth.Result
	err    error

	mu    sync.Mutex
	calls []auth.Credentials
}

func (a *fakeAuth) Login(ctx context.Context, c auth.Credentials) (auth.Result, error) {
	a.mu.Lock()
	a.calls = append(a.calls, c)
	a.mu.Unlock()
	if a.err == nil && a.result.OK() {
		a.portal.mu.Lock()
		a.portal.loggedIn = true
		a.portal.mu.Unlock()
	}
	return a.result, a.err
}

func newGuard(p *fakePortal, a *fakeAuth, sources ...CredentialSource) *Guard {
	logger, _ := test.NewNullLogger()
	return New(p, a, sources, DefaultOptions, logger)
}

var gburdell = auth.Credentials{Username: "gburdell3", Password: "hunter2"}

func TestGuardReauthenticatesOnce(t *testing.T) {
	p := &fakePortal{}
	a := &fakeAuth{portal: p, result: auth.Result{State: auth.Success}}
	mem := &Memory{}
	mem.Set(gburdell)
	g := newGuard(p, a, mem)

	body, err := g.Fetch(context.Background(), "https://t-square.gatech.edu/portal/pda/gt-1")
	if err != nil {
		t.Fatal(err)
	}
	if body != classPage {
		t.Errorf("Fetch returned %q, want the class page", body)
	}
	if len(a.calls) != 1 || a.calls[0] != gburdell {
		t.Errorf("logins = %+v, want one with cached credentials", a.calls)
	}
	if p.gets != 2 {
		t.Errorf("gets = %d, want 2", p.gets)
	}
}

func TestGuardActiveSession(t *testing.T) {
	p := &fakePortal{loggedIn: true}
	a := &fakeAuth{portal: p}
	g := newGuard(p, a)
	if _, err := g.Fetch(context.Background(), "u"); err != nil {
		t.Fatal(err)
	}
	if len(a.calls) != 0 {
		t.Errorf("logged in %d times with an active session", len(a.calls))
	}
}

func TestGuardThirdPartyExpired(t *testing.T) {
	p := &fakePortal{body: `<form><input name="SAMLRequest" value="x"></form>`}
	a := &fakeAuth{portal: p}
	mem := &Memory{}
	mem.Set(gburdell)
	g := newGuard(p, a, mem)

	_, err := g.Fetch(context.Background(), "u")
	if !errors.Is(err, ErrThirdPartyExpired) {
		t.Fatalf("err = %v, want ErrThirdPartyExpired", err)
	}
	if len(a.calls) != 0 {
		t.Error("tried to log in after a third-party expiry")
	}
}

func TestGuardNoCredentials(t *testing.T) {
	p := &fakePortal{}
	a := &fakeAuth{portal: p}
	g := newGuard(p, a, SecretSource{Store: &secret.Memory{}}, PromptSource{})

	if _, err := g.Fetch(context.Background(), "u"); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("err = %v, want ErrLoggedOut", err)
	}
}

func TestGuardSecretFallback(t *testing.T) {
	p := &fakePortal{}
	a := &fakeAuth{portal: p, result: auth.Result{State: auth.Success}}
	store := &secret.Memory{}
	store.Save(gburdell)
	g := newGuard(p, a, SecretSource{Store: store})

	if _, err := g.Fetch(context.Background(), "u"); err != nil {
		t.Fatal(err)
	}
	if c, ok, _ := g.Memory().Credentials(context.Background()); !ok || c != gburdell {
		t.Errorf("memory = %+v, %v after login from secret store", c, ok)
	}
}

func TestGuardLoginFailureClearsMemory(t *testing.T) {
	p := &fakePortal{}
	a := &fakeAuth{portal: p, result: auth.Result{State: auth.IncorrectCredentials}, err: auth.ErrInvalidCredentials}
	mem := &Memory{}
	mem.Set(gburdell)
	g := newGuard(p, a, mem)

	_, err := g.Fetch(context.Background(), "u")
	if !errors.Is(err, ErrNetworkOrCredentials) || !IsNetworkError(err) {
		t.Fatalf("err = %v, want ErrNetworkOrCredentials", err)
	}
	if _, ok, _ := mem.Credentials(context.Background()); ok {
		t.Error("memory credentials kept after failed login")
	}
	if len(a.calls) != 1 {
		t.Errorf("logins = %d, want 1", len(a.calls))
	}
}

func TestGuardStillLoggedOut(t *testing.T) {
	p := &fakePortal{}
	// Login claims success but the portal never accepts it.
	a := &fakeAuth{portal: &fakePortal{}, result: auth.Result{State: auth.TimedOut}}
	mem := &Memory{}
	mem.Set(gburdell)
	g := newGuard(p, a, mem)

	if _, err := g.Fetch(context.Background(), "u"); !errors.Is(err, ErrNetworkOrCredentials) {
		t.Fatalf("err = %v, want ErrNetworkOrCredentials", err)
	}
	if len(a.calls) != 1 {
		t.Errorf("logins = %d, want exactly 1", len(a.calls))
	}
}

func TestGuardTransportError(t *testing.T) {
	p := &fakePortal{err: errors.Wrap(transport.ErrNetworkUnavailable, "GET u")}
	a := &fakeAuth{portal: p}
	g := newGuard(p, a)
	_, err := g.Post(context.Background(), "u", url.Values{"a": {"b"}})
	if !IsNetworkError(err) {
		t.Fatalf("err = %v, want a network error", err)
	}
	if p.posts != 1 {
		t.Errorf("posts = %d, want 1", p.posts)
	}
}

func TestGuardConcurrentExpiryLogsInOnce(t *testing.T) {
	p := &fakePortal{}
	a := &fakeAuth{portal: p, result: auth.Result{State: auth.Success}}
	mem := &Memory{}
	mem.Set(gburdell)
	g := newGuard(p, a, mem)

	// Every fetch sees the login page before any login happens.
	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = g.Fetch(context.Background(), "u")
		}(i)
	}
	close(start)
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("fetch %d: %v", i, err)
		}
	}
	if len(a.calls) < 1 || len(a.calls) > len(errs) {
		t.Errorf("logins = %d", len(a.calls))
	}
	if g.Reauthenticating() {
		t.Error("Reauthenticating still set")
	}
}

func TestGuardLoginLogout(t *testing.T) {
	p := &fakePortal{}
	authn := auth.New(nil, auth.DefaultOptions, nil, nil)
	g := New(p, authn, nil, DefaultOptions, nil)
	if err := g.Logout(); err != nil {
		t.Fatal(err)
	}
	if p.resets != 1 {
		t.Errorf("cookie resets = %d, want 1", p.resets)
	}

	a := &fakeAuth{portal: p, result: auth.Result{State: auth.Success, Page: classPage}}
	g = newGuard(p, a)
	res, err := g.Login(context.Background(), gburdell)
	if err != nil || res.Page != classPage {
		t.Fatalf("Login = %+v, %v", res, err)
	}
	if c, ok, _ := g.Memory().Credentials(context.Background()); !ok || c != gburdell {
		t.Error("explicit login not remembered")
	}
	g.Logout()
	if _, ok, _ := g.Memory().Credentials(context.Background()); ok {
		t.Error("credentials survived Logout")
	}
}

func TestPromptSourceWithoutTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	_, ok, err := PromptSource{In: r}.Credentials(context.Background())
	if ok || err != nil {
		t.Errorf("Credentials() = %v, %v on a pipe", ok, err)
	}
}
