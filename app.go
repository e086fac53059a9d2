package main

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"tsquare/auth"
	"tsquare/config"
	"tsquare/grades"
	"tsquare/portal"
	"tsquare/secret"
	"tsquare/session"
	"tsquare/store"
	"tsquare/transport"
)

// usernameKey is the session value naming the logged in user.
const usernameKey = "username"

// app wires the portal client together for one command.
type app struct {
	cfg     *config.Config
	client  *transport.Client
	authn   *auth.Authenticator
	guard   *session.Guard
	scraper *portal.Scraper
	secrets secret.Store

	kv      store.KV
	closeKV func() error
	global  *store.Overrides
	ov      *store.Overrides
}

func openStore(cfg *config.Config) (store.KV, func() error, error) {
	switch cfg.StoreBackend {
	case "redis":
		r, err := store.NewRedis(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return store.NewFile(cfg.StorePath), func() error { return nil }, nil
	}
}

func newApp(cfg *config.Config, debug bool) (*app, error) {
	logger := log.StandardLogger()

	topts := cfg.Transport
	topts.Debug = debug
	client, err := transport.New(topts, logger)
	if err != nil {
		return nil, err
	}

	twoFactor := auth.NewChromeTwoFactor(logger)
	twoFactor.FrameMarker = `id="` + cfg.Auth.TwoFactorMarker + `"`
	twoFactor.Headless = cfg.HeadlessChrome
	twoFactor.Cookies = client.Cookies
	authn := auth.New(client, cfg.Auth, twoFactor, logger)

	kv, closeKV, err := openStore(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "opening override store")
	}

	a := &app{
		cfg:     cfg,
		client:  client,
		authn:   authn,
		secrets: secret.NewFile(cfg.SecretPath),
		kv:      kv,
		closeKV: closeKV,
		global:  store.NewOverrides(kv, ""),
	}
	username := a.username()
	a.ov = store.NewOverrides(kv, username)

	a.guard = session.New(client, authn, []session.CredentialSource{
		&session.Memory{},
		session.SecretSource{Store: a.secrets},
		session.PromptSource{In: os.Stdin, Out: os.Stderr, Username: username},
	}, session.Options{
		LoggedInMarker:   auth.LoggedInMarker,
		ThirdPartyMarker: cfg.ThirdParty,
	}, logger)
	a.scraper = portal.NewScraper(a.guard, cfg.Portal, a.ov, logger)
	log.WithFields(log.Fields{"user": username, "store": cfg.StoreBackend, "config": cfg.File}).Debug("app ready")
	return a, nil
}

func (a *app) Close() {
	if err := a.closeKV(); err != nil {
		log.WithError(err).Warn("closing override store")
	}
}

// username is the last user to log in, from the saved credentials or the
// session.
func (a *app) username() string {
	if c, err := a.secrets.Load(); err == nil && c.Username != "" {
		return c.Username
	}
	var u string
	if ok, err := a.global.SessionValue(usernameKey, &u); err != nil {
		log.WithError(err).Debug("reading session user")
	} else if ok {
		return u
	}
	return ""
}

// login logs in explicitly and, when remember is set, saves the credentials.
func (a *app) login(ctx context.Context, creds auth.Credentials, remember bool) (auth.Result, error) {
	res, err := a.guard.Login(ctx, creds)
	if err != nil {
		return res, err
	}
	if !res.OK() {
		return res, errors.Errorf("login ended in state %s", res.State)
	}
	if remember {
		if err := a.secrets.Save(creds); err != nil {
			return res, errors.Wrap(err, "saving credentials")
		}
	}
	if err := a.global.SetSessionValue(usernameKey, creds.Username); err != nil {
		return res, err
	}
	a.ov = store.NewOverrides(a.kv, creds.Username)
	a.scraper = portal.NewScraper(a.guard, a.cfg.Portal, a.ov, log.StandardLogger())
	return res, nil
}

// logout forgets the session, the saved credentials and every
// session-scoped value.
func (a *app) logout() error {
	if err := a.guard.Logout(); err != nil {
		return err
	}
	if err := a.secrets.Clear(); err != nil {
		return errors.Wrap(err, "clearing credentials")
	}
	return a.global.ClearSession()
}

// book loads a class's gradebook with the user's overrides applied.
func (a *app) book(ctx context.Context, c portal.Class) (*grades.Book, error) {
	fresh, err := a.scraper.Gradebook(ctx, c)
	if err != nil {
		return nil, err
	}
	b := grades.NewBook(c.ID, a.ov.Class(c.ID), log.StandardLogger())
	if err := b.Reload(fresh); err != nil {
		return nil, err
	}
	return b, nil
}

// userError turns session and transport failures into the messages shown
// on the command line.
func userError(err error) error {
	switch {
	case err == nil:
		return nil
	case session.IsNetworkError(err):
		log.WithError(err).Debug("network error")
		return errors.New("network error, check your connection and try again")
	case errors.Is(err, session.ErrThirdPartyExpired):
		return errors.New("your single sign-on session expired, log in through the browser and try again")
	case errors.Is(err, session.ErrLoggedOut):
		return errors.New("logged out, run `tsquare login` first")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return errors.New("incorrect username or password")
	}
	return err
}

func matchClass(classes []portal.Class, ref string) (portal.Class, bool) {
	ref = strings.TrimSpace(ref)
	for _, c := range classes {
		if strings.EqualFold(c.ID, ref) || strings.EqualFold(c.ShortName, ref) || strings.EqualFold(c.Name, ref) {
			return c, true
		}
	}
	return portal.Class{}, false
}
