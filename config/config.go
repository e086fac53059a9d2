// Package config loads tsquare's settings from a YAML file and TSQUARE_
// environment variables.
package config

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"tsquare/auth"
	"tsquare/portal"
	"tsquare/store"
	"tsquare/transport"
)

const appName = "tsquare"

// Config is the typed view of the settings.
type Config struct {
	Portal     portal.Options
	Workers    int
	Limit      int
	ThirdParty string

	Auth           auth.Options
	HeadlessChrome bool

	Transport transport.Options

	StoreBackend string
	StorePath    string
	Redis        store.RedisOptions

	SecretPath string

	// File is the config file that was read, "" if none was.
	File string
}

// DefaultPath is config.yaml in the user's config directory.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("portal.base_url", portal.DefaultOptions.BaseURL)
	v.SetDefault("portal.root_path", portal.DefaultOptions.RootPath)
	v.SetDefault("portal.timezone", "America/New_York")
	v.SetDefault("portal.third_party_marker", "SAMLRequest")
	v.SetDefault("portal.announcement_limit", 50)
	v.SetDefault("portal.workers", 6)
	v.SetDefault("portal.prefs.form", portal.DefaultOptions.Prefs.Form)
	v.SetDefault("portal.prefs.show_button", portal.DefaultOptions.Prefs.ShowButton)
	v.SetDefault("portal.prefs.hide_button", portal.DefaultOptions.Prefs.HideButton)

	v.SetDefault("auth.login_url", auth.DefaultOptions.LoginURL)
	v.SetDefault("auth.service", "")
	v.SetDefault("auth.form_marker", auth.DefaultOptions.FormMarker)
	v.SetDefault("auth.ticket_marker", auth.DefaultOptions.TicketMarker)
	v.SetDefault("auth.execution_marker", auth.DefaultOptions.ExecutionMarker)
	v.SetDefault("auth.two_factor_marker", auth.DefaultOptions.TwoFactorMarker)
	v.SetDefault("auth.marker_limit", auth.DefaultOptions.MarkerLimit)
	v.SetDefault("auth.two_factor_wait", auth.DefaultOptions.TwoFactorWait)
	v.SetDefault("auth.approve_wait", auth.DefaultOptions.ApproveWait)
	v.SetDefault("auth.headless_chrome", true)

	v.SetDefault("transport.user_agent", transport.MobileUserAgent)
	v.SetDefault("transport.get_attempts", transport.DefaultRetryPolicy.GetAttempts)
	v.SetDefault("transport.post_attempts", transport.DefaultRetryPolicy.PostAttempts)
	v.SetDefault("transport.timeout", 30*time.Second)

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.path", "")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", appName+":")

	v.SetDefault("secret.path", "")
}

// Load reads path, or DefaultPath when path is empty. A missing file leaves
// the defaults in place.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(appName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	file := path
	if err := v.ReadInConfig(); err != nil {
		if !notExist(err) {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		file = ""
	}
	return decode(v, file)
}

func notExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

func decode(v *viper.Viper, file string) (*Config, error) {
	loc, err := time.LoadLocation(v.GetString("portal.timezone"))
	if err != nil {
		return nil, errors.Wrap(err, "portal.timezone")
	}
	backend := strings.ToLower(v.GetString("store.backend"))
	if backend != "file" && backend != "redis" {
		return nil, errors.Errorf("store.backend: unknown backend %q", backend)
	}

	c := &Config{
		Portal: portal.Options{
			BaseURL:  v.GetString("portal.base_url"),
			RootPath: v.GetString("portal.root_path"),
			Location: loc,
			Prefs: portal.PrefsForm{
				Form:       v.GetString("portal.prefs.form"),
				ShowButton: v.GetString("portal.prefs.show_button"),
				HideButton: v.GetString("portal.prefs.hide_button"),
			},
		},
		Workers:    v.GetInt("portal.workers"),
		Limit:      v.GetInt("portal.announcement_limit"),
		ThirdParty: v.GetString("portal.third_party_marker"),
		Auth: auth.Options{
			LoginURL:        v.GetString("auth.login_url"),
			Service:         v.GetString("auth.service"),
			FormMarker:      v.GetString("auth.form_marker"),
			TicketMarker:    v.GetString("auth.ticket_marker"),
			ExecutionMarker: v.GetString("auth.execution_marker"),
			TwoFactorMarker: v.GetString("auth.two_factor_marker"),
			MarkerLimit:     v.GetInt("auth.marker_limit"),
			TwoFactorWait:   v.GetDuration("auth.two_factor_wait"),
			ApproveWait:     v.GetDuration("auth.approve_wait"),
		},
		HeadlessChrome: v.GetBool("auth.headless_chrome"),
		Transport: transport.Options{
			UserAgent: v.GetString("transport.user_agent"),
			Retry: transport.RetryPolicy{
				GetAttempts:  v.GetInt("transport.get_attempts"),
				PostAttempts: v.GetInt("transport.post_attempts"),
			},
			Timeout: v.GetDuration("transport.timeout"),
		},
		StoreBackend: backend,
		StorePath:    v.GetString("store.path"),
		Redis: store.RedisOptions{
			Addr:     v.GetString("store.redis.addr"),
			Password: v.GetString("store.redis.password"),
			DB:       v.GetInt("store.redis.db"),
			Prefix:   v.GetString("store.redis.prefix"),
		},
		SecretPath: v.GetString("secret.path"),
		File:       file,
	}
	if c.Auth.Service == "" {
		c.Auth.Service = strings.TrimSuffix(c.Portal.BaseURL, "/") + "/" + strings.TrimPrefix(c.Portal.RootPath, "/")
	}
	if c.StorePath == "" {
		if c.StorePath, err = xdg.StateFile(filepath.Join(appName, "overrides.json")); err != nil {
			return nil, errors.Wrap(err, "store.path")
		}
	}
	if c.SecretPath == "" {
		if c.SecretPath, err = xdg.DataFile(filepath.Join(appName, "credentials.json")); err != nil {
			return nil, errors.Wrap(err, "secret.path")
		}
	}
	return c, nil
}
