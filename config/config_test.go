package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tsquare/auth"
	"tsquare/portal"
	"tsquare/transport"
)

// paths keeps tests away from the real xdg directories.
func paths(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("TSQUARE_STORE_PATH", filepath.Join(dir, "overrides.json"))
	t.Setenv("TSQUARE_SECRET_PATH", filepath.Join(dir, "credentials.json"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := paths(t)
	c, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if c.File != "" {
		t.Errorf("File = %q for a missing file", c.File)
	}
	if c.Portal.BaseURL != portal.DefaultOptions.BaseURL || c.Portal.Location.String() != "America/New_York" {
		t.Errorf("portal = %+v", c.Portal)
	}
	if c.Auth.Service != "https://t-square.gatech.edu/portal/pda/" {
		t.Errorf("service = %q", c.Auth.Service)
	}
	want := transport.Options{
		UserAgent: transport.MobileUserAgent,
		Retry:     transport.DefaultRetryPolicy,
		Timeout:   30 * time.Second,
	}
	if diff := cmp.Diff(want, c.Transport); diff != "" {
		t.Errorf("transport (-want +got):\n%s", diff)
	}
	if c.Auth.TwoFactorWait != auth.DefaultOptions.TwoFactorWait || c.Auth.MarkerLimit != 300 {
		t.Errorf("auth = %+v", c.Auth)
	}
	if c.Workers != 6 || c.Limit != 50 || c.StoreBackend != "file" || c.ThirdParty != "SAMLRequest" {
		t.Errorf("config = %+v", c)
	}
	if c.StorePath != filepath.Join(dir, "overrides.json") {
		t.Errorf("store path = %q", c.StorePath)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := paths(t)
	path := filepath.Join(dir, "config.yaml")
	yaml := `portal:
  base_url: https://portal.example.edu
  timezone: UTC
  workers: 2
  prefs:
    show_button: _id50
auth:
  approve_wait: 2m
transport:
  get_attempts: 5
store:
  backend: redis
  redis:
    db: 3
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TSQUARE_TRANSPORT_POST_ATTEMPTS", "2")
	t.Setenv("TSQUARE_PORTAL_ANNOUNCEMENT_LIMIT", "10")

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.File != path {
		t.Errorf("File = %q", c.File)
	}
	if c.Portal.BaseURL != "https://portal.example.edu" || c.Portal.Location.String() != "UTC" {
		t.Errorf("portal = %+v", c.Portal)
	}
	if c.Portal.Prefs.ShowButton != "_id50" || c.Portal.Prefs.HideButton != "_id35" {
		t.Errorf("prefs = %+v", c.Portal.Prefs)
	}
	if c.Auth.Service != "https://portal.example.edu/portal/pda/" {
		t.Errorf("service = %q", c.Auth.Service)
	}
	if c.Auth.ApproveWait != 2*time.Minute {
		t.Errorf("approve wait = %v", c.Auth.ApproveWait)
	}
	if c.Transport.Retry != (transport.RetryPolicy{GetAttempts: 5, PostAttempts: 2}) {
		t.Errorf("retry = %+v", c.Transport.Retry)
	}
	if c.Workers != 2 || c.Limit != 10 {
		t.Errorf("workers %d, limit %d", c.Workers, c.Limit)
	}
	if c.StoreBackend != "redis" || c.Redis.DB != 3 || c.Redis.Prefix != "tsquare:" {
		t.Errorf("store = %s %+v", c.StoreBackend, c.Redis)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := paths(t)
	for name, yaml := range map[string]string{
		"timezone": "portal:\n  timezone: Mars/Olympus\n",
		"backend":  "store:\n  backend: sqlite\n",
		"syntax":   "portal: [\n",
	} {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: no error", name)
		}
	}
}
