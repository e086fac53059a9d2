// Package secret keeps the portal password between runs.
package secret

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"tsquare/auth"
)

var (
	// ErrNotSet means nothing was ever saved.
	ErrNotSet = errors.New("no saved credentials")
	// ErrNoValue means credentials were saved and later cleared.
	ErrNoValue = errors.New("saved credentials were cleared")
)

// Store saves, loads and clears one set of credentials.
type Store interface {
	Save(auth.Credentials) error
	Load() (auth.Credentials, error)
	Clear() error
}

type record struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Cleared  bool   `json:"cleared,omitempty"`
}

// File stores credentials as JSON in a file only the owner can read.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a File store at path. The file is created on first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Save implements Store.
func (f *File) Save(c auth.Credentials) error {
	if c.Empty() {
		return errors.New("refusing to save incomplete credentials")
	}
	return f.write(record{Username: c.Username, Password: c.Password})
}

// Load implements Store.
func (f *File) Load() (auth.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return auth.Credentials{}, ErrNotSet
	}
	if err != nil {
		return auth.Credentials{}, errors.Wrap(err, "read credentials")
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return auth.Credentials{}, errors.Wrap(err, "decode credentials")
	}
	if r.Cleared {
		return auth.Credentials{}, ErrNoValue
	}
	return auth.Credentials{Username: r.Username, Password: r.Password}, nil
}

// Clear implements Store. The file is kept with a cleared marker so a later
// Load can tell a logout from a first run.
func (f *File) Clear() error {
	return f.write(record{Cleared: true})
}

func (f *File) write(r record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode credentials")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Wrap(err, "create credentials dir")
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrap(err, "write credentials")
	}
	return errors.Wrap(os.Rename(tmp, f.path), "write credentials")
}

// Memory is a Store that lives as long as the process.
type Memory struct {
	mu      sync.Mutex
	creds   auth.Credentials
	set     bool
	cleared bool
}

// Save implements Store.
func (m *Memory) Save(c auth.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds, m.set, m.cleared = c, true, false
	return nil
}

// Load implements Store.
func (m *Memory) Load() (auth.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.cleared:
		return auth.Credentials{}, ErrNoValue
	case !m.set:
		return auth.Credentials{}, ErrNotSet
	}
	return m.creds, nil
}

// Clear implements Store.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds, m.cleared = auth.Credentials{}, true
	return nil
}
