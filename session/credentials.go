package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"tsquare/auth"
	"tsquare/secret"
)

// CredentialSource supplies credentials for a silent reauthentication.
// ok is false when the source has nothing to offer.
type CredentialSource interface {
	Credentials(ctx context.Context) (creds auth.Credentials, ok bool, err error)
}

// Memory holds the credentials of the running session.
type Memory struct {
	mu    sync.Mutex
	creds auth.Credentials
}

// Set replaces the held credentials.
func (m *Memory) Set(c auth.Credentials) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = c
}

// Clear forgets the held credentials.
func (m *Memory) Clear() {
	m.Set(auth.Credentials{})
}

// Credentials implements CredentialSource.
func (m *Memory) Credentials(context.Context) (auth.Credentials, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds, !m.creds.Empty(), nil
}

// SecretSource reads persisted credentials.
type SecretSource struct {
	Store secret.Store
}

// Credentials implements CredentialSource.
func (s SecretSource) Credentials(context.Context) (auth.Credentials, bool, error) {
	c, err := s.Store.Load()
	if errors.Is(err, secret.ErrNotSet) || errors.Is(err, secret.ErrNoValue) {
		return auth.Credentials{}, false, nil
	}
	if err != nil {
		return auth.Credentials{}, false, err
	}
	return c, !c.Empty(), nil
}

// PromptSource asks on the terminal. It offers nothing when In is not a
// terminal.
type PromptSource struct {
	In       *os.File
	Out      io.Writer
	Username string
}

// Credentials implements CredentialSource.
func (p PromptSource) Credentials(ctx context.Context) (auth.Credentials, bool, error) {
	if p.In == nil || !term.IsTerminal(int(p.In.Fd())) {
		return auth.Credentials{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return auth.Credentials{}, false, err
	}
	out := p.Out
	if out == nil {
		out = os.Stderr
	}
	c := auth.Credentials{Username: p.Username}
	if c.Username == "" {
		fmt.Fprint(out, "Username: ")
		line, err := bufio.NewReader(p.In).ReadString('\n')
		if err != nil && line == "" {
			return auth.Credentials{}, false, errors.Wrap(err, "read username")
		}
		c.Username = strings.TrimSpace(line)
	}
	fmt.Fprintf(out, "Password for %s: ", c.Username)
	pw, err := term.ReadPassword(int(p.In.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return auth.Credentials{}, false, errors.Wrap(err, "read password")
	}
	c.Password = string(pw)
	return c, !c.Empty(), nil
}
