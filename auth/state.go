package auth

import "sync"

// State is a step of the login handshake.
type State int

const (
	RequestingLoginPage State = iota
	SubmittingCredentials
	Success
	IncorrectCredentials
	TwoFactorPending
	TimedOut
)

func (s State) String() string {
	switch s {
	case RequestingLoginPage:
		return "requesting login page"
	case SubmittingCredentials:
		return "submitting credentials"
	case Success:
		return "success"
	case IncorrectCredentials:
		return "incorrect credentials"
	case TwoFactorPending:
		return "two-factor pending"
	case TimedOut:
		return "timed out"
	}
	return "unknown"
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == Success || s == IncorrectCredentials || s == TimedOut
}

// Credentials are a portal username and password.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether either field is missing.
func (c Credentials) Empty() bool {
	return c.Username == "" || c.Password == ""
}

// SessionState is the mutable state of one login session: the login form
// tokens last seen and the one-time two-factor frame URL. It is owned by a
// single Authenticator and reset on logout.
type SessionState struct {
	mu           sync.Mutex
	username     string
	formPath     string
	ticket       string
	execution    string
	twoFactorURL string
}

func (s *SessionState) tokens() (path, ticket, execution string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formPath, s.ticket, s.execution
}

func (s *SessionState) setTokens(path, ticket, execution string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formPath, s.ticket, s.execution = path, ticket, execution
}

func (s *SessionState) setUsername(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = u
}

// Username returns the user of the last successful login.
func (s *SessionState) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *SessionState) setTwoFactorURL(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.twoFactorURL = u
}

// TakeTwoFactorURL returns the pending two-factor frame URL and clears it.
// A second call returns "".
func (s *SessionState) TakeTwoFactorURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.twoFactorURL
	s.twoFactorURL = ""
	return u
}

// Reset forgets everything.
func (s *SessionState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username, s.formPath, s.ticket, s.execution, s.twoFactorURL = "", "", "", "", ""
}
