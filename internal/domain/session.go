package domain

import "time"

// SessionLifespan is how long a token stays usable after issue or last successful use.
const SessionLifespan = 15 * time.Minute

type Session struct {
	ID      string
	Token   string
	Issued  time.Time
	Expires time.Time
	Active  bool
	Used    time.Time
}

// NewSession stamps a fresh idle session issued at the given time.
func NewSession(id, token string, issued time.Time) Session {
	return Session{
		ID:      id,
		Token:   token,
		Issued:  issued,
		Expires: issued.Add(SessionLifespan),
	}
}

// Valid reports whether the session is idle and inside its validity window.
func (s Session) Valid(now time.Time) bool {
	return !s.Active && now.After(s.Issued) && now.Before(s.Expires)
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.Expires)
}

// Extend slides the expiry to now + SessionLifespan.
func (s *Session) Extend(now time.Time) {
	s.Expires = now.Add(SessionLifespan)
	s.Used = now
}

type BasicCredentials struct {
	Username string
	Password string
}

func (c BasicCredentials) Validate() error {
	if c.Username == "" {
		return ErrMissingUsername
	}
	if c.Password == "" {
		return ErrMissingPassword
	}

	return nil
}

// Token is the outcome of a credential exchange.
type Token struct {
	Value  string
	Issued time.Time
}

// SessionRecord is the on-disk view of a cached session. The token itself lives in a secret store.
type SessionRecord struct {
	ID       string
	TokenRef string
	Issued   time.Time
	Expires  time.Time
	Used     time.Time
}
