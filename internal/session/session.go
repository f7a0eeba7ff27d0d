// Package session keeps per-browser state (login, flash messages, echoed
// form input and the CSRF token) in the sessions table, keyed by a random
// cookie value.
package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"time"
)

// Session is the state of one browser. It is not safe for concurrent use;
// each request owns its copy.
type Session struct {
	id        string
	userID    *int64
	data      payload
	expiresAt time.Time
	createdAt time.Time
	isNew     bool
	dirty     bool
	destroyed bool
	renewedID string
}

type payload struct {
	Flash map[string]string `json:"flash,omitempty"`
	Input url.Values        `json:"input,omitempty"`
	Token string            `json:"token,omitempty"`
}

func newSession(id string) *Session {
	return &Session{id: id, isNew: true, dirty: true}
}

// ID is the cookie value.
func (s *Session) ID() string { return s.id }

// IsNew reports whether the session was created by this request.
func (s *Session) IsNew() bool { return s.isNew }

// Destroyed reports whether the session was deleted during this request.
// A destroyed session must not be saved again.
func (s *Session) Destroyed() bool { return s.destroyed }

// UserID returns the logged-in user, or 0.
func (s *Session) UserID() int64 {
	if s.userID == nil {
		return 0
	}
	return *s.userID
}

// SetUser records a login. The caller should Renew the id first.
func (s *Session) SetUser(id int64) {
	s.userID = &id
	s.dirty = true
}

// ClearUser forgets the logged-in user.
func (s *Session) ClearUser() {
	s.userID = nil
	s.dirty = true
}

// Flash stores a one-shot message under key.
func (s *Session) Flash(key, value string) {
	if s.data.Flash == nil {
		s.data.Flash = make(map[string]string)
	}
	s.data.Flash[key] = value
	s.dirty = true
}

// TakeFlash returns the message under key and clears it.
func (s *Session) TakeFlash(key string) string {
	v, ok := s.data.Flash[key]
	if !ok {
		return ""
	}
	delete(s.data.Flash, key)
	s.dirty = true
	return v
}

// FlashInput keeps submitted form values for the next render of the form.
// Password fields are never kept.
func (s *Session) FlashInput(input url.Values) {
	kept := make(url.Values, len(input))
	for k, v := range input {
		switch k {
		case "password", "password_confirm", "token":
			continue
		}
		kept[k] = append([]string(nil), v...)
	}
	s.data.Input = kept
	s.dirty = true
}

// TakeInput returns and clears the flashed form input.
func (s *Session) TakeInput() url.Values {
	in := s.data.Input
	if in != nil {
		s.data.Input = nil
		s.dirty = true
	}
	return in
}

// Token returns the current CSRF token, creating one when absent.
func (s *Session) Token() string {
	if s.data.Token == "" {
		return s.GenerateToken()
	}
	return s.data.Token
}

// GenerateToken replaces the CSRF token and returns the new value.
func (s *Session) GenerateToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	s.data.Token = hex.EncodeToString(buf)
	s.dirty = true
	return s.data.Token
}

// CheckToken compares token with the session token in constant time.
func (s *Session) CheckToken(token string) bool {
	if token == "" || s.data.Token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.data.Token)) == 1
}

func (s *Session) encode() string {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func (s *Session) decode(raw string) {
	if raw == "" {
		return
	}
	_ = json.Unmarshal([]byte(raw), &s.data)
}

type contextKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the request's session, or nil.
func FromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
