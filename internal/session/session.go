// Package session provides cookie-addressed per-user session storage backed
// by the shared cache store. A session is a flat string key/value namespace
// scoped to one browser's session cookie.
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JesseYan/gm-share-tool/internal/cache"
)

// DefaultTTL is how long session entries live without being rewritten.
const DefaultTTL = 14 * 24 * time.Hour

// Manager resolves sessions from inbound requests.
type Manager struct {
	store      cache.Store
	cookieName string
	ttl        time.Duration
}

// NewManager creates a session manager reading the session ID from the named
// cookie and persisting entries in store.
func NewManager(store cache.Store, cookieName string) *Manager {
	return &Manager{
		store:      store,
		cookieName: cookieName,
		ttl:        DefaultTTL,
	}
}

// Load returns the session for the request. If the request carries no session
// cookie, the returned session is anonymous: reads miss and writes are
// dropped, and Exists reports false.
func (m *Manager) Load(r *http.Request) *Session {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return &Session{m: m}
	}
	return &Session{m: m, id: c.Value}
}

// Mint creates a brand-new session and the cookie that will bind the browser
// to it. Used by flows that must persist state for a so-far anonymous user.
func (m *Manager) Mint() (*Session, *http.Cookie) {
	id := uuid.New().String()
	cookie := &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
	}
	return &Session{m: m, id: id}, cookie
}

// Session is one user's session namespace.
type Session struct {
	m  *Manager
	id string
}

// ID returns the session identifier, empty for anonymous sessions.
func (s *Session) ID() string { return s.id }

// Exists reports whether the request carried a session cookie.
func (s *Session) Exists() bool { return s.id != "" }

func (s *Session) key(name string) string {
	return "s:" + s.id + ":" + name
}

// Get reads a named entry from the session.
func (s *Session) Get(ctx context.Context, name string) (string, bool, error) {
	if s.id == "" {
		return "", false, nil
	}
	return s.m.store.Get(ctx, s.key(name))
}

// Set writes a named entry to the session.
func (s *Session) Set(ctx context.Context, name, value string) error {
	if s.id == "" {
		return nil
	}
	return s.m.store.SetEx(ctx, s.key(name), value, s.m.ttl)
}

// Delete removes a named entry from the session.
func (s *Session) Delete(ctx context.Context, name string) error {
	if s.id == "" {
		return nil
	}
	return s.m.store.Del(ctx, s.key(name))
}
