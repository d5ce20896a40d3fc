// Package auth provides credential and session-key helpers for the upload
// service login handshake.
//
// It intentionally avoids storage concerns; persisting credentials is the
// caller's job.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/danmuck/clowdctl/internal/legacyhash"
)

// clientSalt is mixed into every password before it leaves the machine.
const clientSalt = "29AcyQyeqJsQJLCt"

var (
	ErrEmptyUsername = errors.New("auth: username required")
	ErrEmptyPassword = errors.New("auth: password required")
	ErrNoCredentials = errors.New("auth: no credentials available")
)

// Credentials is a username plus the client-side password hash.
type Credentials struct {
	Username     string
	PasswordHash string
}

// NewCredentials hashes password with the client salt.
func NewCredentials(username, password string) (Credentials, error) {
	if strings.TrimSpace(password) == "" {
		return Credentials{}, ErrEmptyPassword
	}
	return FromHash(username, HashPassword(password))
}

// FromHash builds credentials from an already hashed password.
func FromHash(username, passwordHash string) (Credentials, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Credentials{}, ErrEmptyUsername
	}
	if strings.TrimSpace(passwordHash) == "" {
		return Credentials{}, ErrEmptyPassword
	}
	return Credentials{Username: username, PasswordHash: strings.TrimSpace(passwordHash)}, nil
}

func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.Username) != "" && strings.TrimSpace(c.PasswordHash) != ""
}

// HashPassword returns the salted client-side hash sent in place of the password.
func HashPassword(password string) string {
	return legacyhash.Salted(password, clientSalt)
}

// ChallengeResponse answers a LOGINRESP challenge: MD5(iv + MD5(salt + hash)).
func ChallengeResponse(passwordHash, salt, iv string) string {
	return legacyhash.Salted(legacyhash.Salted(passwordHash, salt), iv)
}

// Source supplies credentials on demand.
type Source interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticSource always returns the same credentials.
type StaticSource struct {
	Creds Credentials
}

func (s StaticSource) Credentials(context.Context) (Credentials, error) {
	if !s.Creds.Valid() {
		return Credentials{}, ErrNoCredentials
	}
	return s.Creds, nil
}

// SourceFunc adapts a function into a Source.
type SourceFunc func(ctx context.Context) (Credentials, error)

func (f SourceFunc) Credentials(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

// Profile is the account summary returned with a successful AUTHRESP.
type Profile struct {
	Username     string
	Email        string
	Subscription string
	Uploads      int
}

// Cache remembers the last good login and the session key it produced.
// A cached session key supersedes the password on new connections.
type Cache struct {
	mu         sync.RWMutex
	creds      *Credentials
	sessionKey string
	profile    Profile
}

func NewCache() *Cache {
	return &Cache{}
}

// Store records a successful login.
func (c *Cache) Store(creds Credentials, sessionKey string, profile Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := creds
	c.creds = &cp
	c.sessionKey = sessionKey
	c.profile = profile
}

func (c *Cache) SetSessionKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionKey = key
}

func (c *Cache) SessionKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionKey
}

// Credentials returns the cached login, if any.
func (c *Cache) Credentials() (Credentials, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.creds == nil {
		return Credentials{}, false
	}
	return *c.creds, true
}

func (c *Cache) Profile() Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

// HasLogin reports whether either credentials or a session key are cached.
func (c *Cache) HasLogin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds != nil || strings.TrimSpace(c.sessionKey) != ""
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = nil
	c.sessionKey = ""
	c.profile = Profile{}
}
