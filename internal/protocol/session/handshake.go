package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/clowdctl/internal/auth"
	"github.com/danmuck/clowdctl/internal/protocol/frame"
)

// CheckSessionKey asks the server whether key is still valid and, if so,
// marks the connection authenticated. It is a no-op when the connection
// already authenticated with the same key.
func (c *Conn) CheckSessionKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrSessionRejected
	}
	if c.State() == Authenticated && c.SessionKey() == key {
		return nil
	}

	c.setState(Authenticating)
	resp, err := c.Request(ctx, frame.New(frame.CmdSessionCK).WithText(key), frame.CmdSessionCKResp, c.cfg.HandshakeTimeout)
	if err != nil {
		c.setState(Unauthenticated)
		err = networkError(err)
		c.metrics.RecordAuth("session", err)
		return err
	}
	if !resp.Headers.Bool(frame.HeaderValid) {
		c.setState(Unauthenticated)
		c.metrics.RecordAuth("session", ErrSessionRejected)
		c.log.Debug().Msg("session key rejected")
		return ErrSessionRejected
	}

	c.setSessionKey(key)
	c.setState(Authenticated)
	c.metrics.RecordAuth("session", nil)
	c.log.Debug().Msg("session key accepted")
	return nil
}

// Login runs the LOGIN / AUTH challenge. On success it returns the session
// key issued by the server and the profile headers it sent with it.
func (c *Conn) Login(ctx context.Context, creds auth.Credentials) (string, auth.Profile, error) {
	if !creds.Valid() {
		return "", auth.Profile{}, auth.ErrNoCredentials
	}

	c.setState(Authenticating)
	key, profile, err := c.login(ctx, creds)
	c.metrics.RecordAuth("login", err)
	if err != nil {
		c.setState(Unauthenticated)
		c.log.Debug().Str("user", creds.Username).Err(err).Msg("login failed")
		return "", auth.Profile{}, err
	}

	c.setSessionKey(key)
	c.setState(Authenticated)
	c.log.Info().Str("user", profile.Username).Msg("logged in")
	return key, profile, nil
}

func (c *Conn) login(ctx context.Context, creds auth.Credentials) (string, auth.Profile, error) {
	challenge, err := c.Request(ctx, frame.New(frame.CmdLogin).WithText(creds.Username), frame.CmdLoginResp, c.cfg.HandshakeTimeout)
	if err != nil {
		return "", auth.Profile{}, networkError(err)
	}
	if text, ok := challenge.ErrorText(); ok {
		return "", auth.Profile{}, fmt.Errorf("%w: %s", ErrInvalidUserOrPass, text)
	}
	salt := challenge.Headers.Get(frame.HeaderSalt)
	iv := challenge.Headers.Get(frame.HeaderIV)
	if salt == "" || iv == "" {
		return "", auth.Profile{}, networkError(fmt.Errorf("%w: %s without salt or iv", ErrUnexpectedFrame, frame.CmdLoginResp))
	}

	answer := auth.ChallengeResponse(creds.PasswordHash, salt, iv)
	resp, err := c.Request(ctx, frame.New(frame.CmdAuth).WithText(answer), frame.CmdAuthResp, c.cfg.HandshakeTimeout)
	if err != nil {
		return "", auth.Profile{}, networkError(err)
	}
	if text, ok := resp.ErrorText(); ok {
		return "", auth.Profile{}, fmt.Errorf("%w: %s", ErrInvalidUserOrPass, text)
	}
	if !resp.HasPayload() {
		return "", auth.Profile{}, ErrInvalidUserOrPass
	}
	return resp.PayloadString(), profileFromHeaders(creds.Username, resp.Headers), nil
}

// Authenticate brings the connection to Authenticated. With explicit
// credentials it always logs in with them. Otherwise it tries the cached
// session key first and falls back to the cached credentials. Successful
// logins are written back to cache, which may be nil.
func (c *Conn) Authenticate(ctx context.Context, cache *auth.Cache, explicit *auth.Credentials) error {
	if explicit == nil && cache != nil {
		if key := cache.SessionKey(); key != "" {
			err := c.CheckSessionKey(ctx, key)
			if err == nil {
				return nil
			}
			if !errors.Is(err, ErrSessionRejected) {
				return err
			}
		}
	}

	var creds auth.Credentials
	switch {
	case explicit != nil:
		creds = *explicit
	case cache != nil:
		saved, ok := cache.Credentials()
		if !ok {
			return ErrNoLoginSaved
		}
		creds = saved
	default:
		return ErrNoLoginSaved
	}

	key, profile, err := c.Login(ctx, creds)
	if err != nil {
		return err
	}
	if cache != nil {
		cache.Store(creds, key, profile)
	}
	return nil
}

func networkError(err error) error {
	if errors.Is(err, ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

func profileFromHeaders(username string, h frame.Headers) auth.Profile {
	profile := auth.Profile{
		Username:     username,
		Email:        h.Get("email"),
		Subscription: h.Get("subscription"),
	}
	if name := h.Get("username"); name != "" {
		profile.Username = name
	}
	if n, err := strconv.Atoi(strings.TrimSpace(h.Get("uploads"))); err == nil {
		profile.Uploads = n
	}
	return profile
}
