package finary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTimeout = 10 * time.Second

// ErrTokenTimeout is returned when the TokenProvider did not answer in time.
var ErrTokenTimeout = errors.New("timed out waiting for session token")

// errNoToken is returned when the provider answered with an empty token.
var errNoToken = errors.New("session token unavailable")

// TokenProvider supplies the bearer token of the authenticated session.
// GetToken may return "" when no token is known yet; RequestNewToken asks for
// a renewed one.
type TokenProvider interface {
	GetToken(ctx context.Context) (string, error)
	RequestNewToken(ctx context.Context) (string, error)
}

type credentialState int

const (
	stateUnauthenticated credentialState = iota
	stateAuthenticated
	stateRefreshing
)

// credentials caches the current token. Acquisitions are serialized so
// concurrent requests share one refresh.
type credentials struct {
	provider TokenProvider
	timeout  time.Duration
	now      func() time.Time

	mu        sync.Mutex
	state     credentialState
	token     string
	expiresAt time.Time
	subject   string
}

func newCredentials(provider TokenProvider, timeout time.Duration) *credentials {
	if timeout <= 0 {
		timeout = defaultTokenTimeout
	}
	return &credentials{provider: provider, timeout: timeout, now: time.Now}
}

// Token returns the cached token, acquiring one when unauthenticated or when
// the cached JWT has expired.
func (c *credentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateAuthenticated && !c.expired() {
		return c.token, nil
	}
	if c.state == stateAuthenticated {
		return c.acquire(ctx, c.provider.RequestNewToken)
	}

	return c.acquire(ctx, func(ctx context.Context) (string, error) {
		token, err := c.provider.GetToken(ctx)
		if err != nil {
			return "", err
		}
		if token == "" {
			return c.provider.RequestNewToken(ctx)
		}
		if exp, _ := parseClaims(token); !exp.IsZero() && !c.now().Before(exp) {
			return c.provider.RequestNewToken(ctx)
		}
		return token, nil
	})
}

// Refresh replaces stale with a renewed token. If another caller already
// renewed it, the current token is returned as is.
func (c *credentials) Refresh(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateAuthenticated && c.token != stale && !c.expired() {
		return c.token, nil
	}
	return c.acquire(ctx, c.provider.RequestNewToken)
}

// Subject is the "sub" claim of the current token, or "".
func (c *credentials) Subject() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subject
}

// acquire runs fetch bounded by the token timeout. Callers hold c.mu.
func (c *credentials) acquire(ctx context.Context, fetch func(context.Context) (string, error)) (string, error) {
	c.state = stateRefreshing
	c.token = ""

	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		token string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		token, err := fetch(tctx)
		done <- result{token, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-tctx.Done():
		r.err = tctx.Err()
	}

	if r.err == nil && r.token == "" {
		r.err = errNoToken
	}
	if r.err != nil {
		c.state = stateUnauthenticated
		if ctx.Err() == nil && errors.Is(r.err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTokenTimeout, c.timeout)
		}
		return "", r.err
	}

	c.state = stateAuthenticated
	c.token = r.token
	c.expiresAt, c.subject = parseClaims(r.token)
	return c.token, nil
}

func (c *credentials) expired() bool {
	return !c.expiresAt.IsZero() && !c.now().Before(c.expiresAt)
}

// parseClaims reads exp and sub without verifying the signature. Opaque
// tokens yield zero values.
func parseClaims(token string) (time.Time, string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, ""
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	sub, _ := claims.GetSubject()
	return expiresAt, sub
}
