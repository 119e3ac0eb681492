// Package session provides the credential sources the API client draws its
// bearer token from.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nmathey/finahack/pkg/logger"
)

var (
	// ErrNoSuitableContext means no authenticated page can supply a token.
	ErrNoSuitableContext = errors.New("no authenticated session available")
	// ErrEmptyToken is returned by Put for a blank token.
	ErrEmptyToken = errors.New("token is empty")
)

// Status describes the broker state for the extension.
type Status struct {
	HasToken         bool      `json:"has_token"`
	RefreshRequested bool      `json:"refresh_requested"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

// Broker holds the token pushed by the browser extension.
//
// RequestNewToken raises a refresh request the extension polls for, then
// blocks until the next Put.
type Broker struct {
	mu        sync.Mutex
	token     string
	updatedAt time.Time
	pending   bool
	pushed    chan struct{}
	closed    bool

	logger *logger.Logger
	now    func() time.Time
}

// NewBroker creates an empty Broker
func NewBroker(log *logger.Logger) *Broker {
	return &Broker{
		pushed: make(chan struct{}),
		logger: log.WithField("component", "session"),
		now:    time.Now,
	}
}

// Put stores a freshly captured token and wakes every waiting RequestNewToken.
func (b *Broker) Put(token string) error {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return ErrEmptyToken
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrNoSuitableContext
	}

	b.token = token
	b.updatedAt = b.now().UTC()
	b.pending = false
	close(b.pushed)
	b.pushed = make(chan struct{})

	b.logger.Info("session token received")
	return nil
}

// GetToken returns the current token, empty when none was pushed yet.
func (b *Broker) GetToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", ErrNoSuitableContext
	}
	return b.token, nil
}

// RequestNewToken discards the current token and waits for the extension to
// push a new one, until ctx is done.
func (b *Broker) RequestNewToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", ErrNoSuitableContext
	}
	b.token = ""
	b.pending = true
	pushed := b.pushed
	b.mu.Unlock()

	b.logger.Info("session token refresh requested")

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-pushed:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.token == "" {
		return "", ErrNoSuitableContext
	}
	return b.token, nil
}

// Status reports whether a token is held and whether a refresh is awaited.
func (b *Broker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		HasToken:         b.token != "",
		RefreshRequested: b.pending,
		UpdatedAt:        b.updatedAt,
	}
}

// Close releases waiters with ErrNoSuitableContext. Later calls fail the same way.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.token = ""
	close(b.pushed)
}
