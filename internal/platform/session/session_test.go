package session_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmathey/finahack/internal/platform/session"
	"github.com/nmathey/finahack/pkg/logger"
)

// =============================================================================
// Broker
// =============================================================================

func TestBroker_PutAndGet(t *testing.T) {
	b := session.NewBroker(logger.Discard())

	token, err := b.GetToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.False(t, b.Status().HasToken)

	require.NoError(t, b.Put("Bearer abc"))
	token, err = b.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.True(t, b.Status().HasToken)
	assert.False(t, b.Status().UpdatedAt.IsZero())

	assert.ErrorIs(t, b.Put("  "), session.ErrEmptyToken)
}

func TestBroker_RequestNewTokenWaitsForPush(t *testing.T) {
	b := session.NewBroker(logger.Discard())
	require.NoError(t, b.Put("old"))

	result := make(chan string, 1)
	go func() {
		token, err := b.RequestNewToken(context.Background())
		assert.NoError(t, err)
		result <- token
	}()

	require.Eventually(t, func() bool { return b.Status().RefreshRequested }, time.Second, 5*time.Millisecond)
	assert.False(t, b.Status().HasToken)

	require.NoError(t, b.Put("new"))

	select {
	case token := <-result:
		assert.Equal(t, "new", token)
	case <-time.After(time.Second):
		t.Fatal("RequestNewToken did not return after Put")
	}
	assert.False(t, b.Status().RefreshRequested)
}

func TestBroker_RequestNewTokenHonoursContext(t *testing.T) {
	b := session.NewBroker(logger.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.RequestNewToken(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBroker_Close(t *testing.T) {
	b := session.NewBroker(logger.Discard())

	errs := make(chan error, 1)
	go func() {
		_, err := b.RequestNewToken(context.Background())
		errs <- err
	}()
	require.Eventually(t, func() bool { return b.Status().RefreshRequested }, time.Second, 5*time.Millisecond)

	b.Close()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, session.ErrNoSuitableContext)
	case <-time.After(time.Second):
		t.Fatal("Close did not release waiter")
	}

	_, err := b.GetToken(context.Background())
	assert.ErrorIs(t, err, session.ErrNoSuitableContext)
	assert.ErrorIs(t, b.Put("x"), session.ErrNoSuitableContext)
	b.Close()
}

// =============================================================================
// FileProvider
// =============================================================================

func writeToken(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestFileProvider_BareToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	writeToken(t, path, "  eyJhbGciOi.token.sig\n")

	token, err := session.NewFileProvider(path).GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "eyJhbGciOi.token.sig", token)
}

func TestFileProvider_HeaderLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headers")
	writeToken(t, path, "Accept: application/json\nAuthorization: Bearer xyz\n")

	token, err := session.NewFileProvider(path).GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)
}

func TestFileProvider_RequestNewToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	writeToken(t, path, "first")
	p := session.NewFileProvider(path)

	_, err := p.GetToken(context.Background())
	require.NoError(t, err)

	_, err = p.RequestNewToken(context.Background())
	assert.ErrorIs(t, err, session.ErrNoSuitableContext, "unchanged token is not a renewal")

	writeToken(t, path, "second")
	token, err := p.RequestNewToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", token)
}

func TestFileProvider_MissingFile(t *testing.T) {
	_, err := session.NewFileProvider(filepath.Join(t.TempDir(), "nope")).GetToken(context.Background())
	assert.ErrorIs(t, err, session.ErrNoSuitableContext)
}
