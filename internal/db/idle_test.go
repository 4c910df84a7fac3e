package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeProvider(t *testing.T, fb *fakeBackend, interval time.Duration) *Provider {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := NewProvider(ctx, fb.config(), WithCheckInterval(interval), WithConnectTimeout(2*time.Second))
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func waitFatal(t *testing.T, p *Provider, within time.Duration) error {
	t.Helper()

	select {
	case err := <-p.Fatal():
		return err
	case <-time.After(within):
		t.Fatalf("no fatal error within %s", within)
		return nil
	}
}

func TestIdleWatch_TerminatedBackendIsFatal(t *testing.T) {
	fb := startFakeBackend(t)
	p := newFakeProvider(t, fb, 50*time.Millisecond)

	// Healthy ticks stay quiet.
	select {
	case err := <-p.Fatal():
		t.Fatalf("fatal error on a healthy pool: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	require.Equal(t, 1, fb.terminateAll(), "open sessions")

	err := waitFatal(t, p, 2*time.Second)
	assert.True(t, IsPoolFatal(err))
	assert.Contains(t, err.Error(), "unexpected error on idle connection")
	assert.ErrorIs(t, p.Err(), err)
}

func TestAcquire_TerminatedIdleConnectionIsFatal(t *testing.T) {
	fb := startFakeBackend(t)
	// The watch never ticks during this test; only the acquire check can
	// see the broken connection.
	p := newFakeProvider(t, fb, time.Hour)

	require.Equal(t, 1, fb.terminateAll(), "open sessions")
	time.Sleep(acquirePingIdle + 200*time.Millisecond)

	// A readiness check is the first to touch the broken connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.Ping(ctx)

	err := waitFatal(t, p, time.Second)
	assert.True(t, IsPoolFatal(err))

	// From now on the provider refuses work.
	assert.True(t, IsPoolFatal(p.Ping(ctx)))
	_, err = p.Acquire(ctx)
	assert.True(t, IsPoolFatal(err))
}

func TestAcquire_HealthyIdleConnectionIsReused(t *testing.T) {
	fb := startFakeBackend(t)
	p := newFakeProvider(t, fb, time.Hour)

	time.Sleep(acquirePingIdle + 200*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Ping(ctx))
	assert.NoError(t, p.Err())
	assert.Equal(t, int32(1), p.Stats().TotalConns)
}

func TestCheckAcquired_SkipsRecentlyUsed(t *testing.T) {
	p := newProvider(ConnectionConfig{})
	defer p.cancel()

	// Conn is nil: a recently used connection must not be touched at all.
	assert.False(t, p.checkAcquired(context.Background(), pgxpool.ShouldPingParams{IdleDuration: 10 * time.Millisecond}))
}

func TestProvider_RaiseDeliversOnce(t *testing.T) {
	p := startedProvider(t, lazyPool(t), &fakePinger{}, time.Hour)
	defer p.Close()

	first := &PoolFatalError{Err: assert.AnError}
	p.raise(first)
	p.raise(&PoolFatalError{Err: context.DeadlineExceeded})

	assert.Same(t, first, waitFatal(t, p, time.Second))
	select {
	case err := <-p.Fatal():
		t.Fatalf("second fatal error delivered: %v", err)
	default:
	}
	assert.Same(t, first, p.Err())
}
