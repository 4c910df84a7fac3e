package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultCheckInterval is how often idle connections are pinged.
const DefaultCheckInterval = 5 * time.Second

const idlePingTimeout = 5 * time.Second

// acquirePingIdle matches pgxpool's default: connections idle for longer
// than this are pinged when acquired.
const acquirePingIdle = time.Second

// idlePinger pings the connections currently sitting idle in a pool.
type idlePinger interface {
	PingIdle(ctx context.Context) error
}

type poolPinger struct {
	pool *pgxpool.Pool
}

// PingIdle pings every idle connection and returns the first failure.
// Broken connections are closed so the pool destroys them on release.
func (p poolPinger) PingIdle(ctx context.Context) error {
	var first error
	for _, c := range p.pool.AcquireAllIdle(ctx) {
		if err := c.Ping(ctx); err != nil {
			if first == nil {
				first = err
			}
			_ = c.Conn().Close(ctx)
		}
		c.Release()
	}
	return first
}

// watchIdle pings idle connections every interval until ctx is done or a
// ping fails. A failure ends the watch and is returned as *PoolFatalError.
func watchIdle(ctx context.Context, pinger idlePinger, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, idlePingTimeout)
			err := pinger.PingIdle(pctx)
			cancel()
			if err == nil {
				continue
			}
			// Errors caused by our own shutdown are not fatal.
			if ctx.Err() != nil {
				return nil
			}
			return &PoolFatalError{Err: err}
		}
	}
}
