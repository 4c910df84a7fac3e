package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Provider owns the process-wide connection pool. Construct one with
// NewProvider at startup and hand it to everything that needs the database;
// it lives until Close.
type Provider struct {
	cfg  ConnectionConfig
	pool *pgxpool.Pool

	dbOnce sync.Once
	sqlDB  *sql.DB

	fatal     chan error
	fatalOnce sync.Once

	mu  sync.RWMutex
	err error

	watchCtx  context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

type options struct {
	checkInterval  time.Duration
	connectTimeout time.Duration
}

// Option tweaks NewProvider.
type Option func(*options)

// WithCheckInterval sets how often idle connections are pinged.
func WithCheckInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

// WithConnectTimeout bounds the initial connectivity check.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// NewProvider builds the pool described by cfg, validates connectivity and
// starts watching idle connections.
func NewProvider(ctx context.Context, cfg ConnectionConfig, opts ...Option) (*Provider, error) {
	o := options{
		checkInterval:  DefaultCheckInterval,
		connectTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	pcfg, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	p := newProvider(cfg)
	pcfg.ShouldPing = p.checkAcquired

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		p.cancel()
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, o.connectTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		p.cancel()
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p.start(pool, poolPinger{pool: pool}, o.checkInterval)
	return p, nil
}

func newProvider(cfg ConnectionConfig) *Provider {
	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		cfg:      cfg,
		fatal:    make(chan error, 1),
		watchCtx: ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// start attaches the pool and begins watching its idle connections.
func (p *Provider) start(pool *pgxpool.Pool, pinger idlePinger, interval time.Duration) {
	p.pool = pool
	go p.watch(p.watchCtx, pinger, interval)
}

func (p *Provider) watch(ctx context.Context, pinger idlePinger, interval time.Duration) {
	defer close(p.done)

	if err := watchIdle(ctx, pinger, interval); err != nil {
		p.raise(err)
	}
}

// raise marks the provider failed and delivers err on Fatal. Only the
// first call has any effect.
func (p *Provider) raise(err error) {
	p.fatalOnce.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()

		// Buffered, so this never blocks.
		p.fatal <- err
		// No more probing once failed.
		p.cancel()
	})
}

// checkAcquired is the pool's ShouldPing hook. pgxpool pings connections
// that sat idle for a while when they are acquired and silently replaces
// broken ones; the ping is done here instead so that a broken idle
// connection found by a request is fatal, same as one found by the watch.
func (p *Provider) checkAcquired(ctx context.Context, params pgxpool.ShouldPingParams) bool {
	if params.IdleDuration <= acquirePingIdle {
		return false
	}

	err := params.Conn.Ping(ctx)
	if err == nil {
		return false
	}

	// A cancelled request or our own shutdown says nothing about the pool.
	if ctx.Err() == nil && p.watchCtx.Err() == nil {
		p.raise(&PoolFatalError{Err: err})
	}
	// pgx pings again, fails on the dead connection and destroys it.
	return true
}

// Config returns the configuration the pool was built from.
func (p *Provider) Config() ConnectionConfig { return p.cfg }

// Pool returns the shared pool. Every call returns the same instance.
func (p *Provider) Pool() *pgxpool.Pool { return p.pool }

// DB returns a database/sql handle backed by the shared pool. It is
// created on first use and then reused.
func (p *Provider) DB() *sql.DB {
	p.dbOnce.Do(func() {
		p.sqlDB = stdlib.OpenDBFromPool(p.pool)
	})
	return p.sqlDB
}

// Fatal delivers the *PoolFatalError raised when an idle connection turns
// out broken, found either by the watch or on acquire. At most one error is
// ever sent.
func (p *Provider) Fatal() <-chan error { return p.fatal }

// Err returns the fatal error once one has been raised.
func (p *Provider) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// Acquire takes a connection from the pool, waiting while all are busy.
// After a fatal error it refuses.
func (p *Provider) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	if err := p.Err(); err != nil {
		return nil, err
	}
	return p.pool.Acquire(ctx)
}

// Ping checks a round trip to the database through the pool.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.Err(); err != nil {
		return err
	}
	return p.pool.Ping(ctx)
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	MaxConns          int32         `json:"max_conns"`
	TotalConns        int32         `json:"total_conns"`
	IdleConns         int32         `json:"idle_conns"`
	AcquiredConns     int32         `json:"acquired_conns"`
	AcquireCount      int64         `json:"acquire_count"`
	EmptyAcquireCount int64         `json:"empty_acquire_count"`
	AcquireDuration   time.Duration `json:"acquire_duration_ns"`
}

// Stats snapshots the pool counters.
func (p *Provider) Stats() PoolStats {
	s := p.pool.Stat()
	return PoolStats{
		MaxConns:          s.MaxConns(),
		TotalConns:        s.TotalConns(),
		IdleConns:         s.IdleConns(),
		AcquiredConns:     s.AcquiredConns(),
		AcquireCount:      s.AcquireCount(),
		EmptyAcquireCount: s.EmptyAcquireCount(),
		AcquireDuration:   s.AcquireDuration(),
	}
}

// Migrate applies the embedded schema migrations over a dedicated handle
// on the shared pool.
func (p *Provider) Migrate() error {
	return RunMigrations(stdlib.OpenDBFromPool(p.pool))
}

// Close stops the watch and closes the pool. Safe to call more than once.
func (p *Provider) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.done
		// Synchronizes with DB and keeps it from opening a handle after Close.
		p.dbOnce.Do(func() {})
		if p.sqlDB != nil {
			_ = p.sqlDB.Close()
		}
		p.pool.Close()
	})
}
