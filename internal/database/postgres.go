// Package database manages connection pools: one pgxpool.Pool per
// configured PostgreSQL connection (C6), plus the Redis and ClickHouse
// side-channels the broker, admission limiter, and audit sink use.
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/rs/zerolog"
)

// ClientFactory lazily builds and caches one pool per connection id. Pools
// are torn down only by Close, at process shutdown;
// the broker acquires a short-lived client from the cached pool per
// request rather than opening a fresh TCP connection each time.
type ClientFactory struct {
	logger zerolog.Logger
	mu     sync.RWMutex
	pools  map[string]*pgxpool.Pool
}

// NewClientFactory builds an empty factory; pools are created on first use.
func NewClientFactory(logger zerolog.Logger) *ClientFactory {
	return &ClientFactory{
		logger: logger,
		pools:  make(map[string]*pgxpool.Pool),
	}
}

// Close closes every pool the factory has opened.
func (f *ClientFactory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, pool := range f.pools {
		pool.Close()
		delete(f.pools, id)
	}
}

func (f *ClientFactory) poolFor(ctx context.Context, conn domain.Connection) (*pgxpool.Pool, error) {
	f.mu.RLock()
	pool, ok := f.pools[conn.ID]
	f.mu.RUnlock()
	if ok {
		return pool, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if pool, ok := f.pools[conn.ID]; ok {
		return pool, nil
	}

	cfg, err := pgxpool.ParseConfig(buildDSN(conn))
	if err != nil {
		return nil, fmt.Errorf("parse dsn for connection %s: %w", conn.ID, err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err = pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool for connection %s: %w", conn.ID, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping connection %s: %w", conn.ID, err)
	}

	f.logger.Info().
		Str("connection_id", conn.ID).
		Str("host", conn.Host).
		Str("dsn", maskDSN(buildDSN(conn))).
		Msg("opened connection pool")

	f.pools[conn.ID] = pool
	return pool, nil
}

// PooledClient is a short-lived, request-scoped handle on a pooled
// connection, tagged with the requesting principal's email and the
// connection's configured timeouts.
type PooledClient struct {
	conn *pgxpool.Conn
}

// Conn exposes the underlying pgx connection for query execution.
func (c *PooledClient) Conn() *pgx.Conn {
	return c.conn.Conn()
}

// BackendPID returns the server-side process id backing this connection,
// needed for PID-first streaming and cancellation (spec.md §4.5/§9).
func (c *PooledClient) BackendPID() uint32 {
	return c.conn.Conn().PgConn().PID()
}

// Release returns the connection to its pool.
func (c *PooledClient) Release() {
	c.conn.Release()
}

// Acquire returns a pooled client against conn, tagged with
// application_name=requesterEmail and the connection's configured
// lock_timeout/statement_timeout, set as session-level GUCs right after
// acquisition (spec.md §4.5 step 2).
func (f *ClientFactory) Acquire(ctx context.Context, conn domain.Connection, requesterEmail string) (*PooledClient, error) {
	pool, err := f.poolFor(ctx, conn)
	if err != nil {
		return nil, err
	}

	pgxConn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection from pool %s: %w", conn.ID, err)
	}

	if err := applySessionSettings(ctx, pgxConn.Conn(), conn, requesterEmail); err != nil {
		pgxConn.Release()
		return nil, err
	}

	return &PooledClient{conn: pgxConn}, nil
}

func applySessionSettings(ctx context.Context, c *pgx.Conn, conn domain.Connection, requesterEmail string) error {
	if _, err := c.Exec(ctx, "SELECT set_config('application_name', $1, false)", truncateApplicationName(requesterEmail)); err != nil {
		return fmt.Errorf("set application_name: %w", err)
	}
	if conn.LockTimeout > 0 {
		if _, err := c.Exec(ctx, fmt.Sprintf("SET lock_timeout = %d", conn.LockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
	}
	if conn.StatementTimeout > 0 {
		if _, err := c.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", conn.StatementTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}
	return nil
}

// truncateApplicationName keeps the tag under Postgres's NAMEDATALEN (63
// bytes), leaving room for a "pgconsole:" prefix that marks sessions the
// gateway itself opened, as opposed to direct psql connections.
func truncateApplicationName(email string) string {
	tag := "pgconsole:" + email
	if len(tag) > 63 {
		tag = tag[:63]
	}
	return tag
}

func buildDSN(conn domain.Connection) string {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		conn.Host, conn.Port, conn.Database, conn.Username, conn.Password, conn.SSLMode)
	if conn.SSLCA != "" {
		dsn += " sslrootcert=" + conn.SSLCA
	}
	if conn.SSLCert != "" {
		dsn += " sslcert=" + conn.SSLCert
	}
	if conn.SSLKey != "" {
		dsn += " sslkey=" + conn.SSLKey
	}
	return dsn
}

// maskDSN masks the password in a libpq-style DSN string before logging.
func maskDSN(dsn string) string {
	idx := indexOf(dsn, "password=")
	if idx < 0 {
		return dsn
	}
	end := idx + len("password=")
	spaceIdx := indexOfFrom(dsn, " ", end)
	if spaceIdx < 0 {
		return dsn[:end] + "***"
	}
	return dsn[:end] + "***" + dsn[spaceIdx:]
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func indexOfFrom(s, substr string, from int) int {
	idx := indexOf(s[from:], substr)
	if idx < 0 {
		return -1
	}
	return from + idx
}

// PgError unwraps a pgconn.PgError from err, if any, so callers can surface
// Position/Detail/Hint in the broker's error formatting (spec.md §4.5
// step 10).
func PgError(err error) (*pgconn.PgError, bool) {
	if err == nil {
		return nil, false
	}
	return asPgError(err)
}

func asPgError(err error) (*pgconn.PgError, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			return pgErr, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
