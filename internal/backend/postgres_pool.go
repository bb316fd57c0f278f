package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"go-lakehouse-gateway/internal/auth"
	"go-lakehouse-gateway/internal/config"
	"go-lakehouse-gateway/internal/sqlcore"
)

// PostgresPoolBackend runs SQL over a connection pool and is safe for many
// concurrent callers, each borrowing a separate pooled connection. Unlike
// PostgresBackend, Fetch is buffered: the full result is materialized before
// the connection goes back to the pool, so no cursor is held open across
// callers.
type PostgresPoolBackend struct {
	ops
	cfg    config.PostgresConfig
	tokens *auth.Manager
	logger *zap.Logger

	mu       sync.Mutex
	pool     *pgxpool.Pool
	ownsPool bool
}

func NewPostgresPoolBackend(cfg config.PostgresConfig, tokens *auth.Manager, logger *zap.Logger) *PostgresPoolBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &PostgresPoolBackend{
		cfg:      cfg,
		tokens:   tokens,
		logger:   logger,
		ownsPool: true,
	}
	b.ops = ops{exec: b, dialect: sqlcore.DialectPostgres}
	return b
}

// NewPostgresPoolBackendWithPool wraps an externally supplied shared pool.
// The caller keeps ownership; Close does not close the pool.
func NewPostgresPoolBackendWithPool(pool *pgxpool.Pool, tokens *auth.Manager, logger *zap.Logger) *PostgresPoolBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &PostgresPoolBackend{
		pool:   pool,
		tokens: tokens,
		logger: logger,
	}
	b.ops = ops{exec: b, dialect: sqlcore.DialectPostgres}
	return b
}

// acquirePool lazily builds the pool. New connections pick up the manager's
// current token through the BeforeConnect hook, so a pool outlives any single
// credential.
func (b *PostgresPoolBackend) acquirePool(ctx context.Context) (*pgxpool.Pool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pool != nil {
		return b.pool, nil
	}

	connString, err := ConnString(b.cfg, "")
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing pool config: %w", err)
	}
	if b.cfg.PoolMax > 0 {
		poolCfg.MaxConns = int32(b.cfg.PoolMax)
	}
	poolCfg.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		cc.Password = b.tokens.Token(ctx)
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool for %s: %w", b.cfg.Host, err)
	}
	b.pool = pool
	return pool, nil
}

// withAuthRetry runs op against the pool, invalidating the token and
// retrying exactly once on an auth-classified failure. The pool discards the
// broken connection; the retry dials a fresh one with the refreshed token.
func (b *PostgresPoolBackend) withAuthRetry(ctx context.Context, op func(pool *pgxpool.Pool) error) error {
	pool, err := b.acquirePool(ctx)
	if err != nil {
		return err
	}

	err = op(pool)
	if err == nil || !IsAuthError(err) {
		return err
	}

	b.logger.Warn("Authentication failure, retrying with a fresh token", zap.Error(err))
	b.tokens.Invalidate()
	return op(pool)
}

func (b *PostgresPoolBackend) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	var affected int64
	err := b.withAuthRetry(ctx, func(pool *pgxpool.Pool) error {
		tag, err := pool.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}

// Fetch materializes the full result before returning, so the pooled
// connection is released before the caller starts iterating.
func (b *PostgresPoolBackend) Fetch(ctx context.Context, sql string, args ...any) (RowIterator, error) {
	var buffered []sqlcore.Row
	err := b.withAuthRetry(ctx, func(pool *pgxpool.Pool) error {
		rows, err := pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		it, err := newPgxIterator(rows)
		if err != nil {
			return err
		}
		buffered = buffered[:0]
		for it.Next() {
			buffered = append(buffered, it.Row())
		}
		return it.Err()
	})
	if err != nil {
		return nil, err
	}
	return newSliceIterator(buffered), nil
}

func (b *PostgresPoolBackend) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pool != nil && b.ownsPool {
		b.pool.Close()
	}
	b.pool = nil
	return nil
}
