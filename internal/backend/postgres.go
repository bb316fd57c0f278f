package backend

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"go-lakehouse-gateway/internal/auth"
	"go-lakehouse-gateway/internal/config"
	"go-lakehouse-gateway/internal/sqlcore"
)

// ConnString builds the Postgres connection URL for the managed instance.
// The password slot is always the current OAuth token, never a static secret.
func ConnString(cfg config.PostgresConfig, token string) (string, error) {
	if cfg.Host == "" {
		return "", &ConfigError{Reason: "postgres host is required"}
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.Database == "" {
		cfg.Database = "databricks_postgres"
	}
	if cfg.User == "" {
		cfg.User = "token"
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "require"
	}

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(cfg.User, token),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	query := url.Values{}
	query.Set("sslmode", cfg.SSLMode)
	if cfg.HostAddr != "" {
		query.Set("hostaddr", cfg.HostAddr)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// PostgresBackend runs SQL over a single reused connection. It is not safe
// for concurrent callers; use PostgresPoolBackend for that.
type PostgresBackend struct {
	ops
	cfg    config.PostgresConfig
	tokens *auth.Manager
	conn   *pgx.Conn
	dial   func(ctx context.Context, connString string) (*pgx.Conn, error)
	logger *zap.Logger
}

func NewPostgresBackend(cfg config.PostgresConfig, tokens *auth.Manager, logger *zap.Logger) *PostgresBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &PostgresBackend{
		cfg:    cfg,
		tokens: tokens,
		dial:   pgx.Connect,
		logger: logger,
	}
	b.ops = ops{exec: b, dialect: sqlcore.DialectPostgres}
	return b
}

// connect opens a connection with a freshly interpolated token, reusing an
// existing open connection across calls.
func (b *PostgresBackend) connect(ctx context.Context) error {
	if b.conn != nil {
		return nil
	}
	connString, err := ConnString(b.cfg, b.tokens.Token(ctx))
	if err != nil {
		return err
	}
	conn, err := b.dial(ctx, connString)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", b.cfg.Host, err)
	}
	b.conn = conn
	return nil
}

func (b *PostgresBackend) reconnect(ctx context.Context) error {
	if b.conn != nil {
		_ = b.conn.Close(ctx)
		b.conn = nil
	}
	b.tokens.Invalidate()
	return b.connect(ctx)
}

// withAuthRetry runs op on the current connection. An auth-classified
// failure discards the connection, refreshes the token and retries exactly
// once; any other failure, or a second one, propagates unmodified.
func (b *PostgresBackend) withAuthRetry(ctx context.Context, op func(conn *pgx.Conn) error) error {
	err := b.connect(ctx)
	if err == nil {
		err = op(b.conn)
		if err == nil {
			return nil
		}
	}
	if !IsAuthError(err) {
		return err
	}

	b.logger.Warn("Authentication failure, reconnecting with a fresh token", zap.Error(err))
	if rerr := b.reconnect(ctx); rerr != nil {
		return rerr
	}
	return op(b.conn)
}

func (b *PostgresBackend) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	var affected int64
	err := b.withAuthRetry(ctx, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}

// Fetch streams rows as the underlying cursor is iterated. The iterator
// holds the connection until Close.
func (b *PostgresBackend) Fetch(ctx context.Context, sql string, args ...any) (RowIterator, error) {
	var it RowIterator
	err := b.withAuthRetry(ctx, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		iter, err := newPgxIterator(rows)
		if err != nil {
			return err
		}
		it = iter
		return nil
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (b *PostgresBackend) Close(ctx context.Context) error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close(ctx)
	b.conn = nil
	return err
}

// pgxIterator adapts pgx.Rows to RowIterator, building the row shape once
// from the result's field descriptions.
type pgxIterator struct {
	rows    pgx.Rows
	factory *sqlcore.RowFactory
	current sqlcore.Row
	err     error
}

func newPgxIterator(rows pgx.Rows) (*pgxIterator, error) {
	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, field := range fields {
		names[i] = field.Name
	}
	factory, err := sqlcore.NewRowFactory(names)
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &pgxIterator{rows: rows, factory: factory}, nil
}

func (it *pgxIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}
	values, err := it.rows.Values()
	if err != nil {
		it.err = err
		return false
	}
	row, err := it.factory.Row(values)
	if err != nil {
		it.err = err
		return false
	}
	it.current = row
	return true
}

func (it *pgxIterator) Row() sqlcore.Row { return it.current }
func (it *pgxIterator) Err() error       { return it.err }
func (it *pgxIterator) Close()           { it.rows.Close() }
