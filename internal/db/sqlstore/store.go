// Package sqlstore is a db.Store keeping every leaf of the value tree as a
// row of a (path, value) table in PostgreSQL or SQLite
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nickmessing/firemodel/internal/db"
)

// DefaultTable is the node table name
const DefaultTable = "firemodel_nodes"

// Config holds SQL store configuration
type Config struct {
	Dialect Dialect
	Table   string
	Retry   RetryConfig
}

// DefaultConfig returns a default SQL store configuration
func DefaultConfig() Config {
	return Config{
		Dialect: Postgres,
		Table:   DefaultTable,
		Retry:   DefaultRetryConfig(),
	}
}

// Store implements db.Store on a SQL database
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
	retry   RetryConfig
	logger  *zap.Logger
}

// New creates a store over an open database handle
func New(conn *sql.DB, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Store{
		db:      conn,
		dialect: cfg.Dialect,
		table:   pq.QuoteIdentifier(cfg.Table),
		retry:   cfg.Retry,
		logger:  logger,
	}
}

// Open opens and pings a database for the configured dialect
func Open(ctx context.Context, dsn string, cfg Config, logger *zap.Logger) (*Store, error) {
	conn, err := sql.Open(cfg.Dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Dialect, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Dialect, ConvertDBError(err))
	}
	if cfg.Dialect == SQLite {
		// one writer at a time avoids SQLITE_BUSY between pooled connections
		conn.SetMaxOpenConns(1)
	}
	return New(conn, cfg, logger), nil
}

// EnsureSchema creates the node table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (path TEXT PRIMARY KEY, value TEXT NOT NULL)", s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create node table: %w", ConvertDBError(err))
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// subtree returns the WHERE clause and arguments selecting path and every
// row below it
func (s *Store) subtree(path string) (string, []interface{}) {
	if path == "" {
		return "", nil
	}
	clause := fmt.Sprintf(" WHERE path = %s OR path LIKE %s ESCAPE '\\'",
		s.dialect.placeholder(1), s.dialect.placeholder(2))
	return clause, []interface{}{path, escapeLike(path) + "/%"}
}

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeReplacer.Replace(s)
}

// Read returns the value at path
func (s *Store) Read(ctx context.Context, path string) (interface{}, error) {
	where, args := s.subtree(path)
	rows, err := s.db.QueryContext(ctx, "SELECT path, value FROM "+s.table+where, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	leaves := make(map[string]interface{})
	for rows.Next() {
		var p, raw string
		if err := rows.Scan(&p, &raw); err != nil {
			return nil, ConvertDBError(err)
		}
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("%w: row %q is not JSON: %v", db.ErrInvalidValue, p, err)
		}
		leaves[p] = v
	}
	if err := rows.Err(); err != nil {
		return nil, ConvertDBError(err)
	}
	return db.Assemble(path, leaves), nil
}

func (s *Store) existing(ctx context.Context, q querier) func(path string) ([]string, error) {
	return func(path string) ([]string, error) {
		where, args := s.subtree(path)
		rows, err := q.QueryContext(ctx, "SELECT path FROM "+s.table+where, args...)
		if err != nil {
			return nil, ConvertDBError(err)
		}
		defer rows.Close()

		var out []string
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return nil, ConvertDBError(err)
			}
			out = append(out, p)
		}
		return out, ConvertDBError(rows.Err())
	}
}

// Write applies writes in one transaction
func (s *Store) Write(ctx context.Context, writes []db.Write) error {
	return s.withRetry(ctx, func(tx *sql.Tx) error {
		plan, err := db.PlanWrites(writes, s.existing(ctx, tx))
		if err != nil {
			return err
		}

		if len(plan.Deletes) > 0 {
			args := make([]interface{}, len(plan.Deletes))
			for i, p := range plan.Deletes {
				args[i] = p
			}
			stmt := fmt.Sprintf("DELETE FROM %s WHERE path IN (%s)",
				s.table, s.dialect.placeholders(1, len(args)))
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return ConvertDBError(err)
			}
		}

		if len(plan.Sets) == 0 {
			return nil
		}
		upsert := fmt.Sprintf(
			"INSERT INTO %s (path, value) VALUES (%s, %s) ON CONFLICT (path) DO UPDATE SET value = excluded.value",
			s.table, s.dialect.placeholder(1), s.dialect.placeholder(2))
		for _, leaf := range plan.Sets {
			data, err := json.Marshal(leaf.Value)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", db.ErrInvalidValue, leaf.Path, err)
			}
			if _, err := tx.ExecContext(ctx, upsert, leaf.Path, string(data)); err != nil {
				return ConvertDBError(err)
			}
		}
		return nil
	})
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}
