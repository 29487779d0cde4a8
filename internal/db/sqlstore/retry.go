package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nickmessing/firemodel/internal/db"
)

const (
	// DefaultMaxRetries is the default number of attempts for conflicting writes
	DefaultMaxRetries = 3
	// DefaultBaseBackoff is the default base backoff duration
	DefaultBaseBackoff = 50 * time.Millisecond
)

// RetryConfig configures retry behavior for write transactions
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
	}
}

// withTransaction runs fn in a transaction, rolling back on error or panic
func (s *Store) withTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", ConvertDBError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	return ConvertDBError(tx.Commit())
}

// withRetry runs fn in a transaction, retrying with exponential backoff
// while the store reports a write conflict
func (s *Store) withRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < s.retry.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("write cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}

		err := s.withTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !db.IsConflict(err) {
			return err
		}

		lastErr = err
		backoff := s.retry.BaseBackoff * time.Duration(1<<uint(attempt))
		s.logger.Debug("retrying conflicting write",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("write cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("write failed after %d attempts: %w", s.retry.MaxRetries, lastErr)
}
