package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/nickmessing/firemodel/internal/db"
)

// ConvertDBError converts driver errors to store errors
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", db.ErrConflict, pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return fmt.Errorf("%w: %s", db.ErrUnavailable, pgErr.Message)
		}
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", db.ErrConflict, err)
		case sqlite3.ErrCantOpen:
			return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
		}
		return err
	}

	if isRetryableMessage(err.Error()) {
		return fmt.Errorf("%w: %v", db.ErrConflict, err)
	}
	return err
}

// isRetryableMessage detects conflicts reported only through the message
func isRetryableMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range []string{
		"deadlock detected",
		"could not serialize access",
		"database is locked",
		"40p01",
		"40001",
	} {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
