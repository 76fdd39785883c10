package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"reconcile/pkg/platform/sentinel"
)

// ClassifyError tags driver errors with a sentinel so the service can classify
// them without knowing which driver is in use. The original error stays in
// the chain for logging.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %w", sentinel.ErrNotFound, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}

	if code, ok := sqlState(err); ok {
		switch {
		case code == "40001" || code == "40P01":
			return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
		case len(code) == 5 && (code[:2] == "08" || code[:2] == "57"):
			return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}

// sqlState extracts the SQLSTATE from a pgx or lib/pq error.
func sqlState(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	return "", false
}
