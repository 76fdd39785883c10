package store

import (
	"context"
	"fmt"
	"time"

	"reconcile/internal/contact/service"
	dErrors "reconcile/pkg/domain-errors"
	txcontext "reconcile/pkg/platform/tx"
)

const defaultSQLTxTimeout = 5 * time.Second

// SQLTx runs resolutions in a database transaction carried through ctx.
type SQLTx struct {
	store   *SQLStore
	timeout time.Duration
}

// NewSQLTx wraps store. A zero timeout uses the default of five seconds.
func NewSQLTx(store *SQLStore, timeout time.Duration) *SQLTx {
	if timeout <= 0 {
		timeout = defaultSQLTxTimeout
	}
	return &SQLTx{store: store, timeout: timeout}
}

// RunInTx begins a transaction, runs fn and commits. The transaction ends at
// the earlier of ctx's deadline and the configured timeout. Any error from fn,
// or a deadline reached first, rolls back. Nested calls join the outer
// transaction.
func (t *SQLTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx, t.store)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", ClassifyError(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), t.store); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	if err := tx.Commit(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return dErrors.Wrap(ctxErr, dErrors.CodeTimeout, "transaction aborted before commit")
		}
		return fmt.Errorf("commit transaction: %w", ClassifyError(err))
	}
	return nil
}
