package service

import (
	"context"
	"errors"

	dErrors "reconcile/pkg/domain-errors"
	"reconcile/pkg/platform/sentinel"
)

// translateStoreError converts store sentinels into coded domain errors.
// Errors that already carry a code pass through unchanged.
func translateStoreError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
