package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTxNilLeavesContextUntouched(t *testing.T) {
	ctx := context.Background()
	got := WithTx(ctx, nil)

	_, ok := From(got)
	assert.False(t, ok)
	assert.Equal(t, ctx, got)
}

func TestFromReturnsStoredTx(t *testing.T) {
	stored := &sql.Tx{}
	ctx := WithTx(context.Background(), stored)

	got, ok := From(ctx)
	assert.True(t, ok)
	assert.Same(t, stored, got)
	assert.Same(t, stored, ExecutorFor(ctx, nil))
}

func TestExecutorForFallsBackToDB(t *testing.T) {
	db := &sql.DB{}
	assert.Same(t, db, ExecutorFor(context.Background(), db))
}
