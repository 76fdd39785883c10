package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"reconcile/internal/platform/sqlite"
)

type SQLiteStoreSuite struct {
	storeContractSuite
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, new(SQLiteStoreSuite))
}

func (s *SQLiteStoreSuite) SetupTest() {
	s.ctx = context.Background()
	db, err := sqlite.Open(s.ctx, filepath.Join(s.T().TempDir(), "contacts.db"))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	s.Require().NoError(EnsureSchema(s.ctx, db, SQLite))

	sqlStore := NewSQLite(db)
	s.store = sqlStore
	s.txTimeout = time.Second
	s.tx = NewSQLTx(sqlStore, s.txTimeout)
	s.now = time.Date(2023, 4, 1, 0, 0, 0, 123456000, time.UTC)
}

func (s *SQLiteStoreSuite) TestEnsureSchemaIsIdempotent() {
	s.NoError(EnsureSchema(s.ctx, s.store.(*SQLStore).DB(), SQLite))
}
