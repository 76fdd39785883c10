//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"reconcile/internal/contact/models"
	"reconcile/internal/contact/service"
	"reconcile/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	storeContractSuite
	postgres *containers.PostgresContainer
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(EnsureSchema(context.Background(), s.postgres.DB, Postgres))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "contacts"))
	pg := NewPostgres(s.postgres.DB)
	s.store = pg
	s.txTimeout = 2 * time.Second
	s.tx = NewSQLTx(pg, s.txTimeout)
	s.now = time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
}

// TestAdvisoryLocksSerializeFirstSightings races identical first-time
// check-then-insert transactions; the key locks must let exactly one insert.
func (s *PostgresStoreSuite) TestAdvisoryLocksSerializeFirstSightings() {
	const goroutines = 20
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.tx.RunInTx(s.ctx, func(ctx context.Context, st service.Store) error {
				if err := st.LockIdentityKeys(ctx, []string{"email:race@x.io"}); err != nil {
					return err
				}
				found, err := st.FindByEmailOrPhone(ctx, strPtr("race@x.io"), nil)
				if err != nil || len(found) > 0 {
					return err
				}
				c, err := models.NewPrimaryContact(strPtr("race@x.io"), nil, time.Now())
				if err != nil {
					return err
				}
				_, err = st.Insert(ctx, c)
				return err
			})
		}()
	}
	wg.Wait()

	found, err := s.store.FindByEmailOrPhone(s.ctx, strPtr("race@x.io"), nil)
	s.Require().NoError(err)
	s.Len(found, 1)
}

func (s *PostgresStoreSuite) TestSchemaRejectsSecondaryWithoutLink() {
	_, err := s.postgres.DB.ExecContext(s.ctx,
		`INSERT INTO contacts (email, link_precedence, created_at, updated_at) VALUES ('x@x.io', 'secondary', now(), now())`)
	s.Error(err)
}

// TestConcurrentMergeAndAttachKeepChainsOneHop races a merge that demotes
// chain B against an attach that reaches chain B through a different email
// and phone. Whatever the interleaving, no row may link to a demoted primary.
func (s *PostgresStoreSuite) TestConcurrentMergeAndAttachKeepChainsOneHop() {
	svc := service.New(s.store, s.tx)
	const rounds = 10

	for round := 0; round < rounds; round++ {
		s.Require().NoError(s.postgres.TruncateTables(s.ctx, "contacts"))
		s.insertPrimary(strPtr("a@x.io"), strPtr("111"))
		b := s.insertPrimary(nil, strPtr("222"))
		s.insertSecondary(strPtr("z@x.io"), strPtr("222"), b.ID)

		requests := []models.IdentifyRequest{
			{Email: strPtr("a@x.io"), PhoneNumber: strPtr("222")},
			{Email: strPtr("z@x.io"), PhoneNumber: strPtr("333")},
		}
		errs := make([]error, len(requests))
		var wg sync.WaitGroup
		for i, req := range requests {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = svc.Identify(s.ctx, req)
			}()
		}
		wg.Wait()
		for _, err := range errs {
			s.Require().NoError(err)
		}

		var twoHop int
		s.Require().NoError(s.postgres.DB.QueryRowContext(s.ctx, `
			SELECT count(*) FROM contacts c
			JOIN contacts p ON c.linked_id = p.id
			WHERE c.deleted_at IS NULL AND p.link_precedence <> 'primary'`).Scan(&twoHop))
		s.Zero(twoHop, "round %d left a contact linked to a secondary", round)

		res, err := svc.Identify(s.ctx, models.IdentifyRequest{PhoneNumber: strPtr("333")})
		s.Require().NoError(err)
		s.Equal(models.OutcomeMatched, res.Outcome.Kind)
		s.ElementsMatch([]string{"a@x.io", "z@x.io"}, res.Identity.Emails)
		s.ElementsMatch([]string{"111", "222", "333"}, res.Identity.PhoneNumbers)
	}
}
