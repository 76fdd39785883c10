package store

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"reconcile/internal/contact/models"
	"reconcile/internal/contact/service"
	dErrors "reconcile/pkg/domain-errors"
	"reconcile/pkg/platform/sentinel"
)

// softDeleter is implemented by every store in this package.
type softDeleter interface {
	SoftDelete(ctx context.Context, id int64, now time.Time) error
}

type contactStore interface {
	service.Store
	softDeleter
}

// storeContractSuite exercises the store contract. Backend suites embed it
// and set store, tx and the timeout tx was built with in SetupTest.
type storeContractSuite struct {
	suite.Suite
	ctx       context.Context
	store     contactStore
	tx        service.ContactStoreTx
	txTimeout time.Duration
	now       time.Time
}

func strPtr(s string) *string { return &s }

func (s *storeContractSuite) insertPrimary(email, phone *string) *models.Contact {
	c, err := models.NewPrimaryContact(email, phone, s.tick())
	s.Require().NoError(err)
	stored, err := s.store.Insert(s.ctx, c)
	s.Require().NoError(err)
	return stored
}

func (s *storeContractSuite) insertSecondary(email, phone *string, primaryID int64) *models.Contact {
	c, err := models.NewSecondaryContact(email, phone, primaryID, s.tick())
	s.Require().NoError(err)
	stored, err := s.store.Insert(s.ctx, c)
	s.Require().NoError(err)
	return stored
}

func (s *storeContractSuite) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func ids(contacts []*models.Contact) []int64 {
	out := make([]int64, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.ID)
	}
	return out
}

func (s *storeContractSuite) TestInsertAssignsIDsAndRoundTrips() {
	a := s.insertPrimary(strPtr("lorraine@hillvalley.edu"), strPtr("123456"))
	b := s.insertPrimary(nil, strPtr("999"))
	s.Greater(a.ID, int64(0))
	s.Greater(b.ID, a.ID)

	found, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal("lorraine@hillvalley.edu", *found.Email)
	s.Equal("123456", *found.PhoneNumber)
	s.Nil(found.LinkedID)
	s.Equal(models.LinkPrimary, found.LinkPrecedence)
	s.True(found.CreatedAt.Equal(a.CreatedAt), "created_at round trips: %v vs %v", found.CreatedAt, a.CreatedAt)

	found, err = s.store.FindByID(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Nil(found.Email)
}

func (s *storeContractSuite) TestFindByIDMissing() {
	_, err := s.store.FindByID(s.ctx, 4242)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestFindByEmailOrPhone() {
	a := s.insertPrimary(strPtr("a@x.io"), strPtr("111"))
	b := s.insertPrimary(strPtr("b@x.io"), strPtr("222"))
	c := s.insertSecondary(strPtr("c@x.io"), strPtr("111"), a.ID)
	s.insertPrimary(strPtr("d@x.io"), nil)

	s.Run("either field matches", func() {
		got, err := s.store.FindByEmailOrPhone(s.ctx, strPtr("b@x.io"), strPtr("111"))
		s.Require().NoError(err)
		s.ElementsMatch([]int64{a.ID, b.ID, c.ID}, ids(got))
	})

	s.Run("absent field matches nothing", func() {
		got, err := s.store.FindByEmailOrPhone(s.ctx, nil, strPtr("222"))
		s.Require().NoError(err)
		s.Equal([]int64{b.ID}, ids(got))
	})

	s.Run("no arguments is empty", func() {
		got, err := s.store.FindByEmailOrPhone(s.ctx, nil, nil)
		s.Require().NoError(err)
		s.Empty(got)
	})

	s.Run("comparison is exact", func() {
		got, err := s.store.FindByEmailOrPhone(s.ctx, strPtr("A@x.io"), nil)
		s.Require().NoError(err)
		s.Empty(got)
	})
}

func (s *storeContractSuite) TestFindByLinkedID() {
	a := s.insertPrimary(strPtr("a@x.io"), nil)
	c1 := s.insertSecondary(nil, strPtr("111"), a.ID)
	c2 := s.insertSecondary(nil, strPtr("222"), a.ID)
	s.insertPrimary(strPtr("b@x.io"), nil)

	got, err := s.store.FindByLinkedID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal([]int64{c1.ID, c2.ID}, ids(got))
	s.Equal(a.ID, *got[0].LinkedID)
	s.Equal(models.LinkSecondary, got[0].LinkPrecedence)
}

func (s *storeContractSuite) TestUpdateAndRelink() {
	a := s.insertPrimary(strPtr("a@x.io"), nil)
	b := s.insertPrimary(nil, strPtr("222"))
	b1 := s.insertSecondary(strPtr("b1@x.io"), strPtr("222"), b.ID)
	b2 := s.insertSecondary(strPtr("b2@x.io"), strPtr("222"), b.ID)
	now := s.tick()

	moved, err := s.store.RelinkSecondaries(s.ctx, b.ID, a.ID, now)
	s.Require().NoError(err)
	s.Equal([]int64{b1.ID, b2.ID}, moved)

	aID := a.ID
	s.Require().NoError(s.store.UpdatePrecedenceAndLink(s.ctx, b.ID, models.LinkSecondary, &aID, now))

	demoted, err := s.store.FindByID(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(models.LinkSecondary, demoted.LinkPrecedence)
	s.Equal(a.ID, *demoted.LinkedID)
	s.True(demoted.UpdatedAt.Equal(now))

	chain, err := s.store.FindByLinkedID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal([]int64{b.ID, b1.ID, b2.ID}, ids(chain))

	left, err := s.store.FindByLinkedID(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Empty(left)
}

func (s *storeContractSuite) TestUpdateMissingContact() {
	err := s.store.UpdatePrecedenceAndLink(s.ctx, 999, models.LinkPrimary, nil, s.tick())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestSoftDeletedRowsAreInvisible() {
	a := s.insertPrimary(strPtr("a@x.io"), strPtr("111"))
	c := s.insertSecondary(strPtr("c@x.io"), strPtr("111"), a.ID)
	s.Require().NoError(s.store.SoftDelete(s.ctx, c.ID, s.tick()))

	_, err := s.store.FindByID(s.ctx, c.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	got, err := s.store.FindByEmailOrPhone(s.ctx, strPtr("c@x.io"), strPtr("111"))
	s.Require().NoError(err)
	s.Equal([]int64{a.ID}, ids(got))

	linked, err := s.store.FindByLinkedID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Empty(linked)

	moved, err := s.store.RelinkSecondaries(s.ctx, a.ID, 77, s.tick())
	s.Require().NoError(err)
	s.Empty(moved)
}

func (s *storeContractSuite) TestTransactionRollsBack() {
	a := s.insertPrimary(strPtr("a@x.io"), nil)
	b := s.insertPrimary(strPtr("b@x.io"), nil)
	boom := errors.New("boom")

	err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st service.Store) error {
		aID := a.ID
		if err := st.UpdatePrecedenceAndLink(ctx, b.ID, models.LinkSecondary, &aID, s.tick()); err != nil {
			return err
		}
		c, err := models.NewSecondaryContact(strPtr("c@x.io"), nil, a.ID, s.tick())
		s.Require().NoError(err)
		if _, err := st.Insert(ctx, c); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	found, err := s.store.FindByID(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(models.LinkPrimary, found.LinkPrecedence)
	got, err := s.store.FindByEmailOrPhone(s.ctx, strPtr("c@x.io"), nil)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *storeContractSuite) TestTransactionCommits() {
	a := s.insertPrimary(strPtr("a@x.io"), nil)

	var created *models.Contact
	err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st service.Store) error {
		s.Require().NoError(st.LockIdentityKeys(ctx, []string{"email:a@x.io", "phone:111"}))
		c, err := models.NewSecondaryContact(strPtr("a@x.io"), strPtr("111"), a.ID, s.tick())
		s.Require().NoError(err)
		created, err = st.Insert(ctx, c)
		if err != nil {
			return err
		}
		// reads inside the transaction see its own writes
		linked, err := st.FindByLinkedID(ctx, a.ID)
		if err != nil {
			return err
		}
		s.Equal([]int64{created.ID}, ids(linked))
		return nil
	})
	s.Require().NoError(err)

	linked, err := s.store.FindByLinkedID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal([]int64{created.ID}, ids(linked))
}

func (s *storeContractSuite) TestCancelledContextAbortsTransaction() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	called := false
	err := s.tx.RunInTx(ctx, func(context.Context, service.Store) error {
		called = true
		return nil
	})
	s.Error(err)
	s.False(called)
}

func (s *storeContractSuite) TestTxTimeoutAppliesUnderLongerRequestDeadline() {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	a := s.insertPrimary(strPtr("a@x.io"), nil)

	start := time.Now()
	err := s.tx.RunInTx(ctx, func(txCtx context.Context, st service.Store) error {
		deadline, ok := txCtx.Deadline()
		s.Require().True(ok)
		s.LessOrEqual(time.Until(deadline), s.txTimeout)

		if err := st.UpdatePrecedenceAndLink(txCtx, a.ID, models.LinkPrimary, nil, s.tick()); err != nil {
			return err
		}
		select {
		case <-txCtx.Done():
		case <-time.After(s.txTimeout + 5*time.Second):
		}
		return nil
	})

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout), "got %v", err)
	s.Less(time.Since(start), s.txTimeout+5*time.Second)
	s.NoError(ctx.Err(), "request deadline is still open")
}

func (s *storeContractSuite) TestPing() {
	s.NoError(s.store.Ping(s.ctx))
}
