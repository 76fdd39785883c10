package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"reconcile/internal/contact/models"
	"reconcile/internal/contact/service"
	dErrors "reconcile/pkg/domain-errors"
	"reconcile/pkg/platform/sentinel"
)

// defaultMemoryTxTimeout bounds how long a transaction may hold the store.
const defaultMemoryTxTimeout = 5 * time.Second

// InMemory is a process-local contact store. Transactions are serialized:
// RunInTx holds the write lock, stages changes on a copy of the table and
// swaps the copy in only when fn succeeds.
type InMemory struct {
	mu      sync.RWMutex
	table   *memTable
	timeout time.Duration
}

type memTable struct {
	contacts map[int64]*models.Contact
	nextID   int64
}

type memTxKey struct{}

// MemoryOption configures an InMemory store.
type MemoryOption func(*InMemory)

// WithTxTimeout bounds each transaction. Non-positive values keep the default.
func WithTxTimeout(timeout time.Duration) MemoryOption {
	return func(s *InMemory) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewInMemory creates an empty store. Ids start at 1.
func NewInMemory(opts ...MemoryOption) *InMemory {
	s := &InMemory{
		table:   &memTable{contacts: make(map[int64]*models.Contact), nextID: 1},
		timeout: defaultMemoryTxTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx runs fn against a staged copy of the table. Nested calls join the
// outer transaction.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if staged, ok := s.staged(ctx); ok {
		return fn(ctx, staged)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	view := &memView{owner: s, table: s.table.clone()}
	if err := fn(context.WithValue(ctx, memTxKey{}, view), view); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	s.table = view.table
	return nil
}

func (s *InMemory) read() *memView {
	return &memView{owner: s, table: s.table}
}

// staged returns the transaction view carried by ctx, if it belongs to s.
func (s *InMemory) staged(ctx context.Context) (*memView, bool) {
	v, ok := ctx.Value(memTxKey{}).(*memView)
	return v, ok && v.owner == s
}

func (s *InMemory) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]*models.Contact, error) {
	if v, ok := s.staged(ctx); ok {
		return v.FindByEmailOrPhone(ctx, email, phone)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindByEmailOrPhone(ctx, email, phone)
}

func (s *InMemory) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	if v, ok := s.staged(ctx); ok {
		return v.FindByID(ctx, id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindByID(ctx, id)
}

func (s *InMemory) FindByLinkedID(ctx context.Context, primaryID int64) ([]*models.Contact, error) {
	if v, ok := s.staged(ctx); ok {
		return v.FindByLinkedID(ctx, primaryID)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindByLinkedID(ctx, primaryID)
}

func (s *InMemory) Insert(ctx context.Context, c *models.Contact) (*models.Contact, error) {
	if v, ok := s.staged(ctx); ok {
		return v.Insert(ctx, c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().Insert(ctx, c)
}

func (s *InMemory) UpdatePrecedenceAndLink(ctx context.Context, id int64, precedence models.LinkPrecedence, linkedID *int64, now time.Time) error {
	if v, ok := s.staged(ctx); ok {
		return v.UpdatePrecedenceAndLink(ctx, id, precedence, linkedID, now)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().UpdatePrecedenceAndLink(ctx, id, precedence, linkedID, now)
}

func (s *InMemory) RelinkSecondaries(ctx context.Context, from, to int64, now time.Time) ([]int64, error) {
	if v, ok := s.staged(ctx); ok {
		return v.RelinkSecondaries(ctx, from, to, now)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().RelinkSecondaries(ctx, from, to, now)
}

// LockIdentityKeys is a no-op; RunInTx already serializes writers.
func (s *InMemory) LockIdentityKeys(context.Context, []string) error {
	return nil
}

func (s *InMemory) Ping(context.Context) error {
	return nil
}

// SoftDelete marks a contact deleted. Deleted rows are invisible to every query.
func (s *InMemory) SoftDelete(_ context.Context, id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.table.contacts[id]
	if !ok || c.IsDeleted() {
		return fmt.Errorf("contact %d: %w", id, sentinel.ErrNotFound)
	}
	at := now
	c.DeletedAt = &at
	c.UpdatedAt = now
	return nil
}

// Len counts live contacts.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.table.contacts {
		if !c.IsDeleted() {
			n++
		}
	}
	return n
}

func (t *memTable) clone() *memTable {
	out := &memTable{contacts: make(map[int64]*models.Contact, len(t.contacts)), nextID: t.nextID}
	for id, c := range t.contacts {
		out.contacts[id] = c.Clone()
	}
	return out
}

// memView implements the store contract over one table without locking;
// callers hold the owner's lock.
type memView struct {
	owner *InMemory
	table *memTable
}

func (v *memView) FindByEmailOrPhone(_ context.Context, email, phone *string) ([]*models.Contact, error) {
	return v.collect(func(c *models.Contact) bool {
		return (email != nil && c.Email != nil && *c.Email == *email) ||
			(phone != nil && c.PhoneNumber != nil && *c.PhoneNumber == *phone)
	}), nil
}

func (v *memView) FindByID(_ context.Context, id int64) (*models.Contact, error) {
	c, ok := v.table.contacts[id]
	if !ok || c.IsDeleted() {
		return nil, fmt.Errorf("contact %d: %w", id, sentinel.ErrNotFound)
	}
	return c.Clone(), nil
}

func (v *memView) FindByLinkedID(_ context.Context, primaryID int64) ([]*models.Contact, error) {
	return v.collect(func(c *models.Contact) bool {
		return c.LinkedID != nil && *c.LinkedID == primaryID
	}), nil
}

func (v *memView) Insert(_ context.Context, c *models.Contact) (*models.Contact, error) {
	stored := c.Clone()
	stored.ID = v.table.nextID
	v.table.nextID++
	v.table.contacts[stored.ID] = stored
	return stored.Clone(), nil
}

func (v *memView) UpdatePrecedenceAndLink(_ context.Context, id int64, precedence models.LinkPrecedence, linkedID *int64, now time.Time) error {
	c, ok := v.table.contacts[id]
	if !ok || c.IsDeleted() {
		return fmt.Errorf("contact %d: %w", id, sentinel.ErrNotFound)
	}
	c.LinkPrecedence = precedence
	c.LinkedID = nil
	if linkedID != nil {
		l := *linkedID
		c.LinkedID = &l
	}
	c.UpdatedAt = now
	return nil
}

func (v *memView) RelinkSecondaries(_ context.Context, from, to int64, now time.Time) ([]int64, error) {
	var moved []int64
	for _, c := range v.table.contacts {
		if c.IsDeleted() || c.LinkedID == nil || *c.LinkedID != from {
			continue
		}
		target := to
		c.LinkedID = &target
		c.UpdatedAt = now
		moved = append(moved, c.ID)
	}
	slices.Sort(moved)
	return moved, nil
}

func (v *memView) LockIdentityKeys(context.Context, []string) error {
	return nil
}

func (v *memView) Ping(context.Context) error {
	return nil
}

// collect returns clones of live contacts matching keep, ordered by id.
func (v *memView) collect(keep func(*models.Contact) bool) []*models.Contact {
	var out []*models.Contact
	for _, c := range v.table.contacts {
		if !c.IsDeleted() && keep(c) {
			out = append(out, c.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Contact) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
