package service

import (
	"context"
	"time"

	"reconcile/internal/contact/events"
	"reconcile/internal/contact/models"
)

// Store is the contact persistence contract. Every read excludes
// soft-deleted rows. Implementations return sentinel errors.
type Store interface {
	// FindByEmailOrPhone returns live contacts whose email equals email or
	// whose phone equals phone. Nil arguments match nothing.
	FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]*models.Contact, error)
	FindByID(ctx context.Context, id int64) (*models.Contact, error)
	// FindByLinkedID returns the live secondaries of primaryID.
	FindByLinkedID(ctx context.Context, primaryID int64) ([]*models.Contact, error)
	// Insert persists c, assigning its ID.
	Insert(ctx context.Context, c *models.Contact) (*models.Contact, error)
	UpdatePrecedenceAndLink(ctx context.Context, id int64, precedence models.LinkPrecedence, linkedID *int64, now time.Time) error
	// RelinkSecondaries points every secondary of from at to and returns the moved ids.
	RelinkSecondaries(ctx context.Context, from, to int64, now time.Time) ([]int64, error)
	// LockIdentityKeys serializes resolutions that share a key (an email, a
	// phone or a chain head) for the rest of the surrounding transaction.
	LockIdentityKeys(ctx context.Context, keys []string) error
	Ping(ctx context.Context) error
}

// ContactStoreTx provides the transactional boundary for one resolution.
// fn receives a context and store bound to the transaction; returning an
// error rolls every mutation back.
type ContactStoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// ViewCache caches consolidated identities by primary id. Implementations
// swallow their own failures; a miss is always safe.
type ViewCache interface {
	Get(ctx context.Context, primaryID int64) (*models.Identity, bool)
	Set(ctx context.Context, identity *models.Identity)
	Invalidate(ctx context.Context, primaryIDs ...int64)
}

// EventQueue accepts lifecycle events without blocking the caller.
type EventQueue interface {
	Enqueue(ctx context.Context, evt events.Event)
}
