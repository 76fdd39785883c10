package service

import (
	"context"
	"slices"

	"reconcile/internal/contact/models"
	dErrors "reconcile/pkg/domain-errors"
	"reconcile/pkg/platform/strings"
)

func assemble(ctx context.Context, store Store, primaryID int64) (*models.Identity, error) {
	primary, err := store.FindByID(ctx, primaryID)
	if err != nil {
		return nil, translateStoreError(err, "primary contact not found")
	}
	if !primary.IsPrimary() {
		return nil, dErrors.New(dErrors.CodeNotFound, "contact is not a primary")
	}
	secondaries, err := store.FindByLinkedID(ctx, primaryID)
	if err != nil {
		return nil, translateStoreError(err, "failed to load linked contacts")
	}
	return consolidate(primary, secondaries), nil
}

// consolidate builds the identity view: the primary's values first, then the
// secondaries' distinct values in creation order.
func consolidate(primary *models.Contact, secondaries []*models.Contact) *models.Identity {
	ordered := slices.Clone(secondaries)
	slices.SortStableFunc(ordered, compareContacts)

	emails := make([]string, 0, len(ordered)+1)
	phones := make([]string, 0, len(ordered)+1)
	ids := make([]int64, 0, len(ordered))
	for _, c := range append([]*models.Contact{primary}, ordered...) {
		if c.Email != nil {
			emails = append(emails, *c.Email)
		}
		if c.PhoneNumber != nil {
			phones = append(phones, *c.PhoneNumber)
		}
		if c.ID != primary.ID {
			ids = append(ids, c.ID)
		}
	}

	return &models.Identity{
		PrimaryContactID:    primary.ID,
		Emails:              strings.Dedupe(emails),
		PhoneNumbers:        strings.Dedupe(phones),
		SecondaryContactIDs: ids,
	}
}
