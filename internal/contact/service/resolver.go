package service

import (
	"context"
	"slices"
	"strconv"
	"time"

	"reconcile/internal/contact/models"
	dErrors "reconcile/pkg/domain-errors"
)

// resolve applies the resolution decision table to a match set:
//
//	no matches                       -> store a primary           (created)
//	one chain, pair already recorded -> no writes                 (matched)
//	one chain, pair is new           -> store a secondary         (attached)
//	several chains                   -> fold into oldest primary  (merged)
//
// A merge stores a secondary for the pair too when no row records it yet.
// It must run inside a transaction.
func resolve(ctx context.Context, store Store, email, phone *string, matches []*models.Contact, now time.Time) (models.Outcome, error) {
	if len(matches) == 0 {
		contact, err := models.NewPrimaryContact(email, phone, now)
		if err != nil {
			return models.Outcome{}, err
		}
		created, err := store.Insert(ctx, contact)
		if err != nil {
			return models.Outcome{}, translateStoreError(err, "failed to create contact")
		}
		return models.Outcome{Kind: models.OutcomeCreated, PrimaryID: created.ID, CreatedID: created.ID}, nil
	}

	primaries, err := chainHeads(ctx, store, matches)
	if err != nil {
		return models.Outcome{}, err
	}
	survivor := primaries[0]
	covered := slices.ContainsFunc(matches, func(c *models.Contact) bool {
		return c.Covers(email, phone)
	})

	outcome := models.Outcome{Kind: models.OutcomeMatched, PrimaryID: survivor.ID}
	if len(primaries) > 1 {
		outcome.Kind = models.OutcomeMerged
		for _, loser := range primaries[1:] {
			relinked, err := store.RelinkSecondaries(ctx, loser.ID, survivor.ID, now)
			if err != nil {
				return models.Outcome{}, translateStoreError(err, "failed to relink contacts")
			}
			survivorID := survivor.ID
			if err := store.UpdatePrecedenceAndLink(ctx, loser.ID, models.LinkSecondary, &survivorID, now); err != nil {
				return models.Outcome{}, translateStoreError(err, "failed to demote contact")
			}
			outcome.DemotedIDs = append(outcome.DemotedIDs, loser.ID)
			outcome.Relinked = append(outcome.Relinked, relinked...)
		}
	}
	if covered {
		return outcome, nil
	}

	contact, err := models.NewSecondaryContact(email, phone, survivor.ID, now)
	if err != nil {
		return models.Outcome{}, err
	}
	created, err := store.Insert(ctx, contact)
	if err != nil {
		return models.Outcome{}, translateStoreError(err, "failed to create contact")
	}
	outcome.CreatedID = created.ID
	if outcome.Kind == models.OutcomeMatched {
		outcome.Kind = models.OutcomeAttached
	}
	return outcome, nil
}

// chainHeads returns the distinct primaries heading the matched contacts,
// oldest first. Primaries that were not matched directly are loaded.
func chainHeads(ctx context.Context, store Store, matches []*models.Contact) ([]*models.Contact, error) {
	heads := make(map[int64]*models.Contact)
	for _, c := range matches {
		if c.IsPrimary() {
			heads[c.ID] = c
		}
	}
	for _, c := range matches {
		chainID := c.ChainID()
		if _, ok := heads[chainID]; ok {
			continue
		}
		primary, err := store.FindByID(ctx, chainID)
		if err != nil {
			err = translateStoreError(err, "failed to load primary contact")
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal,
					"contact "+strconv.FormatInt(c.ID, 10)+" links to a missing primary")
			}
			return nil, err
		}
		if !primary.IsPrimary() {
			return nil, dErrors.New(dErrors.CodeInternal,
				"contact "+strconv.FormatInt(c.ID, 10)+" links to a secondary")
		}
		heads[chainID] = primary
	}

	out := make([]*models.Contact, 0, len(heads))
	for _, p := range heads {
		out = append(out, p)
	}
	slices.SortFunc(out, compareContacts)
	return out, nil
}
