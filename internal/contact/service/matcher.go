package service

import (
	"context"
	"slices"
	"strconv"

	"reconcile/internal/contact/models"
	dErrors "reconcile/pkg/domain-errors"
)

func findMatches(ctx context.Context, store Store, email, phone *string) ([]*models.Contact, error) {
	if email == nil && phone == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "email or phoneNumber is required")
	}
	matches, err := store.FindByEmailOrPhone(ctx, email, phone)
	if err != nil {
		return nil, translateStoreError(err, "failed to look up contacts")
	}
	slices.SortStableFunc(matches, compareContacts)
	return matches, nil
}

// maxChainLockRounds bounds how often matching is repeated while concurrent
// merges keep moving the matched contacts to other chains.
const maxChainLockRounds = 3

// lockMatches locks the request's identity keys, then the chains its matches
// belong to, and returns matches read while holding every chain lock. A chain
// is only rewritten by a resolution holding its lock, so the returned matches
// and their primaries stay put until the transaction ends.
func lockMatches(ctx context.Context, store Store, email, phone *string) ([]*models.Contact, error) {
	if err := store.LockIdentityKeys(ctx, identityKeys(email, phone)); err != nil {
		return nil, translateStoreError(err, "failed to lock identity keys")
	}
	matches, err := findMatches(ctx, store, email, phone)
	if err != nil {
		return nil, err
	}

	locked := make(map[int64]struct{})
	for round := 0; round < maxChainLockRounds; round++ {
		heads, err := chainHeads(ctx, store, matches)
		if err != nil {
			return nil, err
		}
		pending := make([]int64, 0, len(heads))
		for _, h := range heads {
			if _, ok := locked[h.ID]; !ok {
				pending = append(pending, h.ID)
			}
		}
		if len(pending) == 0 {
			return matches, nil
		}
		slices.Sort(pending)
		if err := store.LockIdentityKeys(ctx, chainKeys(pending)); err != nil {
			return nil, translateStoreError(err, "failed to lock contact chains")
		}
		for _, id := range pending {
			locked[id] = struct{}{}
		}
		if matches, err = findMatches(ctx, store, email, phone); err != nil {
			return nil, err
		}
	}
	return nil, dErrors.New(dErrors.CodeConflict, "contact chains changed during resolution")
}

// identityKeys names the lock keys for a request, email before phone, so
// concurrent resolutions acquire them in the same order.
func identityKeys(email, phone *string) []string {
	keys := make([]string, 0, 2)
	if email != nil {
		keys = append(keys, "email:"+*email)
	}
	if phone != nil {
		keys = append(keys, "phone:"+*phone)
	}
	return keys
}

// chainKeys names the lock keys for chains headed by primaryIDs, in the order given.
func chainKeys(primaryIDs []int64) []string {
	keys := make([]string, 0, len(primaryIDs))
	for _, id := range primaryIDs {
		keys = append(keys, "chain:"+strconv.FormatInt(id, 10))
	}
	return keys
}

func compareContacts(a, b *models.Contact) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	default:
		return 0
	}
}
