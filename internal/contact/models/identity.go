package models

// Identity is the consolidated, externally visible view of one chain.
type Identity struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// OutcomeKind tags which resolution branch fired.
type OutcomeKind string

const (
	// OutcomeCreated: nothing matched, a new primary was stored.
	OutcomeCreated OutcomeKind = "created"
	// OutcomeMatched: the pair was already recorded on one chain, no writes.
	OutcomeMatched OutcomeKind = "matched"
	// OutcomeAttached: one chain matched and a secondary was added to it.
	OutcomeAttached OutcomeKind = "attached"
	// OutcomeMerged: several chains matched and were folded into the oldest.
	OutcomeMerged OutcomeKind = "merged"
)

// Outcome is the result of resolving one request.
type Outcome struct {
	Kind      OutcomeKind
	PrimaryID int64
	// CreatedID is the id of the row inserted by this resolution, or 0.
	CreatedID int64
	// DemotedIDs are the former primaries folded in by a merge, oldest first.
	DemotedIDs []int64
	// Relinked are secondaries moved from a demoted primary to PrimaryID.
	Relinked []int64
}

// Wrote reports whether the resolution changed stored contacts.
func (o Outcome) Wrote() bool {
	return o.Kind != OutcomeMatched
}

// TouchedChains lists every chain id whose consolidated view changed.
func (o Outcome) TouchedChains() []int64 {
	if !o.Wrote() {
		return nil
	}
	return append([]int64{o.PrimaryID}, o.DemotedIDs...)
}
