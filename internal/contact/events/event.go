// Package events carries identity lifecycle notifications from the contact
// service to downstream consumers.
package events

import (
	"time"

	"github.com/google/uuid"

	"reconcile/internal/contact/models"
)

// Type names an identity lifecycle event.
type Type string

const (
	TypeCreated  Type = "contact.created"
	TypeAttached Type = "contact.attached"
	TypeMerged   Type = "contact.merged"
)

// Event is the broker payload. Raw emails and phone numbers are never
// included; EmailToken and PhoneToken are keyed fingerprints.
type Event struct {
	ID                string    `json:"id"`
	Type              Type      `json:"type"`
	PrimaryContactID  int64     `json:"primaryContactId"`
	ContactID         int64     `json:"contactId,omitempty"`
	DemotedPrimaryIDs []int64   `json:"demotedPrimaryIds,omitempty"`
	RelinkedIDs       []int64   `json:"relinkedIds,omitempty"`
	EmailToken        string    `json:"emailToken,omitempty"`
	PhoneToken        string    `json:"phoneToken,omitempty"`
	RequestID         string    `json:"requestId,omitempty"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// FromOutcome builds the event for a resolution, or false for outcomes that
// changed nothing.
func FromOutcome(o models.Outcome, now time.Time) (Event, bool) {
	var typ Type
	switch o.Kind {
	case models.OutcomeCreated:
		typ = TypeCreated
	case models.OutcomeAttached:
		typ = TypeAttached
	case models.OutcomeMerged:
		typ = TypeMerged
	default:
		return Event{}, false
	}
	return Event{
		ID:                uuid.NewString(),
		Type:              typ,
		PrimaryContactID:  o.PrimaryID,
		ContactID:         o.CreatedID,
		DemotedPrimaryIDs: o.DemotedIDs,
		RelinkedIDs:       o.Relinked,
		OccurredAt:        now,
	}, true
}
