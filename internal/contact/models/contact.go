package models

import (
	"time"

	dErrors "reconcile/pkg/domain-errors"
)

// LinkPrecedence marks a contact as the head of its identity chain or as a
// member folded into another chain.
type LinkPrecedence string

const (
	LinkPrimary   LinkPrecedence = "primary"
	LinkSecondary LinkPrecedence = "secondary"
)

func (p LinkPrecedence) IsValid() bool {
	return p == LinkPrimary || p == LinkSecondary
}

// Contact is a single stored sighting of a customer's email and/or phone.
//
// Invariants:
//   - At least one of Email and PhoneNumber is set
//   - LinkedID is set if and only if LinkPrecedence is secondary
//   - A secondary's LinkedID names a live primary (one hop, never a secondary)
//   - ID and CreatedAt are immutable once assigned
type Contact struct {
	ID             int64          `json:"id"`
	Email          *string        `json:"email"`
	PhoneNumber    *string        `json:"phoneNumber"`
	LinkedID       *int64         `json:"linkedId"`
	LinkPrecedence LinkPrecedence `json:"linkPrecedence"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty"`
}

// NewPrimaryContact builds an unsaved primary contact.
func NewPrimaryContact(email, phone *string, now time.Time) (*Contact, error) {
	if email == nil && phone == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "contact needs an email or a phone number")
	}
	return &Contact{
		Email:          email,
		PhoneNumber:    phone,
		LinkPrecedence: LinkPrimary,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NewSecondaryContact builds an unsaved secondary linked to primaryID.
func NewSecondaryContact(email, phone *string, primaryID int64, now time.Time) (*Contact, error) {
	if email == nil && phone == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "contact needs an email or a phone number")
	}
	if primaryID <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "secondary contact needs a primary")
	}
	linked := primaryID
	return &Contact{
		Email:          email,
		PhoneNumber:    phone,
		LinkedID:       &linked,
		LinkPrecedence: LinkSecondary,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (c *Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrimary
}

func (c *Contact) IsDeleted() bool {
	return c.DeletedAt != nil
}

// ChainID is the id of the primary heading this contact's chain.
func (c *Contact) ChainID() int64 {
	if c.IsPrimary() || c.LinkedID == nil {
		return c.ID
	}
	return *c.LinkedID
}

// Covers reports whether this row already records the given pair. Absent
// request values match anything.
func (c *Contact) Covers(email, phone *string) bool {
	if email != nil && (c.Email == nil || *c.Email != *email) {
		return false
	}
	if phone != nil && (c.PhoneNumber == nil || *c.PhoneNumber != *phone) {
		return false
	}
	return true
}

// Before orders contacts by creation time, then id.
func (c *Contact) Before(other *Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// Clone returns a deep copy.
func (c *Contact) Clone() *Contact {
	out := *c
	if c.Email != nil {
		v := *c.Email
		out.Email = &v
	}
	if c.PhoneNumber != nil {
		v := *c.PhoneNumber
		out.PhoneNumber = &v
	}
	if c.LinkedID != nil {
		v := *c.LinkedID
		out.LinkedID = &v
	}
	if c.DeletedAt != nil {
		v := *c.DeletedAt
		out.DeletedAt = &v
	}
	return &out
}
