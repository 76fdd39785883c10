package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	dErrors "reconcile/pkg/domain-errors"
	"reconcile/pkg/platform/strings"
)

// IdentifyRequest is the identify input. Both fields are optional but at
// least one must be present after normalization.
type IdentifyRequest struct {
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
}

type identifyRequestJSON struct {
	Email       *string         `json:"email"`
	PhoneNumber json.RawMessage `json:"phoneNumber"`
}

// UnmarshalJSON accepts phoneNumber as a string or a JSON number.
func (r *IdentifyRequest) UnmarshalJSON(data []byte) error {
	var raw identifyRequestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Email = raw.Email
	r.PhoneNumber = nil

	phone := bytes.TrimSpace(raw.PhoneNumber)
	if len(phone) == 0 || bytes.Equal(phone, []byte("null")) {
		return nil
	}
	switch phone[0] {
	case '"':
		var s string
		if err := json.Unmarshal(phone, &s); err != nil {
			return err
		}
		r.PhoneNumber = &s
	default:
		var n json.Number
		if err := json.Unmarshal(phone, &n); err != nil {
			return fmt.Errorf("phoneNumber must be a string or a number")
		}
		s := n.String()
		r.PhoneNumber = &s
	}
	return nil
}

// Normalize trims both fields and turns empty values into absent ones.
func (r *IdentifyRequest) Normalize() {
	r.Email = strings.TrimOptional(r.Email)
	r.PhoneNumber = strings.TrimOptional(r.PhoneNumber)
}

// Validate normalizes the request and rejects it when nothing identifies the caller.
func (r *IdentifyRequest) Validate() error {
	r.Normalize()
	if r.Email == nil && r.PhoneNumber == nil {
		return dErrors.New(dErrors.CodeValidation, "email or phoneNumber is required")
	}
	return nil
}
