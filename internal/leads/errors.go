package leads

import "errors"

var (
	// ErrMissingContact is returned when a lead has no phone number
	ErrMissingContact = errors.New("leads: phone is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("leads: lead not found")

	// ErrLeadExists is returned when a lead with the same phone already exists
	ErrLeadExists = errors.New("leads: lead already exists")

	// ErrInvalidStatus is returned for unknown status strings
	ErrInvalidStatus = errors.New("leads: invalid status")

	// ErrInvalidPhone is returned when a phone number cannot be normalized
	ErrInvalidPhone = errors.New("leads: invalid phone number")
)
