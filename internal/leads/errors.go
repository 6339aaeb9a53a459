package leads

import "errors"

var (
	// ErrInvalidName is returned when the name is invalid
	ErrInvalidName = errors.New("name is required")

	// ErrMissingContact is returned when no phone number or email is given
	ErrMissingContact = errors.New("contact is required")

	// ErrInvalidUrgency is returned for an urgency outside UrgencyOptions
	ErrInvalidUrgency = errors.New("urgency must be one of immediate, this_month, next_month, researching")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")
)
