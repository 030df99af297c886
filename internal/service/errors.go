package service

import (
	"errors"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/lifecycle"
)

// Domain error kinds. Each is the terminal outcome of the call that returns
// it; none are retried.
var (
	ErrProfileNotFound   = errors.New("participant profile not found; complete profile setup first")
	ErrProfileExists     = errors.New("participant profile already exists")
	ErrEventNotFound     = errors.New("event not found")
	ErrAlreadyRegistered = errors.New("participant already registered for this event")
	ErrEventFull         = errors.New("event is full")
	ErrTeamNameRequired  = errors.New("team name is required for team events")
	ErrModeMismatch      = errors.New("registration type does not match the event")
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRequestNotFound   = errors.New("access request not found")
	ErrAlreadyReviewed   = errors.New("access request already reviewed")
	ErrInvalidDecision   = errors.New("decision must be approved or rejected")
	ErrAccessNotGranted  = errors.New("no approved access request for this event name")
)

var domainErrors = []error{
	ErrProfileNotFound, ErrProfileExists, ErrEventNotFound, ErrAlreadyRegistered,
	ErrEventFull, ErrTeamNameRequired, ErrModeMismatch, ErrMissingField,
	ErrInvalidInput, ErrRequestNotFound, ErrAlreadyReviewed, ErrInvalidDecision,
	ErrAccessNotGranted, lifecycle.ErrInvalidDate,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
