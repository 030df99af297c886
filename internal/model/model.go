// Package model defines the core domain types for the campus event
// admission service.
package model

import "time"

// RegistrationMode controls how participants are grouped when they register.
type RegistrationMode string

const (
	ModeIndividual RegistrationMode = "individual"
	ModeTeam       RegistrationMode = "team"
)

// Valid reports whether m is a known registration mode.
func (m RegistrationMode) Valid() bool {
	return m == ModeIndividual || m == ModeTeam
}

// Event represents an event created by an approved admin.
// Capacity is nil for events without a seat limit.
type Event struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	StartDate        string           `json:"start_date"`
	EndDate          string           `json:"end_date"`
	Capacity         *int             `json:"capacity"`
	RegisteredCount  int              `json:"registered_count"`
	RegistrationMode RegistrationMode `json:"registration_mode"`
	CreatedBy        string           `json:"created_by"`
	CreatedAt        time.Time        `json:"created_at"`
}

// IsFull returns true when a capacity is set and every seat is taken.
func (e *Event) IsFull() bool {
	return e.Capacity != nil && e.RegisteredCount >= *e.Capacity
}

// Registration is the ledger entry that groups members of one event.
// Individual events share a single row; team events get one row per team.
type Registration struct {
	ID               string           `json:"id"`
	EventID          string           `json:"event_id"`
	RegistrationMode RegistrationMode `json:"registration_mode"`
	TeamName         string           `json:"team_name,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// RegistrationMember links a participant profile to a Registration.
type RegistrationMember struct {
	ID             string    `json:"id"`
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	ProfileID      string    `json:"profile_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// ParticipantProfile is the attendee record resolved from a user key.
type ParticipantProfile struct {
	ID                    string    `json:"id"`
	UserKey               string    `json:"user_key"`
	DisplayName           string    `json:"display_name"`
	RegisteredEventsCount int       `json:"registered_events_count"`
	CreatedAt             time.Time `json:"created_at"`
}

// AccessStatus is the state of an AccessRequest.
type AccessStatus string

const (
	AccessPending  AccessStatus = "pending"
	AccessApproved AccessStatus = "approved"
	AccessRejected AccessStatus = "rejected"
)

// AccessRequest is an admin's petition to create an event under a name.
type AccessRequest struct {
	ID               string       `json:"id"`
	AdminID          string       `json:"admin_id"`
	EventName        string       `json:"event_name"`
	Status           AccessStatus `json:"status"`
	ReviewedBy       string       `json:"reviewed_by,omitempty"`
	ReviewerUsername string       `json:"reviewer_username,omitempty"`
	RequestedAt      time.Time    `json:"requested_at"`
	ReviewedAt       *time.Time   `json:"reviewed_at,omitempty"`
	ConsumedAt       *time.Time   `json:"consumed_at,omitempty"`
}

// RosterEntry is a Registration together with its member profile ids.
type RosterEntry struct {
	Registration
	Members []string `json:"members"`
}
