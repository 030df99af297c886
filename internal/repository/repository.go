// Package repository declares the persistence contracts for the admission
// service. The postgres and sqlite subpackages implement them against the
// same schema.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness rule or a
// conditional update matches no row.
var ErrConflict = errors.New("conflict")

// ErrNoGrant is returned when an admin holds no unused approved access
// request for an event name.
var ErrNoGrant = errors.New("no approved access request for event name")

// ErrCapacityReached is returned when a guarded counter increment would
// exceed the event capacity.
var ErrCapacityReached = errors.New("event capacity reached")

// Profiles persists participant profiles.
type Profiles interface {
	CreateProfile(ctx context.Context, p *model.ParticipantProfile) error
	GetProfileByUserKey(ctx context.Context, userKey string) (*model.ParticipantProfile, error)
}

// Events persists events and reads their rosters.
type Events interface {
	// CreateEventWithGrant consumes one approved access request held by
	// e.CreatedBy for e.Name and inserts e, atomically.
	CreateEventWithGrant(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	ListRoster(ctx context.Context, eventID string) ([]model.RosterEntry, error)
}

// AdmissionTx is the set of reads and writes an admission performs inside a
// single transaction.
type AdmissionTx interface {
	// LockEvent reads the event and holds it against concurrent admissions
	// until the transaction ends.
	LockEvent(ctx context.Context, eventID string) (*model.Event, error)
	IsMember(ctx context.Context, eventID, profileID string) (bool, error)
	// FindRegistration returns the shared row when teamName is empty and
	// the team's row otherwise.
	FindRegistration(ctx context.Context, eventID, teamName string) (*model.Registration, error)
	CreateRegistration(ctx context.Context, r *model.Registration) error
	CreateMember(ctx context.Context, m *model.RegistrationMember) error
	IncrementRegisteredCount(ctx context.Context, eventID string) error
	IncrementProfileEvents(ctx context.Context, profileID string) error
}

// Admissions runs admission transactions.
type Admissions interface {
	GetProfileByUserKey(ctx context.Context, userKey string) (*model.ParticipantProfile, error)
	InAdmissionTx(ctx context.Context, fn func(tx AdmissionTx) error) error
}

// AccessRequestFilter narrows ListAccessRequests. Zero fields match all.
type AccessRequestFilter struct {
	AdminID string
	Status  model.AccessStatus
}

// Review is the decision applied to a pending access request.
type Review struct {
	Status           model.AccessStatus
	ReviewerID       string
	ReviewerUsername string
	ReviewedAt       time.Time
}

// AccessRequests persists access requests.
type AccessRequests interface {
	CreateAccessRequest(ctx context.Context, r *model.AccessRequest) error
	GetAccessRequest(ctx context.Context, id string) (*model.AccessRequest, error)
	ListAccessRequests(ctx context.Context, filter AccessRequestFilter) ([]model.AccessRequest, error)
	// ReviewAccessRequest moves a pending request to review.Status. It
	// returns ErrNotFound for unknown ids and ErrConflict when the request
	// is no longer pending.
	ReviewAccessRequest(ctx context.Context, id string, review Review) (*model.AccessRequest, error)
}

// Maintenance repairs denormalised counters.
type Maintenance interface {
	ReconcileCounters(ctx context.Context) (model.ReconcileResult, error)
}

// Store is implemented by every backend.
type Store interface {
	Profiles
	Events
	Admissions
	AccessRequests
	Maintenance
	Close() error
}
