package model

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name             string           `json:"name" validate:"required,max=200"`
	Description      string           `json:"description" validate:"max=4000"`
	StartDate        string           `json:"start_date" validate:"required"`
	EndDate          string           `json:"end_date" validate:"required"`
	Capacity         *int             `json:"capacity" validate:"omitempty,min=0,max=100000"`
	RegistrationMode RegistrationMode `json:"registration_mode" validate:"omitempty,oneof=individual team"`
}

// RegisterRequest is the payload for registering for an event.
// ParticipantID is the caller's identity key, not the profile id.
type RegisterRequest struct {
	EventID          string           `json:"event_id"`
	ParticipantID    string           `json:"participant_id"`
	RegistrationType RegistrationMode `json:"registration_type,omitempty"`
	TeamName         string           `json:"team_name,omitempty" validate:"max=120"`
}

// RegistrationResult is returned after a successful admission.
type RegistrationResult struct {
	RegistrationID string `json:"registration_id"`
	MemberID       string `json:"member_id"`
	EventID        string `json:"event_id"`
	ParticipantID  string `json:"participant_id"`
}

// CreateProfileRequest is the payload for creating a participant profile.
type CreateProfileRequest struct {
	UserKey     string `json:"user_key"`
	DisplayName string `json:"display_name" validate:"max=200"`
}

// SubmitAccessRequest is the payload an admin sends to claim an event name.
type SubmitAccessRequest struct {
	EventName string `json:"event_name"`
	AdminID   string `json:"admin_id"`
}

// ReviewAccessRequest is the payload a global admin sends to decide a request.
type ReviewAccessRequest struct {
	RequestID        string       `json:"request_id"`
	Status           AccessStatus `json:"status" validate:"required"`
	ReviewerID       string       `json:"reviewer_id"`
	ReviewerUsername string       `json:"reviewer_username"`
}

// EventView is an Event with its derived lifecycle figures.
type EventView struct {
	Event
	Phase         string `json:"phase"`
	AdmissionOpen bool   `json:"admission_open"`
	Unlimited     bool   `json:"unlimited"`
	Remaining     *int   `json:"remaining,omitempty"`
	FillPercent   int    `json:"fill_percent"`
}

// ReconcileResult reports how many counters were rewritten.
type ReconcileResult struct {
	Events   int64 `json:"events"`
	Profiles int64 `json:"profiles"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AdmissionOutcome summarises one registration attempt.
// Used by the concurrent test harness.
type AdmissionOutcome struct {
	ParticipantID string
	Success       bool
	Error         error
}
