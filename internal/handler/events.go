package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/auth"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/service"
)

// EventHandler holds the HTTP handlers for events and admissions.
type EventHandler struct {
	events     *service.EventService
	admissions *service.AdmissionService
	log        logrus.FieldLogger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events *service.EventService, admissions *service.AdmissionService, log logrus.FieldLogger) *EventHandler {
	return &EventHandler{events: events, admissions: admissions, log: log}
}

// CreateEvent handles POST /events
// The calling admin must hold an approved access request for the name.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	event, err := h.events.CreateEvent(r.Context(), caller(r).Subject, req)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to create event")
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "failed to list events")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.EventView{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// Register handles POST /events/{id}/register
// Participants register themselves; a global admin may name any participant.
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if body := strings.TrimSpace(req.EventID); body != "" && body != id {
		writeError(w, http.StatusBadRequest, "event_id does not match the URL")
		return
	}
	req.EventID = id

	who := caller(r)
	if who.Role != auth.RoleGlobalAdmin && !bindIdentity(&req.ParticipantID, who.Subject) {
		writeError(w, http.StatusForbidden, errForbidden.Error())
		return
	}

	res, err := h.admissions.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// ListRegistrations handles GET /events/{id}/registrations
func (h *EventHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	roster, err := h.events.ListRoster(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "failed to list registrations")
		return
	}

	if roster == nil {
		roster = []model.RosterEntry{}
	}

	writeJSON(w, http.StatusOK, roster)
}

// Reconcile handles POST /admin/reconcile
func (h *EventHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.events.Reconcile(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "failed to reconcile counters")
		return
	}

	writeJSON(w, http.StatusOK, res)
}
