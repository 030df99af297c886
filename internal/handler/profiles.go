package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/service"
)

// ProfileHandler serves the caller's participant profile.
type ProfileHandler struct {
	svc *service.ProfileService
	log logrus.FieldLogger
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(svc *service.ProfileService, log logrus.FieldLogger) *ProfileHandler {
	return &ProfileHandler{svc: svc, log: log}
}

// Create handles POST /profiles
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if !bindIdentity(&req.UserKey, caller(r).Subject) {
		writeError(w, http.StatusForbidden, errForbidden.Error())
		return
	}

	p, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to create profile")
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// Me handles GET /profiles/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), caller(r).Subject)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to get profile")
		return
	}

	writeJSON(w, http.StatusOK, p)
}
