package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/repository"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/service"
)

// AccessHandler serves the access-request workflow.
type AccessHandler struct {
	svc *service.AccessRequestService
	log logrus.FieldLogger
}

// NewAccessHandler constructs an AccessHandler.
func NewAccessHandler(svc *service.AccessRequestService, log logrus.FieldLogger) *AccessHandler {
	return &AccessHandler{svc: svc, log: log}
}

// Submit handles POST /access-requests
func (h *AccessHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitAccessRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if !bindIdentity(&req.AdminID, caller(r).Subject) {
		writeError(w, http.StatusForbidden, errForbidden.Error())
		return
	}

	ar, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to submit access request")
		return
	}

	writeJSON(w, http.StatusCreated, ar)
}

// Mine handles GET /access-requests/mine
func (h *AccessHandler) Mine(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, repository.AccessRequestFilter{AdminID: caller(r).Subject})
}

// List handles GET /access-requests?status=
func (h *AccessHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.AccessStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	h.list(w, r, repository.AccessRequestFilter{Status: status})
}

func (h *AccessHandler) list(w http.ResponseWriter, r *http.Request, filter repository.AccessRequestFilter) {
	out, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to list access requests")
		return
	}
	if out == nil {
		out = []model.AccessRequest{}
	}
	writeJSON(w, http.StatusOK, out)
}

// Review handles POST /access-requests/{id}/review
func (h *AccessHandler) Review(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.ReviewAccessRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if body := strings.TrimSpace(req.RequestID); body != "" && body != id {
		writeError(w, http.StatusBadRequest, "request_id does not match the URL")
		return
	}
	req.RequestID = id

	who := caller(r)
	if !bindIdentity(&req.ReviewerID, who.Subject) || !bindIdentity(&req.ReviewerUsername, who.Username) {
		writeError(w, http.StatusForbidden, errForbidden.Error())
		return
	}

	ar, err := h.svc.Review(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to review access request")
		return
	}

	writeJSON(w, http.StatusOK, ar)
}
