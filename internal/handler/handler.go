// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/lifecycle"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/service"
)

// errForbidden is written when a body names an identity other than the
// caller's.
var errForbidden = errors.New("identity in request does not match the caller")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names in validation errors.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeAndValidate reads the body into dst and runs its validate tags. It
// writes the 400 itself and reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

// statusFor maps a service error to its HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrProfileNotFound),
		errors.Is(err, service.ErrEventNotFound),
		errors.Is(err, service.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyRegistered),
		errors.Is(err, service.ErrEventFull),
		errors.Is(err, service.ErrAlreadyReviewed),
		errors.Is(err, service.ErrProfileExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrTeamNameRequired),
		errors.Is(err, service.ErrModeMismatch),
		errors.Is(err, service.ErrMissingField),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidDecision),
		errors.Is(err, lifecycle.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAccessNotGranted),
		errors.Is(err, errForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with its mapped status. Internal failures are
// logged and hidden behind msg.
func writeServiceError(w http.ResponseWriter, log logrus.FieldLogger, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error(msg)
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
