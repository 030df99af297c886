// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/lifecycle"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/repository"
)

var tracer = otel.Tracer("github.com/Shivanand-hulikatti/campus-event-admission/internal/service")

// endSpan closes span, marking it failed for errors that are not ordinary
// domain outcomes.
func endSpan(span trace.Span, err error) {
	switch {
	case err == nil:
	case isDomainError(err):
		span.SetAttributes(attribute.String("outcome", err.Error()))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

const maxCapacity = 100_000

// EventStore is the persistence EventService needs.
type EventStore interface {
	repository.Events
	repository.Maintenance
}

// EventService orchestrates event-related business operations.
type EventService struct {
	events EventStore
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(events EventStore, log logrus.FieldLogger) *EventService {
	return &EventService{events: events, log: log, now: time.Now}
}

// CreateEvent validates the request and creates the event on behalf of
// adminID, consuming that admin's approved access request for the name.
func (s *EventService) CreateEvent(ctx context.Context, adminID string, req model.CreateEventRequest) (_ *model.Event, err error) {
	ctx, span := tracer.Start(ctx, "EventService.CreateEvent")
	defer func() { endSpan(span, err) }()

	adminID = strings.TrimSpace(adminID)
	req.Name = strings.TrimSpace(req.Name)
	if adminID == "" {
		return nil, fmt.Errorf("%w: admin_id", ErrMissingField)
	}
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}

	start, err := lifecycle.ParseDay(req.StartDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	end, err := lifecycle.ParseDay(req.EndDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end_date is before start_date", ErrInvalidInput)
	}
	if req.Capacity != nil && (*req.Capacity < 0 || *req.Capacity > maxCapacity) {
		return nil, fmt.Errorf("%w: capacity must be between 0 and %d", ErrInvalidInput, maxCapacity)
	}

	mode := req.RegistrationMode
	if mode == "" {
		mode = model.ModeIndividual
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: registration_mode must be individual or team", ErrInvalidInput)
	}

	event := &model.Event{
		ID:               uuid.New().String(),
		Name:             req.Name,
		Description:      strings.TrimSpace(req.Description),
		StartDate:        start.Format(time.DateOnly),
		EndDate:          end.Format(time.DateOnly),
		Capacity:         req.Capacity,
		RegistrationMode: mode,
		CreatedBy:        adminID,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.events.CreateEventWithGrant(ctx, event); err != nil {
		if errors.Is(err, repository.ErrNoGrant) {
			return nil, ErrAccessNotGranted
		}
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.log.WithFields(logrus.Fields{"event_id": event.ID, "admin_id": adminID}).Info("event created")
	return event, nil
}

// ListEvents returns every event with its derived lifecycle view.
func (s *EventService) ListEvents(ctx context.Context) ([]model.EventView, error) {
	events, err := s.events.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	now := s.now()
	views := make([]model.EventView, 0, len(events))
	for _, e := range events {
		v, err := View(e, now)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		views = append(views, v)
	}
	return views, nil
}

// GetEvent returns a single event by ID with its lifecycle view.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.EventView, error) {
	e, err := s.getEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := View(*e, s.now())
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *EventService) getEvent(ctx context.Context, id string) (*model.Event, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: event id", ErrMissingField)
	}
	e, err := s.events.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListRoster returns all registrations of an event with their members.
func (s *EventService) ListRoster(ctx context.Context, eventID string) ([]model.RosterEntry, error) {
	if _, err := s.getEvent(ctx, eventID); err != nil {
		return nil, err
	}
	roster, err := s.events.ListRoster(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return roster, nil
}

// Reconcile rewrites drifted counters from membership rows.
func (s *EventService) Reconcile(ctx context.Context) (_ model.ReconcileResult, err error) {
	ctx, span := tracer.Start(ctx, "EventService.Reconcile")
	defer func() { endSpan(span, err) }()

	res, err := s.events.ReconcileCounters(ctx)
	if err != nil {
		return model.ReconcileResult{}, fmt.Errorf("reconcile counters: %w", err)
	}
	if res.Events > 0 || res.Profiles > 0 {
		s.log.WithFields(logrus.Fields{"events": res.Events, "profiles": res.Profiles}).Warn("counters reconciled")
	}
	return res, nil
}

// View derives the lifecycle phase and availability of e at now.
func View(e model.Event, now time.Time) (model.EventView, error) {
	phase, err := lifecycle.DerivePhase(e.StartDate, e.EndDate, now)
	if err != nil {
		return model.EventView{}, err
	}
	slots := lifecycle.Slots(e.Capacity, e.RegisteredCount)
	v := model.EventView{
		Event:         e,
		Phase:         string(phase),
		AdmissionOpen: phase.AdmissionOpen(),
		Unlimited:     slots.Unlimited,
		FillPercent:   slots.FillPercent,
	}
	if !slots.Unlimited {
		remaining := slots.Remaining
		v.Remaining = &remaining
	}
	return v, nil
}
