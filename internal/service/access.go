package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/repository"
)

// AccessRequestService runs the pending → approved | rejected workflow that
// gates which admin may create an event under a given name.
type AccessRequestService struct {
	store repository.AccessRequests
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewAccessRequestService constructs an AccessRequestService.
func NewAccessRequestService(store repository.AccessRequests, log logrus.FieldLogger) *AccessRequestService {
	return &AccessRequestService{store: store, log: log, now: time.Now}
}

// Submit records a pending request from an admin to claim an event name.
func (s *AccessRequestService) Submit(ctx context.Context, req model.SubmitAccessRequest) (_ *model.AccessRequest, err error) {
	ctx, span := tracer.Start(ctx, "AccessRequestService.Submit")
	defer func() { endSpan(span, err) }()

	name := strings.TrimSpace(req.EventName)
	adminID := strings.TrimSpace(req.AdminID)
	if name == "" {
		return nil, fmt.Errorf("%w: event_name", ErrMissingField)
	}
	if adminID == "" {
		return nil, fmt.Errorf("%w: admin_id", ErrMissingField)
	}

	r := &model.AccessRequest{
		ID:          uuid.New().String(),
		AdminID:     adminID,
		EventName:   name,
		Status:      model.AccessPending,
		RequestedAt: s.now().UTC(),
	}
	if err := s.store.CreateAccessRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("submit access request: %w", err)
	}

	s.log.WithFields(logrus.Fields{"request_id": r.ID, "admin_id": adminID}).Info("access request submitted")
	return r, nil
}

// Review applies a global admin's decision to a pending request. A request
// is reviewed at most once.
func (s *AccessRequestService) Review(ctx context.Context, req model.ReviewAccessRequest) (_ *model.AccessRequest, err error) {
	ctx, span := tracer.Start(ctx, "AccessRequestService.Review")
	defer func() { endSpan(span, err) }()

	id := strings.TrimSpace(req.RequestID)
	reviewerID := strings.TrimSpace(req.ReviewerID)
	if id == "" {
		return nil, fmt.Errorf("%w: request_id", ErrMissingField)
	}
	if reviewerID == "" {
		return nil, fmt.Errorf("%w: reviewer_id", ErrMissingField)
	}

	decision := model.AccessStatus(strings.ToLower(strings.TrimSpace(string(req.Status))))
	if decision != model.AccessApproved && decision != model.AccessRejected {
		return nil, ErrInvalidDecision
	}

	r, err := s.store.ReviewAccessRequest(ctx, id, repository.Review{
		Status:           decision,
		ReviewerID:       reviewerID,
		ReviewerUsername: strings.TrimSpace(req.ReviewerUsername),
		ReviewedAt:       s.now().UTC(),
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrRequestNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrAlreadyReviewed
		}
		return nil, fmt.Errorf("review access request: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"request_id":  r.ID,
		"status":      r.Status,
		"reviewed_by": r.ReviewedBy,
	}).Info("access request reviewed")
	return r, nil
}

// Get returns one request.
func (s *AccessRequestService) Get(ctx context.Context, id string) (*model.AccessRequest, error) {
	r, err := s.store.GetAccessRequest(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("get access request: %w", err)
	}
	return r, nil
}

// List returns requests matching filter. An unknown status is rejected.
func (s *AccessRequestService) List(ctx context.Context, filter repository.AccessRequestFilter) ([]model.AccessRequest, error) {
	switch filter.Status {
	case "", model.AccessPending, model.AccessApproved, model.AccessRejected:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}
	out, err := s.store.ListAccessRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	return out, nil
}
