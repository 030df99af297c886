package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/repository"
)

// AdmissionService decides whether a participant may join an event and
// records the admission.
type AdmissionService struct {
	store repository.Admissions
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewAdmissionService constructs an AdmissionService.
func NewAdmissionService(store repository.Admissions, log logrus.FieldLogger) *AdmissionService {
	return &AdmissionService{store: store, log: log, now: time.Now}
}

// Register admits the participant identified by req.ParticipantID to
// req.EventID.
//
// Checks run in a fixed order: profile, event, duplicate, capacity, mode.
// Everything after the profile lookup happens in one store transaction with
// the event locked, so concurrent calls cannot over-admit and the event
// counter, membership row and profile counter commit together.
func (s *AdmissionService) Register(ctx context.Context, req model.RegisterRequest) (_ *model.RegistrationResult, err error) {
	ctx, span := tracer.Start(ctx, "AdmissionService.Register")
	defer func() { endSpan(span, err) }()

	eventID := strings.TrimSpace(req.EventID)
	userKey := strings.TrimSpace(req.ParticipantID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: event_id", ErrMissingField)
	}
	if userKey == "" {
		return nil, fmt.Errorf("%w: participant_id", ErrMissingField)
	}
	span.SetAttributes(attribute.String("event.id", eventID))

	profile, err := s.store.GetProfileByUserKey(ctx, userKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("resolve profile: %w", err)
	}

	var result *model.RegistrationResult
	err = s.store.InAdmissionTx(ctx, func(tx repository.AdmissionTx) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		dup, err := tx.IsMember(ctx, eventID, profile.ID)
		if err != nil {
			return err
		}
		if dup {
			return ErrAlreadyRegistered
		}

		if event.IsFull() {
			return ErrEventFull
		}

		mode, team, err := admissionMode(event.RegistrationMode, req.RegistrationType, req.TeamName)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		reg, err := tx.FindRegistration(ctx, eventID, team)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			reg = &model.Registration{
				ID:               uuid.New().String(),
				EventID:          eventID,
				RegistrationMode: mode,
				TeamName:         team,
				CreatedAt:        now,
			}
			if err := tx.CreateRegistration(ctx, reg); err != nil {
				return err
			}
		case err != nil:
			return err
		}

		member := &model.RegistrationMember{
			ID:             uuid.New().String(),
			RegistrationID: reg.ID,
			EventID:        eventID,
			ProfileID:      profile.ID,
			CreatedAt:      now,
		}
		if err := tx.CreateMember(ctx, member); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrAlreadyRegistered
			}
			return err
		}

		if err := tx.IncrementRegisteredCount(ctx, eventID); err != nil {
			if errors.Is(err, repository.ErrCapacityReached) {
				return ErrEventFull
			}
			s.log.WithError(err).WithField("event_id", eventID).Error("event counter update failed")
			return err
		}
		if err := tx.IncrementProfileEvents(ctx, profile.ID); err != nil {
			s.log.WithError(err).WithField("profile_id", profile.ID).Error("profile counter update failed")
			return err
		}

		result = &model.RegistrationResult{
			RegistrationID: reg.ID,
			MemberID:       member.ID,
			EventID:        eventID,
			ParticipantID:  profile.ID,
		}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("register for event: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"event_id":        result.EventID,
		"profile_id":      result.ParticipantID,
		"registration_id": result.RegistrationID,
	}).Info("participant admitted")
	return result, nil
}

// admissionMode checks the requested registration type against the event's
// mode and returns the effective mode and the team key used to select the
// Registration row. An omitted type takes the event's mode.
func admissionMode(eventMode, desired model.RegistrationMode, teamName string) (model.RegistrationMode, string, error) {
	desired = model.RegistrationMode(strings.ToLower(strings.TrimSpace(string(desired))))
	teamName = strings.TrimSpace(teamName)

	if eventMode == model.ModeTeam {
		if desired != "" && desired != model.ModeTeam {
			return "", "", ErrModeMismatch
		}
		if teamName == "" {
			return "", "", ErrTeamNameRequired
		}
		return model.ModeTeam, teamName, nil
	}

	if desired != "" && desired != model.ModeIndividual {
		return "", "", ErrModeMismatch
	}
	return model.ModeIndividual, "", nil
}
