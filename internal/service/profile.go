package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/repository"
)

// ProfileService creates and reads participant profiles.
type ProfileService struct {
	store repository.Profiles
	now   func() time.Time
}

// NewProfileService constructs a ProfileService.
func NewProfileService(store repository.Profiles) *ProfileService {
	return &ProfileService{store: store, now: time.Now}
}

// Create registers a profile for req.UserKey.
func (s *ProfileService) Create(ctx context.Context, req model.CreateProfileRequest) (*model.ParticipantProfile, error) {
	key := strings.TrimSpace(req.UserKey)
	if key == "" {
		return nil, fmt.Errorf("%w: user_key", ErrMissingField)
	}
	p := &model.ParticipantProfile{
		ID:          uuid.New().String(),
		UserKey:     key,
		DisplayName: strings.TrimSpace(req.DisplayName),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateProfile(ctx, p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrProfileExists
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return p, nil
}

// Get returns the profile owned by userKey.
func (s *ProfileService) Get(ctx context.Context, userKey string) (*model.ParticipantProfile, error) {
	p, err := s.store.GetProfileByUserKey(ctx, userKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}
