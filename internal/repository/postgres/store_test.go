package postgres

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/config"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/database"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/repository"
)

// openTestStore connects to the database described by the DB_* variables.
// The tests only run when POSTGRES_INTEGRATION is set.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("POSTGRES_INTEGRATION") == "" {
		t.Skip("POSTGRES_INTEGRATION not set")
	}

	var cfg config.Postgres
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "DB_"}); err != nil {
		t.Fatalf("parse db env: %v", err)
	}
	if err := database.MigratePostgres(cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := database.NewPool(ctx, cfg, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	store := NewStore(pool)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedEvent(t *testing.T, s *Store, capacity *int) *model.Event {
	t.Helper()
	ctx := context.Background()

	adminID := "admin-" + uuid.NewString()
	name := "event-" + uuid.NewString()
	req := &model.AccessRequest{
		ID: uuid.NewString(), AdminID: adminID, EventName: name,
		Status: model.AccessPending, RequestedAt: time.Now(),
	}
	if err := s.CreateAccessRequest(ctx, req); err != nil {
		t.Fatalf("create access request: %v", err)
	}
	if _, err := s.ReviewAccessRequest(ctx, req.ID, repository.Review{
		Status: model.AccessApproved, ReviewerID: "global-1", ReviewedAt: time.Now(),
	}); err != nil {
		t.Fatalf("approve access request: %v", err)
	}

	e := &model.Event{
		ID:               uuid.NewString(),
		Name:             name,
		StartDate:        "2025-06-01",
		EndDate:          "2025-06-03",
		Capacity:         capacity,
		RegistrationMode: model.ModeIndividual,
		CreatedBy:        adminID,
		CreatedAt:        time.Now(),
	}
	if err := s.CreateEventWithGrant(ctx, e); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e
}

func seedProfile(t *testing.T, s *Store) *model.ParticipantProfile {
	t.Helper()

	p := &model.ParticipantProfile{ID: uuid.NewString(), UserKey: "user-" + uuid.NewString(), CreatedAt: time.Now()}
	if err := s.CreateProfile(context.Background(), p); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p
}

// admit performs a capacity-checked admission the way the service does.
func admit(ctx context.Context, s *Store, eventID, profileID string) error {
	return s.InAdmissionTx(ctx, func(tx repository.AdmissionTx) error {
		e, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if e.IsFull() {
			return repository.ErrCapacityReached
		}
		reg, err := tx.FindRegistration(ctx, eventID, "")
		if errors.Is(err, repository.ErrNotFound) {
			reg = &model.Registration{
				ID: uuid.NewString(), EventID: eventID,
				RegistrationMode: model.ModeIndividual, CreatedAt: time.Now(),
			}
			err = tx.CreateRegistration(ctx, reg)
		}
		if err != nil {
			return err
		}
		if err := tx.CreateMember(ctx, &model.RegistrationMember{
			ID: uuid.NewString(), RegistrationID: reg.ID, EventID: eventID,
			ProfileID: profileID, CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		if err := tx.IncrementRegisteredCount(ctx, eventID); err != nil {
			return err
		}
		return tx.IncrementProfileEvents(ctx, profileID)
	})
}

func TestEventRoundTrip(t *testing.T) {
	s := openTestStore(t)
	capacity := 4
	e := seedEvent(t, s, &capacity)

	got, err := s.GetEvent(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.StartDate != "2025-06-01" || got.EndDate != "2025-06-03" {
		t.Fatalf("dates = %s..%s", got.StartDate, got.EndDate)
	}
	if got.Capacity == nil || *got.Capacity != 4 {
		t.Fatalf("capacity = %v, want 4", got.Capacity)
	}

	dup := *e
	dup.ID = uuid.NewString()
	if err := s.CreateEventWithGrant(context.Background(), &dup); !errors.Is(err, repository.ErrNoGrant) {
		t.Fatalf("reuse grant error = %v, want %v", err, repository.ErrNoGrant)
	}
}

func TestConcurrentAdmissionsRespectCapacity(t *testing.T) {
	s := openTestStore(t)
	const (
		capacity = 3
		attempts = 20
	)
	limit := capacity
	e := seedEvent(t, s, &limit)

	profiles := make([]*model.ParticipantProfile, attempts)
	for i := range profiles {
		profiles[i] = seedProfile(t, s)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, p := range profiles {
		wg.Add(1)
		go func(profileID string) {
			defer wg.Done()
			err := admit(context.Background(), s, e.ID, profileID)
			switch {
			case err == nil:
				mu.Lock()
				ok++
				mu.Unlock()
			case errors.Is(err, repository.ErrCapacityReached):
			default:
				t.Errorf("admit %s: %v", profileID, err)
			}
		}(p.ID)
	}
	wg.Wait()

	if ok != capacity {
		t.Fatalf("admitted = %d, want %d", ok, capacity)
	}
	got, err := s.GetEvent(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.RegisteredCount != capacity {
		t.Fatalf("registered_count = %d, want %d", got.RegisteredCount, capacity)
	}
}

func TestDuplicateMemberConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := seedEvent(t, s, nil)
	p := seedProfile(t, s)

	if err := admit(ctx, s, e.ID, p.ID); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := admit(ctx, s, e.ID, p.ID); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("duplicate error = %v, want %v", err, repository.ErrConflict)
	}
}

func TestReviewAccessRequestOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	r := &model.AccessRequest{
		ID: uuid.NewString(), AdminID: "admin-" + uuid.NewString(), EventName: "Chess",
		Status: model.AccessPending, RequestedAt: time.Now(),
	}
	if err := s.CreateAccessRequest(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}

	review := repository.Review{Status: model.AccessApproved, ReviewerID: "global-1", ReviewedAt: time.Now()}
	if _, err := s.ReviewAccessRequest(ctx, r.ID, review); err != nil {
		t.Fatalf("review: %v", err)
	}
	if _, err := s.ReviewAccessRequest(ctx, r.ID, review); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("second review error = %v, want %v", err, repository.ErrConflict)
	}
	if _, err := s.ReviewAccessRequest(ctx, uuid.NewString(), review); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown id error = %v, want %v", err, repository.ErrNotFound)
	}
}
