// Package postgres implements the repository contracts with pgx directly
// (no ORM).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/repository"
)

const dateLayout = "2006-01-02"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists admission state in PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// NewStore constructs a Store over an open pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// inTx runs fn in a transaction, rolling back on any error.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ─── Profiles ────────────────────────────────────────────────────────────────

// CreateProfile inserts a participant profile.
func (s *Store) CreateProfile(ctx context.Context, p *model.ParticipantProfile) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO participant_profiles (id, user_key, display_name, registered_events_count, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.UserKey, p.DisplayName, p.RegisteredEventsCount, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// GetProfileByUserKey returns the profile owned by userKey or ErrNotFound.
func (s *Store) GetProfileByUserKey(ctx context.Context, userKey string) (*model.ParticipantProfile, error) {
	var p model.ParticipantProfile
	err := s.db.QueryRow(ctx,
		`SELECT id, user_key, display_name, registered_events_count, created_at
		 FROM participant_profiles WHERE user_key = $1`,
		userKey,
	).Scan(&p.ID, &p.UserKey, &p.DisplayName, &p.RegisteredEventsCount, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// ─── Events ──────────────────────────────────────────────────────────────────

const eventColumns = `id, name, description, start_date, end_date, capacity,
	registered_count, registration_mode, created_by, created_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var (
		e          model.Event
		start, end time.Time
		mode       string
	)
	err := row.Scan(&e.ID, &e.Name, &e.Description, &start, &end, &e.Capacity,
		&e.RegisteredCount, &mode, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.StartDate = start.Format(dateLayout)
	e.EndDate = end.Format(dateLayout)
	e.RegistrationMode = model.RegistrationMode(mode)
	return &e, nil
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return t, nil
}

// CreateEventWithGrant consumes an approved access request and inserts the
// event in one transaction.
func (s *Store) CreateEventWithGrant(ctx context.Context, e *model.Event) error {
	start, err := parseDate(e.StartDate)
	if err != nil {
		return err
	}
	end, err := parseDate(e.EndDate)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		// FOR UPDATE makes a concurrent creation wait here and then skip
		// the grant once it has been consumed.
		var grantID string
		err := tx.QueryRow(ctx,
			`SELECT id FROM access_requests
			 WHERE admin_id = $1 AND event_name = $2
			   AND status = 'approved' AND consumed_at IS NULL
			 ORDER BY reviewed_at ASC
			 LIMIT 1
			 FOR UPDATE`,
			e.CreatedBy, e.Name,
		).Scan(&grantID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return repository.ErrNoGrant
			}
			return fmt.Errorf("find grant: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE access_requests SET consumed_at = $2 WHERE id = $1`,
			grantID, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("consume grant: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO events (id, name, description, start_date, end_date, capacity,
			                     registered_count, registration_mode, created_by, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.ID, e.Name, e.Description, start, end, e.Capacity,
			e.RegisteredCount, string(e.RegistrationMode), e.CreatedBy, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
}

// GetEvent returns a single event or ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return getEvent(ctx, s.db, id, "")
}

func getEvent(ctx context.Context, q querier, id, suffix string) (*model.Event, error) {
	e, err := scanEvent(q.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`+suffix, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListEvents returns all events ordered by start date, then creation time.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY start_date ASC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// ListRoster returns each registration of an event with its members.
func (s *Store) ListRoster(ctx context.Context, eventID string) ([]model.RosterEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT r.id, r.event_id, r.registration_mode, COALESCE(r.team_name, ''), r.created_at, m.profile_id
		 FROM registrations r
		 LEFT JOIN registration_members m ON m.registration_id = r.id
		 WHERE r.event_id = $1
		 ORDER BY r.created_at ASC, r.id ASC, m.created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	defer rows.Close()

	var roster []model.RosterEntry
	for rows.Next() {
		var (
			reg       model.Registration
			mode      string
			profileID *string
		)
		if err := rows.Scan(&reg.ID, &reg.EventID, &mode, &reg.TeamName, &reg.CreatedAt, &profileID); err != nil {
			return nil, fmt.Errorf("scan roster: %w", err)
		}
		reg.RegistrationMode = model.RegistrationMode(mode)
		if n := len(roster); n == 0 || roster[n-1].ID != reg.ID {
			roster = append(roster, model.RosterEntry{Registration: reg, Members: []string{}})
		}
		if profileID != nil {
			last := &roster[len(roster)-1]
			last.Members = append(last.Members, *profileID)
		}
	}
	return roster, rows.Err()
}

// ─── Admissions ──────────────────────────────────────────────────────────────

// InAdmissionTx runs fn inside one transaction.
//
// Admissions read the event counter and then write it back. Two concurrent
// transactions reading the same snapshot would both see a free seat, so
// LockEvent takes a row lock with SELECT … FOR UPDATE and every admission
// against the same event runs one at a time until COMMIT or ROLLBACK.
func (s *Store) InAdmissionTx(ctx context.Context, fn func(repository.AdmissionTx) error) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return fn(&admissionTx{tx: tx})
	})
}

type admissionTx struct {
	tx pgx.Tx
}

func (a *admissionTx) LockEvent(ctx context.Context, eventID string) (*model.Event, error) {
	return getEvent(ctx, a.tx, eventID, " FOR UPDATE")
}

func (a *admissionTx) IsMember(ctx context.Context, eventID, profileID string) (bool, error) {
	var exists bool
	err := a.tx.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM registration_members m
		   JOIN registrations r ON r.id = m.registration_id
		   WHERE r.event_id = $1 AND m.profile_id = $2
		 )`,
		eventID, profileID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return exists, nil
}

func (a *admissionTx) FindRegistration(ctx context.Context, eventID, teamName string) (*model.Registration, error) {
	query := `SELECT id, event_id, registration_mode, COALESCE(team_name, ''), created_at
		 FROM registrations WHERE event_id = $1 AND team_name IS NULL
		 ORDER BY created_at ASC LIMIT 1`
	args := []any{eventID}
	if teamName != "" {
		query = `SELECT id, event_id, registration_mode, COALESCE(team_name, ''), created_at
		 FROM registrations WHERE event_id = $1 AND team_name = $2`
		args = append(args, teamName)
	}

	var (
		reg  model.Registration
		mode string
	)
	err := a.tx.QueryRow(ctx, query, args...).
		Scan(&reg.ID, &reg.EventID, &mode, &reg.TeamName, &reg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	reg.RegistrationMode = model.RegistrationMode(mode)
	return &reg, nil
}

func (a *admissionTx) CreateRegistration(ctx context.Context, r *model.Registration) error {
	var team *string
	if r.TeamName != "" {
		team = &r.TeamName
	}
	_, err := a.tx.Exec(ctx,
		`INSERT INTO registrations (id, event_id, registration_mode, team_name, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.EventID, string(r.RegistrationMode), team, r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (a *admissionTx) CreateMember(ctx context.Context, m *model.RegistrationMember) error {
	_, err := a.tx.Exec(ctx,
		`INSERT INTO registration_members (id, registration_id, event_id, profile_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.RegistrationID, m.EventID, m.ProfileID, m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (a *admissionTx) IncrementRegisteredCount(ctx context.Context, eventID string) error {
	tag, err := a.tx.Exec(ctx,
		`UPDATE events SET registered_count = registered_count + 1
		 WHERE id = $1 AND (capacity IS NULL OR registered_count < capacity)`,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("increment registered_count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrCapacityReached
	}
	return nil
}

func (a *admissionTx) IncrementProfileEvents(ctx context.Context, profileID string) error {
	tag, err := a.tx.Exec(ctx,
		`UPDATE participant_profiles SET registered_events_count = registered_events_count + 1
		 WHERE id = $1`,
		profileID,
	)
	if err != nil {
		return fmt.Errorf("increment registered_events_count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ─── Access requests ─────────────────────────────────────────────────────────

const accessRequestColumns = `id, admin_id, event_name, status, COALESCE(reviewed_by, ''),
	COALESCE(reviewer_username, ''), requested_at, reviewed_at, consumed_at`

func scanAccessRequest(row pgx.Row) (*model.AccessRequest, error) {
	var (
		r      model.AccessRequest
		status string
	)
	err := row.Scan(&r.ID, &r.AdminID, &r.EventName, &status, &r.ReviewedBy,
		&r.ReviewerUsername, &r.RequestedAt, &r.ReviewedAt, &r.ConsumedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.AccessStatus(status)
	return &r, nil
}

// CreateAccessRequest inserts a new request.
func (s *Store) CreateAccessRequest(ctx context.Context, r *model.AccessRequest) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO access_requests (id, admin_id, event_name, status, requested_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.AdminID, r.EventName, string(r.Status), r.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("insert access request: %w", err)
	}
	return nil
}

// GetAccessRequest returns a request by id or ErrNotFound.
func (s *Store) GetAccessRequest(ctx context.Context, id string) (*model.AccessRequest, error) {
	r, err := scanAccessRequest(s.db.QueryRow(ctx,
		`SELECT `+accessRequestColumns+` FROM access_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get access request: %w", err)
	}
	return r, nil
}

// ListAccessRequests returns requests matching filter, newest first.
func (s *Store) ListAccessRequests(ctx context.Context, filter repository.AccessRequestFilter) ([]model.AccessRequest, error) {
	var (
		where []string
		args  []any
	)
	if filter.AdminID != "" {
		args = append(args, filter.AdminID)
		where = append(where, fmt.Sprintf("admin_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + accessRequestColumns + ` FROM access_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY requested_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	defer rows.Close()

	var out []model.AccessRequest
	for rows.Next() {
		r, err := scanAccessRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ReviewAccessRequest applies review with a single conditional update so
// two simultaneous reviews cannot both succeed.
func (s *Store) ReviewAccessRequest(ctx context.Context, id string, review repository.Review) (*model.AccessRequest, error) {
	r, err := scanAccessRequest(s.db.QueryRow(ctx,
		`UPDATE access_requests
		 SET status = $2, reviewed_by = $3, reviewer_username = $4, reviewed_at = $5
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+accessRequestColumns,
		id, string(review.Status), review.ReviewerID, review.ReviewerUsername, review.ReviewedAt,
	))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("review access request: %w", err)
	}
	if _, err := s.GetAccessRequest(ctx, id); err != nil {
		return nil, err
	}
	return nil, repository.ErrConflict
}

// ─── Maintenance ─────────────────────────────────────────────────────────────

// ReconcileCounters recomputes denormalised counters from membership rows.
func (s *Store) ReconcileCounters(ctx context.Context) (model.ReconcileResult, error) {
	var res model.ReconcileResult
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, reconcileEventsSQL)
		if err != nil {
			return fmt.Errorf("reconcile events: %w", err)
		}
		res.Events = tag.RowsAffected()

		tag, err = tx.Exec(ctx, reconcileProfilesSQL)
		if err != nil {
			return fmt.Errorf("reconcile profiles: %w", err)
		}
		res.Profiles = tag.RowsAffected()
		return nil
	})
	return res, err
}

const reconcileEventsSQL = `
UPDATE events SET registered_count = (
  SELECT COUNT(*) FROM registration_members m WHERE m.event_id = events.id
)
WHERE registered_count <> (
  SELECT COUNT(*) FROM registration_members m WHERE m.event_id = events.id
)`

const reconcileProfilesSQL = `
UPDATE participant_profiles SET registered_events_count = (
  SELECT COUNT(DISTINCT m.event_id) FROM registration_members m WHERE m.profile_id = participant_profiles.id
)
WHERE registered_events_count <> (
  SELECT COUNT(DISTINCT m.event_id) FROM registration_members m WHERE m.profile_id = participant_profiles.id
)`
