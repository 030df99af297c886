// Package sqlite provides a SQLite-backed implementation of the repository
// contracts, used for single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/database"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/repository"
)

// Store persists admission state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ repository.Store = (*Store)(nil)

// Open opens the database at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := database.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return &Store{sqlDB: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// inTx runs fn in a transaction. The handle holds a single connection and
// opens transactions with BEGIN IMMEDIATE, so transactions never interleave.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ─── Profiles ────────────────────────────────────────────────────────────────

// CreateProfile inserts a participant profile.
func (s *Store) CreateProfile(ctx context.Context, p *model.ParticipantProfile) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO participant_profiles (id, user_key, display_name, registered_events_count, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.UserKey, p.DisplayName, p.RegisteredEventsCount, toMillis(p.CreatedAt),
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
	var (
		p       model.ParticipantProfile
		created int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, user_key, display_name, registered_events_count, created_at
		 FROM participant_profiles WHERE user_key = ?`,
		userKey,
	).Scan(&p.ID, &p.UserKey, &p.DisplayName, &p.RegisteredEventsCount, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.CreatedAt = fromMillis(created)
	return &p, nil
}

// ─── Events ──────────────────────────────────────────────────────────────────

const eventColumns = `id, name, description, start_date, end_date, capacity,
	registered_count, registration_mode, created_by, created_at`

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e        model.Event
		capacity sql.NullInt64
		mode     string
		created  int64
	)
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.StartDate, &e.EndDate, &capacity,
		&e.RegisteredCount, &mode, &e.CreatedBy, &created)
	if err != nil {
		return nil, err
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		e.Capacity = &c
	}
	e.RegistrationMode = model.RegistrationMode(mode)
	e.CreatedAt = fromMillis(created)
	return &e, nil
}

// CreateEventWithGrant consumes an approved access request and inserts the
// event in one transaction.
func (s *Store) CreateEventWithGrant(ctx context.Context, e *model.Event) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE access_requests SET consumed_at = ?
			 WHERE id = (
			   SELECT id FROM access_requests
			   WHERE admin_id = ? AND event_name = ?
			     AND status = 'approved' AND consumed_at IS NULL
			   ORDER BY reviewed_at ASC
			   LIMIT 1
			 )`,
			toMillis(e.CreatedAt), e.CreatedBy, e.Name,
		)
		if err != nil {
			return fmt.Errorf("consume grant: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("consume grant: %w", err)
		} else if n == 0 {
			return repository.ErrNoGrant
		}

		var capacity any
		if e.Capacity != nil {
			capacity = *e.Capacity
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (id, name, description, start_date, end_date, capacity,
			                     registered_count, registration_mode, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Name, e.Description, e.StartDate, e.EndDate, capacity,
			e.RegisteredCount, string(e.RegistrationMode), e.CreatedBy, toMillis(e.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
}

// GetEvent returns a single event or ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListEvents returns all events ordered by start date, then creation time.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
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
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT r.id, r.event_id, r.registration_mode, COALESCE(r.team_name, ''), r.created_at, m.profile_id
		 FROM registrations r
		 LEFT JOIN registration_members m ON m.registration_id = r.id
		 WHERE r.event_id = ?
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
			created   int64
			profileID sql.NullString
		)
		if err := rows.Scan(&reg.ID, &reg.EventID, &mode, &reg.TeamName, &created, &profileID); err != nil {
			return nil, fmt.Errorf("scan roster: %w", err)
		}
		reg.RegistrationMode = model.RegistrationMode(mode)
		reg.CreatedAt = fromMillis(created)
		if n := len(roster); n == 0 || roster[n-1].ID != reg.ID {
			roster = append(roster, model.RosterEntry{Registration: reg, Members: []string{}})
		}
		if profileID.Valid {
			last := &roster[len(roster)-1]
			last.Members = append(last.Members, profileID.String)
		}
	}
	return roster, rows.Err()
}

// ─── Admissions ──────────────────────────────────────────────────────────────

// InAdmissionTx runs fn inside one write transaction.
func (s *Store) InAdmissionTx(ctx context.Context, fn func(repository.AdmissionTx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&admissionTx{tx: tx})
	})
}

type admissionTx struct {
	tx *sql.Tx
}

// LockEvent reads the event. The surrounding BEGIN IMMEDIATE transaction
// already holds the database write lock.
func (a *admissionTx) LockEvent(ctx context.Context, eventID string) (*model.Event, error) {
	e, err := scanEvent(a.tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("lock event: %w", err)
	}
	return e, nil
}

func (a *admissionTx) IsMember(ctx context.Context, eventID, profileID string) (bool, error) {
	var exists bool
	err := a.tx.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM registration_members m
		   JOIN registrations r ON r.id = m.registration_id
		   WHERE r.event_id = ? AND m.profile_id = ?
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
		 FROM registrations WHERE event_id = ? AND team_name IS NULL
		 ORDER BY created_at ASC LIMIT 1`
	args := []any{eventID}
	if teamName != "" {
		query = `SELECT id, event_id, registration_mode, COALESCE(team_name, ''), created_at
		 FROM registrations WHERE event_id = ? AND team_name = ?`
		args = append(args, teamName)
	}

	var (
		reg     model.Registration
		mode    string
		created int64
	)
	err := a.tx.QueryRowContext(ctx, query, args...).
		Scan(&reg.ID, &reg.EventID, &mode, &reg.TeamName, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	reg.RegistrationMode = model.RegistrationMode(mode)
	reg.CreatedAt = fromMillis(created)
	return &reg, nil
}

func (a *admissionTx) CreateRegistration(ctx context.Context, r *model.Registration) error {
	var team any
	if r.TeamName != "" {
		team = r.TeamName
	}
	_, err := a.tx.ExecContext(ctx,
		`INSERT INTO registrations (id, event_id, registration_mode, team_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.EventID, string(r.RegistrationMode), team, toMillis(r.CreatedAt),
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
	_, err := a.tx.ExecContext(ctx,
		`INSERT INTO registration_members (id, registration_id, event_id, profile_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.RegistrationID, m.EventID, m.ProfileID, toMillis(m.CreatedAt),
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
	res, err := a.tx.ExecContext(ctx,
		`UPDATE events SET registered_count = registered_count + 1
		 WHERE id = ? AND (capacity IS NULL OR registered_count < capacity)`,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("increment registered_count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment registered_count: %w", err)
	}
	if n == 0 {
		return repository.ErrCapacityReached
	}
	return nil
}

func (a *admissionTx) IncrementProfileEvents(ctx context.Context, profileID string) error {
	res, err := a.tx.ExecContext(ctx,
		`UPDATE participant_profiles SET registered_events_count = registered_events_count + 1
		 WHERE id = ?`,
		profileID,
	)
	if err != nil {
		return fmt.Errorf("increment registered_events_count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment registered_events_count: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ─── Access requests ─────────────────────────────────────────────────────────

const accessRequestColumns = `id, admin_id, event_name, status, COALESCE(reviewed_by, ''),
	COALESCE(reviewer_username, ''), requested_at, reviewed_at, consumed_at`

func scanAccessRequest(row rowScanner) (*model.AccessRequest, error) {
	var (
		r                  model.AccessRequest
		status             string
		requested          int64
		reviewed, consumed sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.AdminID, &r.EventName, &status, &r.ReviewedBy,
		&r.ReviewerUsername, &requested, &reviewed, &consumed)
	if err != nil {
		return nil, err
	}
	r.Status = model.AccessStatus(status)
	r.RequestedAt = fromMillis(requested)
	r.ReviewedAt = fromNullMillis(reviewed)
	r.ConsumedAt = fromNullMillis(consumed)
	return &r, nil
}

// CreateAccessRequest inserts a new request.
func (s *Store) CreateAccessRequest(ctx context.Context, r *model.AccessRequest) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO access_requests (id, admin_id, event_name, status, requested_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.AdminID, r.EventName, string(r.Status), toMillis(r.RequestedAt),
	)
	if err != nil {
		return fmt.Errorf("insert access request: %w", err)
	}
	return nil
}

// GetAccessRequest returns a request by id or ErrNotFound.
func (s *Store) GetAccessRequest(ctx context.Context, id string) (*model.AccessRequest, error) {
	r, err := scanAccessRequest(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+accessRequestColumns+` FROM access_requests WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
		where = append(where, "admin_id = ?")
		args = append(args, filter.AdminID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := `SELECT ` + accessRequestColumns + ` FROM access_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY requested_at DESC, id ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
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

// ReviewAccessRequest applies review with a single conditional update.
func (s *Store) ReviewAccessRequest(ctx context.Context, id string, review repository.Review) (*model.AccessRequest, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE access_requests
		 SET status = ?, reviewed_by = ?, reviewer_username = ?, reviewed_at = ?
		 WHERE id = ? AND status = 'pending'`,
		string(review.Status), review.ReviewerID, review.ReviewerUsername, toMillis(review.ReviewedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("review access request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("review access request: %w", err)
	}

	r, err := s.GetAccessRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, repository.ErrConflict
	}
	return r, nil
}

// ─── Maintenance ─────────────────────────────────────────────────────────────

// ReconcileCounters recomputes denormalised counters from membership rows.
func (s *Store) ReconcileCounters(ctx context.Context) (model.ReconcileResult, error) {
	var res model.ReconcileResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx, `
UPDATE events SET registered_count = (
  SELECT COUNT(*) FROM registration_members m WHERE m.event_id = events.id
)
WHERE registered_count <> (
  SELECT COUNT(*) FROM registration_members m WHERE m.event_id = events.id
)`)
		if err != nil {
			return fmt.Errorf("reconcile events: %w", err)
		}
		if res.Events, err = r.RowsAffected(); err != nil {
			return fmt.Errorf("reconcile events: %w", err)
		}

		r, err = tx.ExecContext(ctx, `
UPDATE participant_profiles SET registered_events_count = (
  SELECT COUNT(DISTINCT m.event_id) FROM registration_members m WHERE m.profile_id = participant_profiles.id
)
WHERE registered_events_count <> (
  SELECT COUNT(DISTINCT m.event_id) FROM registration_members m WHERE m.profile_id = participant_profiles.id
)`)
		if err != nil {
			return fmt.Errorf("reconcile profiles: %w", err)
		}
		if res.Profiles, err = r.RowsAffected(); err != nil {
			return fmt.Errorf("reconcile profiles: %w", err)
		}
		return nil
	})
	return res, err
}
