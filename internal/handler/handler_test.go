package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/auth"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/repository/sqlite"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/service"
)

var testSecret = []byte("handler-test-secret-0123456789")

type testServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	router := NewRouter(Router{
		Events: NewEventHandler(
			service.NewEventService(store, log),
			service.NewAdmissionService(store, log),
			log,
		),
		Profiles:   NewProfileHandler(service.NewProfileService(store), log),
		Access:     NewAccessHandler(service.NewAccessRequestService(store, log), log),
		AuthSecret: testSecret,
		Log:        log,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv}
}

func token(t *testing.T, subject string, role auth.Role) string {
	t.Helper()

	tok, err := auth.Issue(testSecret, auth.Identity{Subject: subject, Username: subject + "-name", Role: role}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

// call sends body as JSON and decodes the response into out when out is
// non-nil. It returns the status code.
func (s *testServer) call(method, path, tok string, body, out any) int {
	s.t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, rdr)
	if err != nil {
		s.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := s.srv.Client().Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			s.t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// createEvent grants adminID the name and creates the event over HTTP.
func (s *testServer) createEvent(adminID string, req model.CreateEventRequest) model.Event {
	s.t.Helper()

	adminTok := token(s.t, adminID, auth.RoleAdmin)
	var ar model.AccessRequest
	if code := s.call(http.MethodPost, "/access-requests", adminTok, model.SubmitAccessRequest{EventName: req.Name}, &ar); code != http.StatusCreated {
		s.t.Fatalf("submit access request status = %d", code)
	}
	globalTok := token(s.t, "global-1", auth.RoleGlobalAdmin)
	if code := s.call(http.MethodPost, "/access-requests/"+ar.ID+"/review", globalTok, map[string]string{"status": "approved"}, nil); code != http.StatusOK {
		s.t.Fatalf("approve status = %d", code)
	}

	var e model.Event
	if code := s.call(http.MethodPost, "/events", adminTok, req, &e); code != http.StatusCreated {
		s.t.Fatalf("create event status = %d", code)
	}
	return e
}

func (s *testServer) createProfile(userKey string) {
	s.t.Helper()

	if code := s.call(http.MethodPost, "/profiles", token(s.t, userKey, auth.RoleParticipant), map[string]string{}, nil); code != http.StatusCreated {
		s.t.Fatalf("create profile %s status = %d", userKey, code)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	var body map[string]string
	if code := s.call(http.MethodGet, "/health", "", nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)
	participant := token(t, "user-a", auth.RoleParticipant)

	tests := []struct {
		name   string
		method string
		path   string
		tok    string
		want   int
	}{
		{"no token", http.MethodGet, "/profiles/me", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/profiles/me", "not-a-jwt", http.StatusUnauthorized},
		{"participant creating event", http.MethodPost, "/events", participant, http.StatusForbidden},
		{"participant listing requests", http.MethodGet, "/access-requests", participant, http.StatusForbidden},
		{"admin reconciling", http.MethodPost, "/admin/reconcile", token(t, "admin-1", auth.RoleAdmin), http.StatusForbidden},
		{"admin registering", http.MethodPost, "/events/x/register", token(t, "admin-1", auth.RoleAdmin), http.StatusForbidden},
		{"public event list", http.MethodGet, "/events", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := s.call(tt.method, tt.path, tt.tok, nil, nil); code != tt.want {
				t.Fatalf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestRegisterFlow(t *testing.T) {
	s := newTestServer(t)
	capacity := 2
	e := s.createEvent("admin-1", model.CreateEventRequest{
		Name: "Spring Symposium", StartDate: "2025-06-01", EndDate: "2025-06-03", Capacity: &capacity,
	})
	for _, key := range []string{"user-a", "user-b", "user-c"} {
		s.createProfile(key)
	}
	path := "/events/" + e.ID + "/register"

	var res model.RegistrationResult
	if code := s.call(http.MethodPost, path, token(t, "user-a", auth.RoleParticipant), map[string]string{}, &res); code != http.StatusCreated {
		t.Fatalf("register A status = %d, want 201", code)
	}
	if res.EventID != e.ID || res.RegistrationID == "" {
		t.Fatalf("result = %+v", res)
	}
	if code := s.call(http.MethodPost, path, token(t, "user-b", auth.RoleParticipant), map[string]string{"registration_type": "individual"}, nil); code != http.StatusCreated {
		t.Fatalf("register B status = %d, want 201", code)
	}

	var errBody model.ErrorResponse
	if code := s.call(http.MethodPost, path, token(t, "user-c", auth.RoleParticipant), map[string]string{}, &errBody); code != http.StatusConflict {
		t.Fatalf("register C status = %d, want 409", code)
	}
	if errBody.Error != service.ErrEventFull.Error() {
		t.Fatalf("error = %q, want %q", errBody.Error, service.ErrEventFull.Error())
	}
	if code := s.call(http.MethodPost, path, token(t, "user-a", auth.RoleParticipant), map[string]string{}, nil); code != http.StatusConflict {
		t.Fatalf("re-register A status = %d, want 409", code)
	}

	var view model.EventView
	if code := s.call(http.MethodGet, "/events/"+e.ID, "", nil, &view); code != http.StatusOK {
		t.Fatalf("get event status = %d", code)
	}
	if view.RegisteredCount != 2 || view.Remaining == nil || *view.Remaining != 0 || view.FillPercent != 100 {
		t.Fatalf("view = %+v, want full", view)
	}

	var roster []model.RosterEntry
	if code := s.call(http.MethodGet, "/events/"+e.ID+"/registrations", token(t, "admin-1", auth.RoleAdmin), nil, &roster); code != http.StatusOK {
		t.Fatalf("roster status = %d", code)
	}
	if len(roster) != 1 || len(roster[0].Members) != 2 {
		t.Fatalf("roster = %+v, want one shared registration with 2 members", roster)
	}
}

func TestRegisterErrors(t *testing.T) {
	s := newTestServer(t)
	team := s.createEvent("admin-1", model.CreateEventRequest{
		Name: "Hackathon", StartDate: "2025-06-01", EndDate: "2025-06-02", RegistrationMode: model.ModeTeam,
	})
	s.createProfile("user-a")
	userA := token(t, "user-a", auth.RoleParticipant)
	path := "/events/" + team.ID + "/register"

	tests := []struct {
		name string
		path string
		tok  string
		body any
		want int
	}{
		{"team name required", path, userA, map[string]string{}, http.StatusBadRequest},
		{"mode mismatch", path, userA, map[string]string{"registration_type": "individual"}, http.StatusBadRequest},
		{"other participant", path, userA, map[string]string{"participant_id": "user-b", "team_name": "Owls"}, http.StatusForbidden},
		{"event id mismatch", path, userA, map[string]string{"event_id": "other", "team_name": "Owls"}, http.StatusBadRequest},
		{"unknown event", "/events/missing/register", userA, map[string]string{}, http.StatusNotFound},
		{"no profile", path, token(t, "user-z", auth.RoleParticipant), map[string]string{"team_name": "Owls"}, http.StatusNotFound},
		{"unknown field", path, userA, `{"team":"Owls"}`, http.StatusBadRequest},
		{"malformed body", path, userA, `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := s.call(http.MethodPost, tt.path, tt.tok, tt.body, nil); code != tt.want {
				t.Fatalf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestGlobalAdminRegistersOnBehalf(t *testing.T) {
	s := newTestServer(t)
	e := s.createEvent("admin-1", model.CreateEventRequest{Name: "Orientation", StartDate: "2025-06-01", EndDate: "2025-06-01"})
	s.createProfile("user-a")
	globalTok := token(t, "global-1", auth.RoleGlobalAdmin)
	path := "/events/" + e.ID + "/register"

	if code := s.call(http.MethodPost, path, globalTok, map[string]string{}, nil); code != http.StatusBadRequest {
		t.Fatalf("without participant status = %d, want 400", code)
	}
	if code := s.call(http.MethodPost, path, globalTok, map[string]string{"participant_id": "user-a"}, nil); code != http.StatusCreated {
		t.Fatalf("on behalf status = %d, want 201", code)
	}

	var p model.ParticipantProfile
	if code := s.call(http.MethodGet, "/profiles/me", token(t, "user-a", auth.RoleParticipant), nil, &p); code != http.StatusOK {
		t.Fatalf("profile status = %d", code)
	}
	if p.RegisteredEventsCount != 1 {
		t.Fatalf("registered_events_count = %d, want 1", p.RegisteredEventsCount)
	}
}

func TestCreateEventErrors(t *testing.T) {
	s := newTestServer(t)
	adminTok := token(t, "admin-1", auth.RoleAdmin)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"no grant", model.CreateEventRequest{Name: "Unapproved", StartDate: "2025-06-01", EndDate: "2025-06-01"}, http.StatusForbidden},
		{"missing name", map[string]string{"start_date": "2025-06-01", "end_date": "2025-06-01"}, http.StatusBadRequest},
		{"negative capacity", map[string]any{"name": "x", "start_date": "2025-06-01", "end_date": "2025-06-01", "capacity": -1}, http.StatusBadRequest},
		{"bad mode", map[string]any{"name": "x", "start_date": "2025-06-01", "end_date": "2025-06-01", "registration_mode": "solo"}, http.StatusBadRequest},
		{"bad date", map[string]any{"name": "x", "start_date": "tomorrow", "end_date": "2025-06-01"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := s.call(http.MethodPost, "/events", adminTok, tt.body, nil); code != tt.want {
				t.Fatalf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestProfileEndpoints(t *testing.T) {
	s := newTestServer(t)
	userA := token(t, "user-a", auth.RoleParticipant)

	if code := s.call(http.MethodGet, "/profiles/me", userA, nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing profile status = %d, want 404", code)
	}
	if code := s.call(http.MethodPost, "/profiles", userA, map[string]string{"user_key": "user-b"}, nil); code != http.StatusForbidden {
		t.Fatalf("foreign key status = %d, want 403", code)
	}

	var p model.ParticipantProfile
	if code := s.call(http.MethodPost, "/profiles", userA, map[string]string{"display_name": "Ada"}, &p); code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", code)
	}
	if p.UserKey != "user-a" || p.DisplayName != "Ada" {
		t.Fatalf("profile = %+v", p)
	}
	if code := s.call(http.MethodPost, "/profiles", userA, map[string]string{}, nil); code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", code)
	}
}

func TestAccessRequestEndpoints(t *testing.T) {
	s := newTestServer(t)
	adminTok := token(t, "admin-1", auth.RoleAdmin)
	globalTok := token(t, "global-1", auth.RoleGlobalAdmin)

	if code := s.call(http.MethodPost, "/access-requests", adminTok, map[string]string{"event_name": "Chess", "admin_id": "admin-2"}, nil); code != http.StatusForbidden {
		t.Fatalf("foreign admin status = %d, want 403", code)
	}
	if code := s.call(http.MethodPost, "/access-requests", adminTok, map[string]string{"event_name": " "}, nil); code != http.StatusBadRequest {
		t.Fatalf("blank name status = %d, want 400", code)
	}

	var ar model.AccessRequest
	if code := s.call(http.MethodPost, "/access-requests", adminTok, map[string]string{"event_name": "Chess"}, &ar); code != http.StatusCreated {
		t.Fatalf("submit status = %d, want 201", code)
	}
	if ar.Status != model.AccessPending || ar.AdminID != "admin-1" {
		t.Fatalf("request = %+v", ar)
	}

	var pending []model.AccessRequest
	if code := s.call(http.MethodGet, "/access-requests?status=pending", globalTok, nil, &pending); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if len(pending) != 1 || pending[0].ID != ar.ID {
		t.Fatalf("pending = %+v", pending)
	}
	if code := s.call(http.MethodGet, "/access-requests?status=archived", globalTok, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad filter status = %d, want 400", code)
	}

	review := "/access-requests/" + ar.ID + "/review"
	if code := s.call(http.MethodPost, review, globalTok, map[string]string{"status": "maybe"}, nil); code != http.StatusBadRequest {
		t.Fatalf("bad decision status = %d, want 400", code)
	}
	if code := s.call(http.MethodPost, review, globalTok, map[string]string{"status": "approved", "reviewer_id": "global-2"}, nil); code != http.StatusForbidden {
		t.Fatalf("foreign reviewer status = %d, want 403", code)
	}

	var reviewed model.AccessRequest
	if code := s.call(http.MethodPost, review, globalTok, map[string]string{"status": "approved"}, &reviewed); code != http.StatusOK {
		t.Fatalf("approve status = %d, want 200", code)
	}
	if reviewed.ReviewedBy != "global-1" || reviewed.ReviewerUsername != "global-1-name" {
		t.Fatalf("reviewer = %q/%q", reviewed.ReviewedBy, reviewed.ReviewerUsername)
	}
	if code := s.call(http.MethodPost, review, globalTok, map[string]string{"status": "rejected"}, nil); code != http.StatusConflict {
		t.Fatalf("second review status = %d, want 409", code)
	}
	if code := s.call(http.MethodPost, "/access-requests/missing/review", globalTok, map[string]string{"status": "approved"}, nil); code != http.StatusNotFound {
		t.Fatalf("unknown request status = %d, want 404", code)
	}

	var mine []model.AccessRequest
	if code := s.call(http.MethodGet, "/access-requests/mine", adminTok, nil, &mine); code != http.StatusOK {
		t.Fatalf("mine status = %d", code)
	}
	if len(mine) != 1 || mine[0].Status != model.AccessApproved {
		t.Fatalf("mine = %+v", mine)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	s := newTestServer(t)

	var res model.ReconcileResult
	if code := s.call(http.MethodPost, "/admin/reconcile", token(t, "global-1", auth.RoleGlobalAdmin), nil, &res); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if res.Events != 0 || res.Profiles != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrProfileNotFound, http.StatusNotFound},
		{service.ErrEventNotFound, http.StatusNotFound},
		{service.ErrRequestNotFound, http.StatusNotFound},
		{service.ErrAlreadyRegistered, http.StatusConflict},
		{service.ErrEventFull, http.StatusConflict},
		{service.ErrAlreadyReviewed, http.StatusConflict},
		{service.ErrTeamNameRequired, http.StatusBadRequest},
		{service.ErrModeMismatch, http.StatusBadRequest},
		{service.ErrInvalidDecision, http.StatusBadRequest},
		{service.ErrAccessNotGranted, http.StatusForbidden},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
