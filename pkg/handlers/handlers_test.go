package handlers_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arnavshah/weekly-scheduler-go/pkg/auth"
	"github.com/arnavshah/weekly-scheduler-go/pkg/config"
	"github.com/arnavshah/weekly-scheduler-go/pkg/database"
	"github.com/arnavshah/weekly-scheduler-go/pkg/handlers"
	"github.com/arnavshah/weekly-scheduler-go/pkg/models"
	"github.com/arnavshah/weekly-scheduler-go/pkg/router"
	"github.com/arnavshah/weekly-scheduler-go/pkg/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ── Mock Store ──

type mockStore struct {
	mu       sync.Mutex
	keys     map[string]*database.APIKey
	requests map[uint]int
	events   []database.ScheduleEvent
	users    map[string]*database.MasterUser
}

func newMockStore() *mockStore {
	return &mockStore{
		keys:     make(map[string]*database.APIKey),
		requests: make(map[uint]int),
		users:    make(map[string]*database.MasterUser),
	}
}

func (m *mockStore) FindOrCreateKey(key, name string) (*database.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[key]; ok {
		return k, nil
	}
	k := &database.APIKey{ID: uint(len(m.keys) + 1), Key: key, Name: name, RateLimit: 10000}
	m.keys[key] = k
	return k, nil
}

func (m *mockStore) CreateKey(key, name string, rateLimit int) (*database.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := &database.APIKey{ID: uint(len(m.keys) + 1), Key: key, Name: name, RateLimit: rateLimit}
	m.keys[key] = k
	return k, nil
}

func (m *mockStore) ListKeys() ([]database.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.APIKey
	for _, k := range m.keys {
		out = append(out, *k)
	}
	return out, nil
}

func (m *mockStore) RevokeKey(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, k := range m.keys {
		if k.ID == id {
			delete(m.keys, key)
			return nil
		}
	}
	return database.ErrNotFound
}

func (m *mockStore) UpdateKeyLimit(id uint, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.ID == id {
			k.RateLimit = limit
			return nil
		}
	}
	return database.ErrNotFound
}

func (m *mockStore) RecordUsage(keyID uint, _, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[keyID]++
	return nil
}

func (m *mockStore) RequestsToday(keyID uint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[keyID], nil
}

func (m *mockStore) UsageForKey(keyID uint) ([]database.APIUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return []database.APIUsage{{KeyID: keyID, RequestCount: m.requests[keyID]}}, nil
}

func (m *mockStore) RecordEvent(ev *database.ScheduleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

func (m *mockStore) EventsForSession(id string) ([]database.ScheduleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.ScheduleEvent
	for _, ev := range m.events {
		if ev.SessionID == id {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *mockStore) FindUser(username string) (*database.MasterUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[username]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

// ── Helpers ──

type testServer struct {
	engine *gin.Engine
	store  *mockStore
	auth   *auth.Manager
	key    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := newMockStore()
	authMgr := auth.NewManager(&config.AuthConfig{
		JWTSecret:    "0123456789abcdef0123",
		MasterSecret: "master",
		TokenTTL:     time.Hour,
	})
	logger := zap.NewNop()
	h := &handlers.Handler{
		Store:    store,
		Auth:     authMgr,
		Sessions: session.NewManager(session.NewMemoryStore(time.Hour), logger),
		Logger:   logger,
	}
	return &testServer{
		engine: router.Setup(h, logger),
		store:  store,
		auth:   authMgr,
		key:    authMgr.GenerateKey("rota-team"),
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func seed(n int64) *int64 { return &n }

// A holds capacity for one shift, B for two. Both can work both days.
var scenario = models.AvailabilityInput{
	Shifts: []string{"Mon", "Tue"},
	Employees: []models.EmployeeAvailability{
		{ID: "A", MaxHours: 1, Availability: map[string]int{"Mon": 1, "Tue": 1}},
		{ID: "B", MaxHours: 2, Availability: map[string]int{"Mon": 1, "Tue": 1}},
	},
	Seed: seed(1),
}

func (s *testServer) create(t *testing.T) models.ScheduleResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/schedules", s.key, scenario)
	if w.Code != http.StatusCreated {
		t.Fatalf("create schedule: status %d body %s", w.Code, w.Body.String())
	}
	return decode[models.ScheduleResponse](t, w)
}

// ── Tests ──

func TestCreateSchedule_JSON(t *testing.T) {
	s := newTestServer(t)
	resp := s.create(t)

	if resp.SessionID == "" {
		t.Fatalf("Expected a session id")
	}
	if strings.Join(resp.Schedule.Shifts, ",") != "Mon,Tue" {
		t.Errorf("Unexpected shifts %v", resp.Schedule.Shifts)
	}
	if len(resp.Schedule.Rows) != 2 || resp.Schedule.Rows[0].Employee != "A" {
		t.Fatalf("Unexpected rows %+v", resp.Schedule.Rows)
	}
	for col := range resp.Schedule.Shifts {
		n := resp.Schedule.Rows[0].Assignments[col] + resp.Schedule.Rows[1].Assignments[col]
		if n != 1 {
			t.Errorf("Expected one assignee for %s, got %d", resp.Schedule.Shifts[col], n)
		}
	}
	if len(resp.UncoveredShifts) != 0 {
		t.Errorf("Expected full coverage, got %v", resp.UncoveredShifts)
	}
	if len(s.store.events) != 1 || s.store.events[0].Action != database.ActionSolve {
		t.Errorf("Expected a solve event, got %+v", s.store.events)
	}
}

func TestCreateSchedule_CSVUpload(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("availability_file", "availability.csv")
	fw.Write([]byte("Employee,MaxHoursPerWeek,Mon,Tue\nA,1,1,0\nB,1,0,0\n"))
	mw.WriteField("seed", "3")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/schedules", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.key)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	resp := decode[models.ScheduleResponse](t, w)
	if strings.Join(resp.UncoveredShifts, ",") != "Tue" {
		t.Errorf("Expected Tue uncovered, got %v", resp.UncoveredShifts)
	}
	if len(resp.Conflicts) != 1 || resp.Conflicts[0].Shift != "Tue" {
		t.Errorf("Expected a conflict for Tue, got %+v", resp.Conflicts)
	}
}

func TestCreateSchedule_Malformed(t *testing.T) {
	s := newTestServer(t)

	cases := map[string]models.AvailabilityInput{
		"duplicate employee": {
			Shifts: []string{"Mon"},
			Employees: []models.EmployeeAvailability{
				{ID: "A", MaxHours: 1},
				{ID: "A", MaxHours: 1},
			},
		},
		"non binary": {
			Shifts:    []string{"Mon"},
			Employees: []models.EmployeeAvailability{{ID: "A", MaxHours: 1, Availability: map[string]int{"Mon": 2}}},
		},
		"negative capacity": {
			Shifts:    []string{"Mon"},
			Employees: []models.EmployeeAvailability{{ID: "A", MaxHours: -1}},
		},
		"unlisted shift": {
			Shifts:    []string{"Mon"},
			Employees: []models.EmployeeAvailability{{ID: "A", MaxHours: 1, Availability: map[string]int{"Sun": 1}}},
		},
	}
	for name, input := range cases {
		w := s.do(t, http.MethodPost, "/api/schedules", s.key, input)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d (%s)", name, w.Code, w.Body.String())
		}
	}
}

func TestSwapAndReset(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t)
	base := "/api/schedules/" + created.SessionID

	// Each shift has a single assignee, so the swap is refused.
	w := s.do(t, http.MethodPost, base+"/swap", s.key, models.SwapRequest{EmployeeA: "A", EmployeeB: "B", Shift: "Mon"})
	if w.Code != http.StatusOK {
		t.Fatalf("swap: status %d body %s", w.Code, w.Body.String())
	}
	swap := decode[models.SwapResponse](t, w)
	if swap.Swapped {
		t.Errorf("Expected swap to be refused")
	}

	w = s.do(t, http.MethodPost, base+"/swap", s.key, models.SwapRequest{EmployeeA: "A", EmployeeB: "Z", Shift: "Mon"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for unknown employee, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, base+"/swap", s.key, map[string]string{"employee_a": "A"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for incomplete swap request, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, base+"/reset", s.key, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: status %d", w.Code)
	}
	reset := decode[models.ScheduleResponse](t, w)
	if reset.Modified {
		t.Errorf("Expected unmodified schedule after reset")
	}
	for i := range reset.Schedule.Rows {
		got, want := reset.Schedule.Rows[i].Assignments, created.Schedule.Rows[i].Assignments
		for j := range got {
			if got[j] != want[j] {
				t.Errorf("Reset schedule differs from solved schedule: %+v vs %+v", reset.Schedule, created.Schedule)
			}
		}
	}

	events, _ := s.store.EventsForSession(created.SessionID)
	var actions []string
	for _, ev := range events {
		actions = append(actions, ev.Action)
	}
	if got := strings.Join(actions, ","); got != "solve,swap,reset" {
		t.Errorf("Unexpected audit trail %s", got)
	}
}

func TestExports(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t)
	base := "/api/schedules/" + created.SessionID

	w := s.do(t, http.MethodGet, base+"/csv", s.key, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("csv: status %d", w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), "employee_id,Mon,Tue\nA,") {
		t.Errorf("Unexpected CSV %q", w.Body.String())
	}

	w = s.do(t, http.MethodGet, base+"/xlsx", s.key, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("xlsx: status %d", w.Code)
	}
	// xlsx files are zip archives.
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Errorf("Expected a zip payload")
	}
}

func TestSessionIsolation(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t)
	other := s.auth.GenerateKey("other-team")

	w := s.do(t, http.MethodGet, "/api/schedules/"+created.SessionID, other, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected another key to get 404, got %d", w.Code)
	}
	w = s.do(t, http.MethodGet, "/api/schedules/does-not-exist", s.key, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown session, got %d", w.Code)
	}
}

func TestDeleteSchedule(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t)
	path := "/api/schedules/" + created.SessionID

	if w := s.do(t, http.MethodDelete, path, s.key, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: status %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, path, s.key, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(t, http.MethodGet, "/api/usage", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/usage", "forged.abcdef", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for forged key, got %d", w.Code)
	}

	s.create(t)
	k, _ := s.store.FindOrCreateKey(s.key, "rota-team")
	k.RateLimit = 1
	if w := s.do(t, http.MethodGet, "/api/usage", s.key, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 once the limit is reached, got %d", w.Code)
	}
}

func TestAPIKeyMiddleware_CountsEveryRequest(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t)
	path := "/api/schedules/" + created.SessionID

	s.do(t, http.MethodGet, path, s.key, nil)
	s.do(t, http.MethodGet, path+"/csv", s.key, nil)
	s.do(t, http.MethodPost, path+"/reset", s.key, nil)

	k, _ := s.store.FindOrCreateKey(s.key, "rota-team")
	if n, _ := s.store.RequestsToday(k.ID); n != 4 {
		t.Fatalf("Expected solve, get, export and reset to count as 4 requests, got %d", n)
	}

	k.RateLimit = 4
	if w := s.do(t, http.MethodGet, path, s.key, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 once non-solve requests reach the limit, got %d", w.Code)
	}
}

func TestValidateInput(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/validate", s.key, scenario)
	body := decode[map[string]any](t, w)
	if body["valid"] != true {
		t.Errorf("Expected valid payload, got %v", body)
	}

	bad := models.AvailabilityInput{
		Shifts:    []string{"Mon", "Mon"},
		Employees: []models.EmployeeAvailability{{ID: "A", MaxHours: 1}},
	}
	w = s.do(t, http.MethodPost, "/api/validate", s.key, bad)
	body = decode[map[string]any](t, w)
	if body["valid"] != false || body["column"] != "Mon" {
		t.Errorf("Expected duplicate shift to be reported, got %v", body)
	}
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	s.store.users["admin"] = &database.MasterUser{ID: 1, Username: "admin", PasswordHash: hash}

	w := s.do(t, http.MethodPost, "/admin/login", "", map[string]string{"username": "admin", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad password, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/admin/login", "", map[string]string{"username": "admin", "password": "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", w.Code, w.Body.String())
	}
	token := decode[map[string]string](t, w)["access_token"]

	if w := s.do(t, http.MethodGet, "/admin/keys", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/admin/keys", token, map[string]any{"name": "night-shift"})
	if w.Code != http.StatusOK {
		t.Fatalf("generate key: status %d body %s", w.Code, w.Body.String())
	}
	issued := decode[map[string]any](t, w)
	if user, err := s.auth.VerifyKey(issued["key"].(string)); err != nil || user != "night-shift" {
		t.Errorf("Issued key does not verify: %v %v", user, err)
	}

	created := s.create(t)
	w = s.do(t, http.MethodGet, "/admin/events/"+created.SessionID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("events: status %d", w.Code)
	}
	events := decode[map[string][]database.ScheduleEvent](t, w)["events"]
	if len(events) != 1 {
		t.Errorf("Expected one event, got %d", len(events))
	}

	if w := s.do(t, http.MethodDelete, "/admin/keys/999", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 revoking unknown key, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPut, "/admin/keys/abc", token, map[string]int{"rate_limit": 5}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad id, got %d", w.Code)
	}
}
