package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"medibook-server/internal/config"
	"medibook-server/internal/directory"
	"medibook-server/internal/events"
	"medibook-server/internal/handlers"
	"medibook-server/internal/models"
	"medibook-server/internal/records"
	"medibook-server/internal/scheduling"
	"medibook-server/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	t      *testing.T
	router *gin.Engine
}

func newServer(t *testing.T) *server {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{JWTSecret: "routes-secret", JWTExpirationMinutes: 30, Environment: "development"}
	log := zerolog.Nop()

	users := directory.NewStore(db)
	cached := directory.NewCached(users, 64, time.Minute, log)
	writer := records.NewWriter(db)
	engine := scheduling.NewEngine(store.NewAppointmentStore(db), cached, scheduling.DefaultRules(), log)
	engine.Publisher = events.Nop{}
	engine.Recorder = writer

	auth := handlers.NewAuthHandler(db, cfg, log)
	auth.OnProfileChange = cached.Invalidate

	r := gin.New()
	SetupRoutes(r, Handlers{
		Auth:          auth,
		Users:         handlers.NewUserHandler(users, log),
		Appointments:  handlers.NewAppointmentHandler(engine, log),
		MedicalRecord: handlers.NewMedicalRecordHandler(writer, cached, log),
	}, cfg)
	return &server{t: t, router: r}
}

type response struct {
	Code    int
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (s *server) call(method, path, token string, body interface{}) response {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		s.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	resp.Code = w.Code
	return resp
}

// signup registers a user and returns its id and access token.
func (s *server) signup(email, role, specialization string) (string, string) {
	s.t.Helper()
	resp := s.call(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"firstName":      "Test",
		"lastName":       role,
		"email":          email,
		"password":       "password123",
		"role":           role,
		"specialization": specialization,
	})
	if resp.Code != http.StatusCreated {
		s.t.Fatalf("register %s: got %d", email, resp.Code)
	}
	resp = s.call(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": "password123"})
	if resp.Code != http.StatusOK {
		s.t.Fatalf("login %s: got %d", email, resp.Code)
	}
	var login handlers.LoginResponse
	json.Unmarshal(resp.Data, &login)
	return login.User.ID, login.AccessToken
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestRoutes_RequireAuthentication(t *testing.T) {
	s := newServer(t)
	for _, path := range []string{"/api/v1/appointments", "/api/v1/users/doctors", "/api/v1/auth/profile"} {
		if resp := s.call(http.MethodGet, path, "", nil); resp.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, resp.Code)
		}
	}
}

func TestRoutes_BookingFlow(t *testing.T) {
	s := newServer(t)
	doctorID, doctorToken := s.signup("doc@example.com", "doctor", "Cardiology")
	patientID, patientToken := s.signup("pat@example.com", "patient", "")
	_, otherToken := s.signup("other@example.com", "patient", "")

	resp := s.call(http.MethodGet, "/api/v1/users/doctors?specialization=cardiology", patientToken, nil)
	var doctors []models.UserSanitized
	json.Unmarshal(resp.Data, &doctors)
	if len(doctors) != 1 || doctors[0].ID != doctorID {
		t.Fatalf("unexpected doctors %+v", doctors)
	}

	slot := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)
	resp = s.call(http.MethodPost, "/api/v1/appointments", patientToken, map[string]string{
		"doctorId":    doctorID,
		"scheduledAt": slot.Format(time.RFC3339),
		"purpose":     "Chest pain",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("book: expected 201, got %d", resp.Code)
	}
	var booked scheduling.AppointmentView
	json.Unmarshal(resp.Data, &booked)

	resp = s.call(http.MethodPost, "/api/v1/appointments", otherToken, map[string]string{
		"doctorId":    doctorID,
		"scheduledAt": slot.Add(30 * time.Minute).Format(time.RFC3339),
	})
	if resp.Code != http.StatusConflict {
		t.Errorf("conflicting booking: expected 409, got %d", resp.Code)
	}

	resp = s.call(http.MethodPost, "/api/v1/appointments", doctorToken, map[string]string{
		"doctorId":    doctorID,
		"scheduledAt": slot.Add(5 * time.Hour).Format(time.RFC3339),
	})
	if resp.Code != http.StatusForbidden {
		t.Errorf("doctor booking: expected 403, got %d", resp.Code)
	}

	if resp = s.call(http.MethodPatch, "/api/v1/appointments/"+booked.ID+"/accept", patientToken, nil); resp.Code != http.StatusForbidden {
		t.Errorf("patient accept: expected 403, got %d", resp.Code)
	}
	resp = s.call(http.MethodPatch, "/api/v1/appointments/"+booked.ID+"/accept", doctorToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d", resp.Code)
	}

	if resp = s.call(http.MethodGet, "/api/v1/appointments/"+booked.ID, otherToken, nil); resp.Code != http.StatusForbidden {
		t.Errorf("stranger get: expected 403, got %d", resp.Code)
	}

	resp = s.call(http.MethodGet, "/api/v1/appointments?status=confirmed", doctorToken, nil)
	var page scheduling.Page
	json.Unmarshal(resp.Data, &page)
	if page.Total != 1 || page.Items[0].PatientID != patientID {
		t.Errorf("unexpected doctor listing %+v", page)
	}

	resp = s.call(http.MethodPatch, "/api/v1/appointments/"+booked.ID+"/cancel", patientToken, map[string]string{"reason": "feeling better"})
	if resp.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", resp.Code)
	}

	resp = s.call(http.MethodPost, "/api/v1/appointments", otherToken, map[string]string{
		"doctorId":    doctorID,
		"scheduledAt": slot.Add(30 * time.Minute).Format(time.RFC3339),
	})
	if resp.Code != http.StatusCreated {
		t.Errorf("booking a freed slot: expected 201, got %d", resp.Code)
	}

	resp = s.call(http.MethodGet, "/api/v1/medical-records/patient/"+patientID, otherToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("other patient's records: expected 403, got %d", resp.Code)
	}
}
