package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"medibook-server/internal/models"
)

type memRecords struct {
	records []models.MedicalRecord
	err     error
}

func (m *memRecords) Create(_ context.Context, r *models.MedicalRecord) error {
	if m.err != nil {
		return m.err
	}
	r.ID = "rec-" + r.PatientID
	m.records = append(m.records, *r)
	return nil
}

func (m *memRecords) ListForPatient(_ context.Context, patientID string) ([]models.MedicalRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []models.MedicalRecord{}
	for _, r := range m.records {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, nil
}

const (
	patientID = "3c9e1f2a-7b4d-4e8a-9c6f-0d1e2f3a4b5c"
	doctorID  = "8d7c6b5a-4f3e-4d2c-8b1a-9f8e7d6c5b4a"
	otherID   = "1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d"
)

func newRecordEnv() (*apptEnv, *memRecords) {
	dir := &mockDirectory{users: []models.User{
		user(patientID, models.RolePatient, ""),
		user(doctorID, models.RoleDoctor, "Cardiology"),
	}}
	recs := &memRecords{}
	h := NewMedicalRecordHandler(recs, dir, zerolog.Nop())

	r := gin.New()
	r.Use(withIdentity())
	r.POST("/medical-records", h.CreateMedicalRecord)
	r.GET("/medical-records/patient/:patientId", h.GetMedicalRecordsForPatient)
	return &apptEnv{router: r}, recs
}

func TestCreateMedicalRecord(t *testing.T) {
	env, recs := newRecordEnv()
	doctor := user(doctorID, models.RoleDoctor, "")

	w, _ := env.do(t, http.MethodPost, "/medical-records", doctor, map[string]string{
		"patientId":  patientID,
		"recordType": "Prescription",
		"recordDate": "2030-01-02T15:04:05Z",
		"title":      "Statin",
		"summary":    "Atorvastatin 20mg",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", w.Code, w.Body.String())
	}
	if len(recs.records) != 1 || recs.records[0].DoctorID != doctorID {
		t.Fatalf("unexpected stored records %+v", recs.records)
	}
	if !recs.records[0].RecordDate.Equal(time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC)) {
		t.Errorf("unexpected record date %v", recs.records[0].RecordDate)
	}

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"unknown type", map[string]string{"patientId": patientID, "recordType": "Xray", "title": "t", "summary": "s"}, http.StatusBadRequest},
		{"bad date", map[string]string{"patientId": patientID, "recordType": "Prescription", "recordDate": "yesterday", "title": "t", "summary": "s"}, http.StatusBadRequest},
		{"unknown patient", map[string]string{"patientId": otherID, "recordType": "Prescription", "title": "t", "summary": "s"}, http.StatusNotFound},
		{"doctor as patient", map[string]string{"patientId": doctorID, "recordType": "Prescription", "title": "t", "summary": "s"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		if w, _ := env.do(t, http.MethodPost, "/medical-records", doctor, tt.body); w.Code != tt.want {
			t.Errorf("%s: expected %d, got %d %s", tt.name, tt.want, w.Code, w.Body.String())
		}
	}
}

func TestGetMedicalRecordsForPatient(t *testing.T) {
	env, recs := newRecordEnv()
	recs.records = []models.MedicalRecord{
		{PatientID: patientID, Title: "Visit", RecordType: models.RecordTypeConsultation},
	}

	tests := []struct {
		name string
		as   models.User
		want int
	}{
		{"self", user(patientID, models.RolePatient, ""), http.StatusOK},
		{"doctor", user(doctorID, models.RoleDoctor, ""), http.StatusOK},
		{"admin", user(otherID, models.RoleAdmin, ""), http.StatusOK},
		{"other patient", user(otherID, models.RolePatient, ""), http.StatusForbidden},
	}
	for _, tt := range tests {
		w, resp := env.do(t, http.MethodGet, "/medical-records/patient/"+patientID, tt.as, nil)
		if w.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, w.Code)
			continue
		}
		if tt.want == http.StatusOK {
			var got []models.MedicalRecord
			json.Unmarshal(resp.Data, &got)
			if len(got) != 1 {
				t.Errorf("%s: expected 1 record, got %d", tt.name, len(got))
			}
		}
	}

	if w, _ := env.do(t, http.MethodGet, "/medical-records/patient/bad-id", user(doctorID, models.RoleDoctor, ""), nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", w.Code)
	}
}
