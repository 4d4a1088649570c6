package records

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"medibook-server/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestWriter_RecordVisit(t *testing.T) {
	w := NewWriter(setupTestDB(t))
	ctx := context.Background()

	done := time.Date(2030, 5, 1, 10, 45, 0, 0, time.UTC)
	appt := &models.Appointment{
		PatientID:    "p-1",
		DoctorID:     "d-1",
		Purpose:      "Back pain",
		Notes:        "Mild strain, rest advised",
		Prescription: "Ibuprofen 400mg",
		Status:       models.StatusCompleted,
		CompletedAt:  &done,
	}
	appt.ID = "a-1"

	if err := w.RecordVisit(ctx, appt); err != nil {
		t.Fatalf("record: %v", err)
	}

	recs, err := w.ListForPatient(ctx, "p-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.RecordType != models.RecordTypeConsultation || r.AppointmentID != "a-1" || r.DoctorID != "d-1" {
		t.Errorf("unexpected record %+v", r)
	}
	if r.Title != "Consultation: Back pain" || r.Summary != appt.Notes || r.Details != appt.Prescription {
		t.Errorf("unexpected content %+v", r)
	}
	if !r.RecordDate.Equal(done) {
		t.Errorf("expected record date %v, got %v", done, r.RecordDate)
	}
}

func TestWriter_RecordVisitDefaults(t *testing.T) {
	w := NewWriter(setupTestDB(t))
	now := time.Date(2030, 5, 2, 8, 0, 0, 0, time.UTC)
	w.Now = func() time.Time { return now }

	appt := &models.Appointment{PatientID: "p-1", DoctorID: "d-1", Purpose: strings.Repeat("x", 300), Notes: "ok"}
	appt.ID = "a-2"
	if err := w.RecordVisit(context.Background(), appt); err != nil {
		t.Fatalf("record: %v", err)
	}

	recs, _ := w.ListForPatient(context.Background(), "p-1")
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if len(recs[0].Title) != 255 {
		t.Errorf("expected title truncated to 255, got %d", len(recs[0].Title))
	}
	if !recs[0].RecordDate.Equal(now) {
		t.Errorf("expected record date to default to now, got %v", recs[0].RecordDate)
	}
}

func TestWriter_ListForPatient(t *testing.T) {
	w := NewWriter(setupTestDB(t))
	ctx := context.Background()
	day := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)

	for i, patient := range []string{"p-1", "p-1", "p-2"} {
		rec := &models.MedicalRecord{
			PatientID:  patient,
			DoctorID:   "d-1",
			RecordType: models.RecordTypePrescription,
			RecordDate: day.Add(time.Duration(i) * 24 * time.Hour),
			Title:      "Rx",
			Summary:    "refill",
		}
		if err := w.Create(ctx, rec); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	recs, err := w.ListForPatient(ctx, "p-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if !recs[0].RecordDate.After(recs[1].RecordDate) {
		t.Errorf("expected newest first, got %v then %v", recs[0].RecordDate, recs[1].RecordDate)
	}

	none, err := w.ListForPatient(ctx, "p-3")
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("expected an empty non-nil list, got %v, %v", none, err)
	}
}
