// Package records files entries in a patient's medical history.
package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"medibook-server/internal/models"
)

// Writer persists medical records.
type Writer struct {
	db  *gorm.DB
	Now func() time.Time
}

// NewWriter creates a new Writer.
func NewWriter(db *gorm.DB) *Writer {
	return &Writer{db: db, Now: time.Now}
}

// RecordVisit files the notes and prescription of a completed appointment as
// one ConsultationNote.
func (w *Writer) RecordVisit(ctx context.Context, appt *models.Appointment) error {
	recordDate := w.Now().UTC()
	if appt.CompletedAt != nil {
		recordDate = appt.CompletedAt.UTC()
	}

	title := "Consultation"
	if purpose := strings.TrimSpace(appt.Purpose); purpose != "" {
		title = "Consultation: " + purpose
	}

	record := models.MedicalRecord{
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		AppointmentID: appt.ID,
		RecordType:    models.RecordTypeConsultation,
		RecordDate:    recordDate,
		Title:         truncate(title, 255),
		Summary:       appt.Notes,
		Details:       appt.Prescription,
	}
	return w.Create(ctx, &record)
}

// Create stores a record as given.
func (w *Writer) Create(ctx context.Context, record *models.MedicalRecord) error {
	if err := w.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create medical record: %w", err)
	}
	return nil
}

// ListForPatient returns a patient's records, newest first.
func (w *Writer) ListForPatient(ctx context.Context, patientID string) ([]models.MedicalRecord, error) {
	records := []models.MedicalRecord{}
	err := w.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("record_date desc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list medical records: %w", err)
	}
	return records, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
