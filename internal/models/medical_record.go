package models

import (
	"time"
)

// MedicalRecordType represents the type of medical record
type MedicalRecordType string

const (
	RecordTypeConsultation MedicalRecordType = "ConsultationNote"
	RecordTypePrescription MedicalRecordType = "Prescription"
)

// MedicalRecord is an entry in a patient's history. Completed appointments
// with clinical notes produce one ConsultationNote each.
type MedicalRecord struct {
	BaseModel
	PatientID     string            `gorm:"size:36;index;not null" json:"patientId"`
	DoctorID      string            `gorm:"size:36;index" json:"doctorId"`
	AppointmentID string            `gorm:"size:36;index" json:"appointmentId,omitempty"`
	RecordType    MedicalRecordType `gorm:"size:50" json:"recordType"`
	RecordDate    time.Time         `json:"date"`
	Title         string            `gorm:"size:255;not null" json:"title"`
	Summary       string            `gorm:"type:text" json:"summary"`
	Details       string            `gorm:"type:text" json:"details"`
}
