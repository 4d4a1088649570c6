package models

import (
	"time"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// ActiveStatuses are the statuses that occupy a doctor's slot.
var ActiveStatuses = []AppointmentStatus{StatusPending, StatusConfirmed}

// ParseStatus accepts only the canonical status names.
func ParseStatus(s string) (AppointmentStatus, bool) {
	switch st := AppointmentStatus(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, true
	}
	return "", false
}

// IsActive reports whether the appointment still holds its slot.
func (s AppointmentStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// IsTerminal reports whether no further transition is allowed.
func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Appointment represents a scheduled medical appointment
type Appointment struct {
	BaseModel
	PatientID          string            `gorm:"size:36;index;not null" json:"patientId"`
	DoctorID           string            `gorm:"size:36;not null;index:idx_appointments_doctor_slot,priority:1" json:"doctorId"`
	ScheduledAt        time.Time         `gorm:"not null;index:idx_appointments_doctor_slot,priority:2" json:"scheduledAt"`
	Purpose            string            `gorm:"size:255" json:"purpose"`
	Notes              string            `gorm:"type:text" json:"notes"`
	Prescription       string            `gorm:"type:text" json:"prescription"`
	Status             AppointmentStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	CancelledBy        Role              `gorm:"size:20" json:"cancelledBy,omitempty"`
	CancellationReason string            `gorm:"size:255" json:"cancellationReason,omitempty"`
	CompletedAt        *time.Time        `json:"completedAt,omitempty"`
}
