package scheduling

import (
	"context"
	"time"

	"medibook-server/internal/models"
)

// Filter selects appointments. Zero-valued fields do not constrain the query.
type Filter struct {
	PatientID string
	DoctorID  string
	Statuses  []models.AppointmentStatus
	ExcludeID string

	// From and To bound scheduledAt inclusively, Before exclusively.
	From   *time.Time
	To     *time.Time
	Before *time.Time
}

// SortField names the columns a listing may be ordered by.
type SortField string

const (
	SortScheduledAt SortField = "scheduled_at"
	SortCreatedAt   SortField = "created_at"
)

// Sort orders a paginated listing.
type Sort struct {
	Field SortField
	Desc  bool
}

// Patch lists the columns a transition writes. Nil pointers leave the column untouched.
type Patch struct {
	Status             models.AppointmentStatus
	CancelledBy        models.Role
	CancellationReason string
	CompletedAt        *time.Time
	Notes              *string
	Prescription       *string
}

// Page is one slice of a listing.
type Page struct {
	Items []models.Appointment `json:"items"`
	Total int64                `json:"total"`
	Pages int                  `json:"pages"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// Store persists appointments. Lookups return (nil, nil) when nothing matches.
type Store interface {
	Create(ctx context.Context, appt *models.Appointment) error
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	FindOne(ctx context.Context, filter Filter) (*models.Appointment, error)
	// ConditionalUpdate applies patch only while the row still has the expected
	// status. It returns (nil, nil) when the guard fails.
	ConditionalUpdate(ctx context.Context, id string, expected models.AppointmentStatus, patch Patch) (*models.Appointment, error)
	PaginatedFind(ctx context.Context, filter Filter, sort Sort, page, limit int) (*Page, error)
	// WithDoctorLock runs fn in a transaction that holds an exclusive lock on
	// the doctor, serialising every slot-claiming write for that doctor.
	WithDoctorLock(ctx context.Context, doctorID string, fn func(tx Store) error) error
}

// UserFinder resolves directory records. Missing users yield an error
// wrapping models.ErrNotFound.
type UserFinder interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
}

// Publisher receives lifecycle events after a transition has been stored.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Recorder files clinical notes of completed appointments.
type Recorder interface {
	RecordVisit(ctx context.Context, appt *models.Appointment) error
}

// EventType names a lifecycle transition.
type EventType string

const (
	EventBooked    EventType = "booked"
	EventAccepted  EventType = "accepted"
	EventCancelled EventType = "cancelled"
	EventCompleted EventType = "completed"
)

// Event describes a stored transition.
type Event struct {
	Type          EventType                `json:"type"`
	AppointmentID string                   `json:"appointmentId"`
	DoctorID      string                   `json:"doctorId"`
	PatientID     string                   `json:"patientId"`
	Status        models.AppointmentStatus `json:"status"`
	ScheduledAt   time.Time                `json:"scheduledAt"`
	OccurredAt    time.Time                `json:"occurredAt"`
}
