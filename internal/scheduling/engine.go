package scheduling

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medibook-server/internal/models"
)

const (
	DefaultPurpose            = "General consultation"
	DefaultCancellationReason = "No reason provided"

	// SlotGranularity is the precision slots are stored with.
	SlotGranularity = time.Minute
)

// Rules are the tunable booking windows.
type Rules struct {
	ConflictWindow      time.Duration
	PatientCancelNotice time.Duration
	DoctorCancelNotice  time.Duration
	StoreTimeout        time.Duration
}

// DefaultRules returns the canonical booking windows.
func DefaultRules() Rules {
	return Rules{
		ConflictWindow:      30 * time.Minute,
		PatientCancelNotice: 24 * time.Hour,
		DoctorCancelNotice:  time.Hour,
		StoreTimeout:        5 * time.Second,
	}
}

// Engine enforces booking validity, conflict freedom and the appointment
// state machine. It keeps no state between calls.
type Engine struct {
	Store     Store
	Users     UserFinder
	Publisher Publisher
	Recorder  Recorder
	Rules     Rules
	Logger    zerolog.Logger
	Now       func() time.Time
}

// NewEngine creates an Engine. Publisher and Recorder are optional and may be
// assigned afterwards.
func NewEngine(store Store, users UserFinder, rules Rules, logger zerolog.Logger) *Engine {
	return &Engine{
		Store:  store,
		Users:  users,
		Rules:  rules,
		Logger: logger.With().Str("component", "scheduling").Logger(),
		Now:    time.Now,
	}
}

// PartySummary is the directory data attached to an appointment view.
type PartySummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

// AppointmentView is an appointment enriched with its doctor and patient.
type AppointmentView struct {
	models.Appointment
	Doctor  *PartySummary `json:"doctor,omitempty"`
	Patient *PartySummary `json:"patient,omitempty"`
}

// BookRequest is a patient's booking request.
type BookRequest struct {
	DoctorID    string
	ScheduledAt string
	Purpose     string
}

// CancelRequest carries the optional cancellation reason.
type CancelRequest struct {
	Reason string
}

// CompleteRequest carries the optional clinical notes written on completion.
type CompleteRequest struct {
	Notes        string
	Prescription string
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.Rules.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.Rules.StoreTimeout)
}

// Book creates a pending appointment for the calling patient.
func (e *Engine) Book(ctx context.Context, caller Caller, req BookRequest) (*AppointmentView, error) {
	if caller.Role != models.RolePatient {
		return nil, forbidden("only patients can book appointments", Details{"role": caller.Role})
	}

	doctorID := strings.TrimSpace(req.DoctorID)
	if doctorID == "" {
		return nil, validationError("doctorId is required", nil)
	}
	if _, err := uuid.Parse(doctorID); err != nil {
		return nil, validationError("invalid doctor id format", Details{"doctorId": doctorID})
	}

	scheduledAt, err := ParseSlot(req.ScheduledAt)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if !scheduledAt.After(now) {
		return nil, validationError("appointment time must be in the future", Details{
			"scheduledAt": scheduledAt,
			"now":         now,
		})
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	doctor, err := e.lookupUser(ctx, doctorID, models.RoleDoctor, "doctor")
	if err != nil {
		return nil, err
	}
	patient, err := e.lookupUser(ctx, caller.ID, models.RolePatient, "patient")
	if err != nil {
		return nil, err
	}

	purpose := strings.TrimSpace(req.Purpose)
	if purpose == "" {
		purpose = DefaultPurpose
	}
	appt := &models.Appointment{
		PatientID:   patient.ID,
		DoctorID:    doctor.ID,
		ScheduledAt: scheduledAt,
		Purpose:     purpose,
		Notes:       "",
		Status:      models.StatusPending,
	}

	err = e.Store.WithDoctorLock(ctx, doctor.ID, func(tx Store) error {
		if err := e.checkConflict(ctx, tx, doctor.ID, scheduledAt, ""); err != nil {
			return err
		}
		return tx.Create(ctx, appt)
	})
	if err != nil {
		return nil, e.storeFailure("book appointment", err)
	}

	e.Logger.Info().
		Str("appointment_id", appt.ID).
		Str("doctor_id", appt.DoctorID).
		Str("patient_id", appt.PatientID).
		Time("scheduled_at", appt.ScheduledAt).
		Msg("appointment booked")
	e.publish(ctx, EventBooked, appt)

	return &AppointmentView{
		Appointment: *appt,
		Doctor:      summarize(doctor),
		Patient:     summarize(patient),
	}, nil
}

// Accept confirms a pending appointment on behalf of its doctor.
func (e *Engine) Accept(ctx context.Context, caller Caller, id string) (*models.Appointment, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	appt, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAssignedDoctor(caller, appt) {
		return nil, forbidden("only the assigned doctor can accept this appointment", Details{"appointmentId": appt.ID})
	}
	if appt.Status != models.StatusPending {
		return nil, invalidState("only pending appointments can be accepted", stateDetails(appt))
	}
	now := e.now()
	if !appt.ScheduledAt.After(now) {
		return nil, invalidState("cannot accept a past appointment", Details{
			"appointmentId": appt.ID,
			"scheduledAt":   appt.ScheduledAt,
			"now":           now,
		})
	}

	var updated *models.Appointment
	err = e.Store.WithDoctorLock(ctx, appt.DoctorID, func(tx Store) error {
		if err := e.checkConflict(ctx, tx, appt.DoctorID, appt.ScheduledAt, appt.ID); err != nil {
			return err
		}
		res, err := tx.ConditionalUpdate(ctx, appt.ID, models.StatusPending, Patch{Status: models.StatusConfirmed})
		if err != nil {
			return err
		}
		if res == nil {
			return e.guardFailed(ctx, tx, appt.ID, "only pending appointments can be accepted")
		}
		updated = res
		return nil
	})
	if err != nil {
		return nil, e.storeFailure("accept appointment", err)
	}

	e.logTransition(updated, models.StatusPending)
	e.publish(ctx, EventAccepted, updated)
	return updated, nil
}

// Cancel cancels an active appointment on behalf of its patient or doctor.
func (e *Engine) Cancel(ctx context.Context, caller Caller, id string, req CancelRequest) (*models.Appointment, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	appt, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var notice time.Duration
	switch {
	case isAssignedPatient(caller, appt):
		notice = e.Rules.PatientCancelNotice
	case isAssignedDoctor(caller, appt):
		notice = e.Rules.DoctorCancelNotice
	default:
		return nil, forbidden("only the assigned patient or doctor can cancel this appointment", Details{"appointmentId": appt.ID})
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = DefaultCancellationReason
	}

	// A concurrent accept may move pending to confirmed between the read and
	// the guarded write; that case is re-evaluated once against fresh state.
	for attempt := 0; attempt < 2; attempt++ {
		if appt.Status.IsTerminal() {
			return nil, invalidState("appointment can no longer be cancelled", stateDetails(appt))
		}

		remaining := appt.ScheduledAt.Sub(e.now())
		if remaining < notice {
			return nil, forbidden("cancellation window has passed", Details{
				"appointmentId":  appt.ID,
				"role":           caller.Role,
				"hoursRemaining": roundHours(remaining),
				"requiredHours":  notice.Hours(),
			})
		}

		prior := appt.Status
		updated, err := e.Store.ConditionalUpdate(ctx, appt.ID, prior, Patch{
			Status:             models.StatusCancelled,
			CancelledBy:        caller.Role,
			CancellationReason: reason,
		})
		if err != nil {
			return nil, e.storeFailure("cancel appointment", err)
		}
		if updated != nil {
			e.logTransition(updated, prior)
			e.publish(ctx, EventCancelled, updated)
			return updated, nil
		}

		if appt, err = e.load(ctx, id); err != nil {
			return nil, err
		}
	}
	return nil, invalidState("appointment changed concurrently", stateDetails(appt))
}

// Complete marks a confirmed, already started appointment as completed.
func (e *Engine) Complete(ctx context.Context, caller Caller, id string, req CompleteRequest) (*models.Appointment, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	appt, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAssignedDoctor(caller, appt) {
		return nil, forbidden("only the assigned doctor can complete this appointment", Details{"appointmentId": appt.ID})
	}
	if appt.Status != models.StatusConfirmed {
		return nil, invalidState("only confirmed appointments can be completed", stateDetails(appt))
	}
	now := e.now()
	if appt.ScheduledAt.After(now) {
		return nil, invalidState("cannot complete a future appointment", Details{
			"appointmentId": appt.ID,
			"currentStatus": appt.Status,
			"scheduledAt":   appt.ScheduledAt,
			"now":           now,
		})
	}

	patch := Patch{Status: models.StatusCompleted, CompletedAt: &now}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		patch.Notes = &notes
	}
	if rx := strings.TrimSpace(req.Prescription); rx != "" {
		patch.Prescription = &rx
	}

	updated, err := e.Store.ConditionalUpdate(ctx, appt.ID, models.StatusConfirmed, patch)
	if err != nil {
		return nil, e.storeFailure("complete appointment", err)
	}
	if updated == nil {
		return nil, e.guardFailed(ctx, e.Store, appt.ID, "only confirmed appointments can be completed")
	}

	e.logTransition(updated, models.StatusConfirmed)
	e.publish(ctx, EventCompleted, updated)
	e.record(ctx, updated)
	return updated, nil
}

// Get returns one appointment to its patient, its doctor or an admin.
func (e *Engine) Get(ctx context.Context, caller Caller, id string) (*AppointmentView, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	appt, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Role != models.RoleAdmin && !isAssignedPatient(caller, appt) && !isAssignedDoctor(caller, appt) {
		return nil, forbidden("you are not authorized to view this appointment", Details{"appointmentId": appt.ID})
	}

	view := &AppointmentView{Appointment: *appt}
	if doctor, err := e.Users.FindUser(ctx, appt.DoctorID); err == nil {
		view.Doctor = summarize(doctor)
	}
	if patient, err := e.Users.FindUser(ctx, appt.PatientID); err == nil {
		view.Patient = summarize(patient)
	}
	return view, nil
}

// List returns the caller's appointments, one page at a time.
func (e *Engine) List(ctx context.Context, caller Caller, params ListParams) (*Page, error) {
	q, err := BuildListQuery(caller, params)
	if err != nil {
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	page, err := e.Store.PaginatedFind(ctx, q.Filter, q.Sort, q.Page, q.Limit)
	if err != nil {
		return nil, e.storeFailure("list appointments", err)
	}
	return page, nil
}

// ParseSlot parses a requested slot time. A time of day is mandatory; the
// result is in UTC, truncated to SlotGranularity.
func ParseSlot(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, validationError("scheduledAt is required", nil)
	}
	if _, err := time.Parse(dateLayout, s); err == nil {
		return time.Time{}, validationError("scheduledAt must include a time of day", Details{"scheduledAt": s})
	}
	t, err := parseInstant(s)
	if err != nil {
		return time.Time{}, validationError("invalid scheduledAt", Details{"scheduledAt": s})
	}
	return t.Truncate(SlotGranularity), nil
}

func (e *Engine) checkConflict(ctx context.Context, tx Store, doctorID string, at time.Time, excludeID string) error {
	from := at.Add(-e.Rules.ConflictWindow)
	to := at.Add(e.Rules.ConflictWindow)
	existing, err := tx.FindOne(ctx, Filter{
		DoctorID:  doctorID,
		Statuses:  models.ActiveStatuses,
		ExcludeID: excludeID,
		From:      &from,
		To:        &to,
	})
	if err != nil {
		return err
	}
	if existing != nil {
		return conflict("doctor already has an appointment near this time", Details{
			"conflictingAppointmentId": existing.ID,
			"conflictingScheduledAt":   existing.ScheduledAt,
			"conflictingPatientId":     existing.PatientID,
			"conflictingStatus":        existing.Status,
			"windowMinutes":            e.Rules.ConflictWindow.Minutes(),
		})
	}
	return nil
}

func (e *Engine) load(ctx context.Context, id string) (*models.Appointment, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return nil, validationError("invalid appointment id format", Details{"appointmentId": id})
	}
	appt, err := e.Store.FindByID(ctx, id)
	if err != nil {
		return nil, e.storeFailure("load appointment", err)
	}
	if appt == nil {
		return nil, notFound("appointment not found", Details{"appointmentId": id})
	}
	return appt, nil
}

func (e *Engine) lookupUser(ctx context.Context, id string, role models.Role, label string) (*models.User, error) {
	user, err := e.Users.FindUser(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, notFound(label+" not found", Details{label + "Id": id})
		}
		return nil, e.storeFailure("look up "+label, err)
	}
	if user.Role != role {
		return nil, notFound(label+" not found or user is not a "+label, Details{label + "Id": id, "role": user.Role})
	}
	return user, nil
}

// guardFailed explains a failed compare-and-swap using the row's current state.
func (e *Engine) guardFailed(ctx context.Context, s Store, id, msg string) error {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return notFound("appointment not found", Details{"appointmentId": id})
	}
	return invalidState(msg, stateDetails(current))
}

func (e *Engine) storeFailure(op string, err error) error {
	wrapped := unavailable(op, err)
	if IsKind(wrapped, KindUnavailable) {
		e.Logger.Error().Err(err).Str("op", op).Msg("store failure")
	}
	return wrapped
}

func (e *Engine) logTransition(appt *models.Appointment, from models.AppointmentStatus) {
	e.Logger.Info().
		Str("appointment_id", appt.ID).
		Str("doctor_id", appt.DoctorID).
		Str("patient_id", appt.PatientID).
		Str("from", string(from)).
		Str("to", string(appt.Status)).
		Msg("appointment transition")
}

func (e *Engine) publish(ctx context.Context, typ EventType, appt *models.Appointment) {
	if e.Publisher == nil {
		return
	}
	ev := Event{
		Type:          typ,
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		Status:        appt.Status,
		ScheduledAt:   appt.ScheduledAt,
		OccurredAt:    e.now(),
	}
	if err := e.Publisher.Publish(ctx, ev); err != nil {
		e.Logger.Warn().Err(err).Str("appointment_id", appt.ID).Str("event", string(typ)).Msg("publish event failed")
	}
}

func (e *Engine) record(ctx context.Context, appt *models.Appointment) {
	if e.Recorder == nil || (appt.Notes == "" && appt.Prescription == "") {
		return
	}
	if err := e.Recorder.RecordVisit(ctx, appt); err != nil {
		e.Logger.Warn().Err(err).Str("appointment_id", appt.ID).Msg("record visit failed")
	}
}

func isAssignedDoctor(caller Caller, appt *models.Appointment) bool {
	return caller.Role == models.RoleDoctor && caller.ID == appt.DoctorID
}

func isAssignedPatient(caller Caller, appt *models.Appointment) bool {
	return caller.Role == models.RolePatient && caller.ID == appt.PatientID
}

func stateDetails(appt *models.Appointment) Details {
	return Details{
		"appointmentId": appt.ID,
		"currentStatus": appt.Status,
	}
}

func summarize(u *models.User) *PartySummary {
	if u == nil {
		return nil
	}
	s := &PartySummary{ID: u.ID, Name: u.FullName(), Email: u.Email, Phone: u.PhoneNumber}
	if u.Role == models.RoleDoctor {
		s.Specialization = u.Specialization
	}
	return s
}

func roundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}
