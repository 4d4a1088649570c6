package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medibook-server/internal/models"
	"medibook-server/internal/scheduling"
)

// lockAttempts bounds how often a doctor-locked transaction is replayed after
// the database aborted it for contention.
const lockAttempts = 3

// AppointmentStore is the gorm implementation of scheduling.Store.
type AppointmentStore struct {
	db *gorm.DB
}

// NewAppointmentStore creates a new AppointmentStore.
func NewAppointmentStore(db *gorm.DB) *AppointmentStore {
	return &AppointmentStore{db: db}
}

func (s *AppointmentStore) Create(ctx context.Context, appt *models.Appointment) error {
	if err := s.db.WithContext(ctx).Create(appt).Error; err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

func (s *AppointmentStore) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	var appt models.Appointment
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&appt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find appointment %s: %w", id, err)
	}
	return &appt, nil
}

func (s *AppointmentStore) FindOne(ctx context.Context, filter scheduling.Filter) (*models.Appointment, error) {
	var appt models.Appointment
	err := applyFilter(s.db.WithContext(ctx), filter).
		Order("scheduled_at asc").
		Take(&appt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find appointment: %w", err)
	}
	return &appt, nil
}

func (s *AppointmentStore) ConditionalUpdate(ctx context.Context, id string, expected models.AppointmentStatus, patch scheduling.Patch) (*models.Appointment, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(patchColumns(patch))
	if res.Error != nil {
		return nil, fmt.Errorf("update appointment %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.FindByID(ctx, id)
}

func (s *AppointmentStore) PaginatedFind(ctx context.Context, filter scheduling.Filter, sort scheduling.Sort, page, limit int) (*scheduling.Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = scheduling.DefaultLimit
	}

	var total int64
	if err := applyFilter(s.db.WithContext(ctx).Model(&models.Appointment{}), filter).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}

	items := []models.Appointment{}
	err := applyFilter(s.db.WithContext(ctx), filter).
		Order(orderClause(sort)).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	return &scheduling.Page{
		Items: items,
		Total: total,
		Pages: int((total + int64(limit) - 1) / int64(limit)),
		Page:  page,
		Limit: limit,
	}, nil
}

// WithDoctorLock locks the doctor's user row for the duration of fn. SQLite
// has no row locks; its single writer already serialises the transaction.
func (s *AppointmentStore) WithDoctorLock(ctx context.Context, doctorID string, fn func(tx scheduling.Store) error) error {
	var err error
	for attempt := 1; attempt <= lockAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			q := tx.Model(&models.User{}).Select("id").Where("id = ?", doctorID)
			if supportsRowLocks(tx) {
				q = q.Clauses(clause.Locking{Strength: "UPDATE"})
			}
			var doctor models.User
			if err := q.Take(&doctor).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("lock doctor %s: %w", doctorID, models.ErrNotFound)
				}
				return fmt.Errorf("lock doctor %s: %w", doctorID, err)
			}
			return fn(&AppointmentStore{db: tx})
		})
		if err == nil || !IsContention(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func supportsRowLocks(db *gorm.DB) bool {
	switch db.Dialector.Name() {
	case "mysql", "postgres":
		return true
	}
	return false
}

func applyFilter(q *gorm.DB, f scheduling.Filter) *gorm.DB {
	if f.PatientID != "" {
		q = q.Where("patient_id = ?", f.PatientID)
	}
	if f.DoctorID != "" {
		q = q.Where("doctor_id = ?", f.DoctorID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.ExcludeID != "" {
		q = q.Where("id <> ?", f.ExcludeID)
	}
	if f.From != nil {
		q = q.Where("scheduled_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("scheduled_at <= ?", f.To.UTC())
	}
	if f.Before != nil {
		q = q.Where("scheduled_at < ?", f.Before.UTC())
	}
	return q
}

func orderClause(s scheduling.Sort) clause.OrderByColumn {
	column := string(scheduling.SortScheduledAt)
	if s.Field == scheduling.SortCreatedAt {
		column = string(scheduling.SortCreatedAt)
	}
	return clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: s.Desc}
}

func patchColumns(p scheduling.Patch) map[string]interface{} {
	cols := map[string]interface{}{}
	if p.Status != "" {
		cols["status"] = p.Status
	}
	if p.CancelledBy != "" {
		cols["cancelled_by"] = p.CancelledBy
	}
	if p.CancellationReason != "" {
		cols["cancellation_reason"] = p.CancellationReason
	}
	if p.CompletedAt != nil {
		cols["completed_at"] = p.CompletedAt.UTC()
	}
	if p.Notes != nil {
		cols["notes"] = *p.Notes
	}
	if p.Prescription != nil {
		cols["prescription"] = *p.Prescription
	}
	return cols
}
