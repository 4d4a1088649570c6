// Package schedulingtest provides in-memory collaborators for exercising the
// scheduling engine without a database.
package schedulingtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"medibook-server/internal/models"
	"medibook-server/internal/scheduling"
)

// MemStore is a goroutine safe in-memory scheduling.Store.
type MemStore struct {
	mu      sync.Mutex
	appts   map[string]*models.Appointment
	doctors map[string]*sync.Mutex

	// Err, when set, is returned by every call.
	Err error
	// Now stamps CreatedAt/UpdatedAt; defaults to time.Now.
	Now func() time.Time
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		appts:   make(map[string]*models.Appointment),
		doctors: make(map[string]*sync.Mutex),
	}
}

func (s *MemStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Put stores a copy of appt as-is, assigning an id when missing.
func (s *MemStore) Put(appt models.Appointment) *models.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	s.appts[appt.ID] = &appt
	cp := appt
	return &cp
}

// Len returns the number of stored appointments.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appts)
}

func (s *MemStore) Create(_ context.Context, appt *models.Appointment) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	if _, exists := s.appts[appt.ID]; exists {
		return fmt.Errorf("duplicate id %s", appt.ID)
	}
	appt.CreatedAt = s.now()
	appt.UpdatedAt = appt.CreatedAt
	cp := *appt
	s.appts[appt.ID] = &cp
	return nil
}

func (s *MemStore) FindByID(_ context.Context, id string) (*models.Appointment, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *MemStore) FindOne(_ context.Context, filter scheduling.Filter) (*models.Appointment, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := s.match(filter)
	if len(matches) == 0 {
		return nil, nil
	}
	cp := matches[0]
	return &cp, nil
}

func (s *MemStore) ConditionalUpdate(_ context.Context, id string, expected models.AppointmentStatus, patch scheduling.Patch) (*models.Appointment, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok || a.Status != expected {
		return nil, nil
	}
	if patch.Status != "" {
		a.Status = patch.Status
	}
	if patch.CancelledBy != "" {
		a.CancelledBy = patch.CancelledBy
	}
	if patch.CancellationReason != "" {
		a.CancellationReason = patch.CancellationReason
	}
	if patch.CompletedAt != nil {
		t := *patch.CompletedAt
		a.CompletedAt = &t
	}
	if patch.Notes != nil {
		a.Notes = *patch.Notes
	}
	if patch.Prescription != nil {
		a.Prescription = *patch.Prescription
	}
	a.UpdatedAt = s.now()
	cp := *a
	return &cp, nil
}

func (s *MemStore) PaginatedFind(_ context.Context, filter scheduling.Filter, order scheduling.Sort, page, limit int) (*scheduling.Page, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.match(filter)
	sort.SliceStable(items, func(i, j int) bool {
		var less bool
		if order.Field == scheduling.SortCreatedAt {
			less = items[i].CreatedAt.Before(items[j].CreatedAt)
		} else {
			less = items[i].ScheduledAt.Before(items[j].ScheduledAt)
		}
		if order.Desc {
			return !less
		}
		return less
	})

	total := len(items)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return &scheduling.Page{
		Items: append([]models.Appointment{}, items[start:end]...),
		Total: int64(total),
		Pages: pages,
		Page:  page,
		Limit: limit,
	}, nil
}

func (s *MemStore) WithDoctorLock(ctx context.Context, doctorID string, fn func(tx scheduling.Store) error) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	lock, ok := s.doctors[doctorID]
	if !ok {
		lock = &sync.Mutex{}
		s.doctors[doctorID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(s)
}

// match must be called with s.mu held.
func (s *MemStore) match(f scheduling.Filter) []models.Appointment {
	var out []models.Appointment
	for _, a := range s.appts {
		if f.PatientID != "" && a.PatientID != f.PatientID {
			continue
		}
		if f.DoctorID != "" && a.DoctorID != f.DoctorID {
			continue
		}
		if f.ExcludeID != "" && a.ID == f.ExcludeID {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, a.Status) {
			continue
		}
		if f.From != nil && a.ScheduledAt.Before(*f.From) {
			continue
		}
		if f.To != nil && a.ScheduledAt.After(*f.To) {
			continue
		}
		if f.Before != nil && !a.ScheduledAt.Before(*f.Before) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func hasStatus(list []models.AppointmentStatus, s models.AppointmentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// MemUsers is an in-memory scheduling.UserFinder.
type MemUsers struct {
	mu    sync.RWMutex
	users map[string]models.User

	// Err, when set, is returned by every lookup.
	Err error
}

// NewMemUsers returns an empty directory.
func NewMemUsers() *MemUsers {
	return &MemUsers{users: make(map[string]models.User)}
}

// Add registers a user with a fresh id and returns it.
func (u *MemUsers) Add(role models.Role, first, last string) models.User {
	user := models.User{
		FirstName: first,
		LastName:  last,
		Email:     fmt.Sprintf("%s.%s@example.com", first, last),
		Role:      role,
	}
	user.ID = uuid.New().String()
	if role == models.RoleDoctor {
		user.Specialization = "General Practice"
		user.PhoneNumber = "+1-555-0100"
	}
	u.mu.Lock()
	u.users[user.ID] = user
	u.mu.Unlock()
	return user
}

func (u *MemUsers) FindUser(_ context.Context, id string) (*models.User, error) {
	if u.Err != nil {
		return nil, u.Err
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return &user, nil
}

// Publisher records every published event.
type Publisher struct {
	mu     sync.Mutex
	Events []scheduling.Event
	Err    error
}

func (p *Publisher) Publish(_ context.Context, ev scheduling.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, ev)
	return p.Err
}

// Types returns the published event types in order.
func (p *Publisher) Types() []scheduling.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]scheduling.EventType, len(p.Events))
	for i, ev := range p.Events {
		out[i] = ev.Type
	}
	return out
}

// Recorder records every visit passed to it.
type Recorder struct {
	mu     sync.Mutex
	Visits []models.Appointment
}

func (r *Recorder) RecordVisit(_ context.Context, appt *models.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Visits = append(r.Visits, *appt)
	return nil
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}
