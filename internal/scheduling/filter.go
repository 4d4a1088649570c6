package scheduling

import (
	"strconv"
	"strings"
	"time"

	"medibook-server/internal/models"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

const dateLayout = "2006-01-02"

// Caller is the verified identity of whoever invokes an operation.
type Caller struct {
	ID   string
	Role models.Role
}

// ListParams are the raw listing parameters as they arrive from a request.
type ListParams struct {
	Status string
	From   string
	To     string
	Page   string
	Limit  string
}

// ListQuery is a store-ready listing request.
type ListQuery struct {
	Filter Filter
	Sort   Sort
	Page   int
	Limit  int
}

// BuildListQuery scopes a listing to the caller and validates the optional
// status, date range and pagination parameters.
func BuildListQuery(caller Caller, params ListParams) (ListQuery, error) {
	q := ListQuery{
		Sort:  Sort{Field: SortScheduledAt},
		Page:  DefaultPage,
		Limit: DefaultLimit,
	}

	switch caller.Role {
	case models.RolePatient:
		q.Filter.PatientID = caller.ID
	case models.RoleDoctor:
		q.Filter.DoctorID = caller.ID
	case models.RoleAdmin:
	default:
		return ListQuery{}, forbidden("role not permitted to list appointments", Details{"role": caller.Role})
	}

	if s := strings.TrimSpace(params.Status); s != "" {
		status, ok := models.ParseStatus(s)
		if !ok {
			return ListQuery{}, validationError("invalid status", Details{
				"status":  s,
				"allowed": []models.AppointmentStatus{models.StatusPending, models.StatusConfirmed, models.StatusCancelled, models.StatusCompleted},
			})
		}
		q.Filter.Statuses = []models.AppointmentStatus{status}
	}

	if s := strings.TrimSpace(params.From); s != "" {
		from, _, err := parseBound(s)
		if err != nil {
			return ListQuery{}, validationError("invalid from date", Details{"from": s})
		}
		q.Filter.From = &from
	}

	if s := strings.TrimSpace(params.To); s != "" {
		to, dateOnly, err := parseBound(s)
		if err != nil {
			return ListQuery{}, validationError("invalid to date", Details{"to": s})
		}
		if dateOnly {
			next := to.AddDate(0, 0, 1)
			q.Filter.Before = &next
		} else {
			q.Filter.To = &to
		}
	}

	if q.Filter.From != nil {
		if (q.Filter.To != nil && q.Filter.From.After(*q.Filter.To)) ||
			(q.Filter.Before != nil && !q.Filter.From.Before(*q.Filter.Before)) {
			return ListQuery{}, validationError("from must not be after to", Details{"from": params.From, "to": params.To})
		}
	}

	if s := strings.TrimSpace(params.Page); s != "" {
		page, err := strconv.Atoi(s)
		if err != nil {
			return ListQuery{}, validationError("invalid page", Details{"page": s})
		}
		if page < 1 {
			page = 1
		}
		q.Page = page
	}

	if s := strings.TrimSpace(params.Limit); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			return ListQuery{}, validationError("invalid limit", Details{"limit": s})
		}
		q.Limit = clampLimit(limit)
	}

	return q, nil
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// parseBound accepts a bare date (start of that UTC day) or a full timestamp.
func parseBound(s string) (t time.Time, dateOnly bool, err error) {
	if d, err := time.ParseInLocation(dateLayout, s, time.UTC); err == nil {
		return d, true, nil
	}
	ts, err := parseInstant(s)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, false, nil
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseInstant parses a timestamp with a time of day. Layouts without an
// offset are read as UTC.
func parseInstant(s string) (time.Time, error) {
	var err error
	for _, layout := range instantLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}
