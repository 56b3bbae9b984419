package expense

import (
	"math"
	"strconv"
	"strings"
	"time"

	"dompet/models"
	"dompet/pkg/apperr"
	"dompet/pkg/store"
	"dompet/pkg/validate"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Query is the request-level filter of list and summary calls. Values are
// raw strings so bad input is reported per field.
type Query struct {
	Period    string `form:"period"`
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
	Category  string `form:"category"`
	Page      string `form:"page"`
	Limit     string `form:"limit"`
}

// Period names accepted by BuildFilter. Any other non-empty value opens the
// window to the Unix epoch.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

// PeriodWindow returns the [from, to] window of a named period ending at now.
func PeriodWindow(period string, now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	y, m, d := local.Date()
	switch period {
	case PeriodDay:
		return time.Date(y, m, d, 0, 0, 0, 0, loc), now
	case PeriodWeek:
		return now.Add(-7 * 24 * time.Hour), now
	case PeriodMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), now
	case PeriodYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc), now
	}
	return time.Unix(0, 0).UTC(), now
}

// ParseDate accepts RFC 3339 or a bare YYYY-MM-DD, the latter as UTC midnight.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// BuildFilter turns q into a storage filter scoped to clientID.
func BuildFilter(clientID uint, q Query, now time.Time, loc *time.Location) (store.ExpenseFilter, error) {
	ve := &apperr.ValidationError{}
	f := buildFilter(ve, clientID, q, now, loc)
	return f, ve.Err()
}

func buildFilter(ve *apperr.ValidationError, clientID uint, q Query, now time.Time, loc *time.Location) store.ExpenseFilter {
	f := store.ExpenseFilter{ClientID: clientID}

	if c := strings.ToLower(strings.TrimSpace(q.Category)); c != "" {
		if cat := models.Category(c); cat.Valid() {
			f.Category = cat
		} else {
			ve.Add("category", "must be one of %s", validate.CategoryList())
		}
	}

	if p := strings.ToLower(strings.TrimSpace(q.Period)); p != "" {
		from, to := PeriodWindow(p, now, loc)
		f.From, f.To = &from, &to
		return f
	}
	if q.StartDate != "" {
		if t, ok := ParseDate(q.StartDate); ok {
			f.From = &t
		} else {
			ve.Add("startDate", "must be an RFC 3339 timestamp or YYYY-MM-DD")
		}
	}
	if q.EndDate != "" {
		if t, ok := ParseDate(q.EndDate); ok {
			f.To = &t
		} else {
			ve.Add("endDate", "must be an RFC 3339 timestamp or YYYY-MM-DD")
		}
	}
	return f
}

// Paging returns the 1-based page and the page size of q.
func Paging(q Query) (page, limit int, err error) {
	ve := &apperr.ValidationError{}
	page, limit = paging(ve, q)
	return page, limit, ve.Err()
}

func paging(ve *apperr.ValidationError, q Query) (int, int) {
	page, limit := 1, DefaultLimit
	if q.Page != "" {
		n, err := strconv.Atoi(strings.TrimSpace(q.Page))
		if err != nil || n < 1 {
			ve.Add("page", "must be a whole number of at least 1")
		} else {
			page = n
		}
	}
	if q.Limit != "" {
		n, err := strconv.Atoi(strings.TrimSpace(q.Limit))
		if err != nil || n < 1 || n > MaxLimit {
			ve.Add("limit", "must be a whole number between 1 and %d", MaxLimit)
		} else {
			limit = n
		}
	}
	// the row offset (page-1)*limit must fit in an int
	if page-1 > math.MaxInt/limit {
		ve.Add("page", "is too large")
		page = 1
	}
	return page, limit
}

// TotalPages is ceil(total/limit).
func TotalPages(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
