// Package report prints a month-bounded expense report for one client.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"dompet/models"
	"dompet/pkg/expense"
	"dompet/pkg/store"
)

// Report is the month summary plus, when asked, the matching rows.
type Report struct {
	Client  *models.Client
	Month   time.Time
	Summary *expense.Summary
	Rows    []models.Expense
}

// MonthRange returns [first of month, first of next month) for a YYYY-MM value.
func MonthRange(month string, loc *time.Location) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01", month, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0), nil
}

// Build loads the report for the active client named clientName.
func Build(ctx context.Context, st *store.Store, clientName, month string, loc *time.Location, list bool) (*Report, error) {
	if loc == nil {
		loc = time.UTC
	}
	client, err := st.Clients.FindActiveByName(ctx, clientName)
	if err != nil {
		return nil, fmt.Errorf("client %q: %w", clientName, err)
	}
	start, end, err := MonthRange(month, loc)
	if err != nil {
		return nil, err
	}
	last := end.Add(-time.Nanosecond)
	f := store.ExpenseFilter{ClientID: client.ID, From: &start, To: &last}

	sum, err := expense.New(st, loc, nil).Summarize(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	r := &Report{Client: client, Month: start, Summary: sum}
	if list && sum.Count > 0 {
		rows, _, err := st.Expenses.List(ctx, f, store.Page{Limit: int(sum.Count)})
		if err != nil {
			return nil, fmt.Errorf("fetch rows: %w", err)
		}
		r.Rows = rows
	}
	return r, nil
}

// Write renders r as plain text. Row lines are pipe separated.
func Write(w io.Writer, r *Report) {
	fmt.Fprintf(w, "Report for client=%s month=%s:\n", r.Client.Name, r.Month.Format("2006-01"))
	fmt.Fprintf(w, "  records=%d total_amount=%d\n", r.Summary.Count, r.Summary.Total)
	for _, c := range r.Summary.Breakdown {
		fmt.Fprintf(w, "  %-14s %12d (%d)\n", c.Category, c.Total, c.Count)
	}
	for _, e := range r.Rows {
		fmt.Fprintf(w, "%d|%d|%s|%d|%s|%s\n", e.ID, e.UserID, e.Category, e.Amount, e.Date.Format(time.RFC3339), e.Note)
	}
}
