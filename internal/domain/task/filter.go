package task

import (
	"errors"
	"sort"
	"time"
)

const dayLayout = "2006-01-02"

var ErrInvalidDateRange = errors.New("invalid date range")

// DateRange is a half-open interval [From, To) on EstimatedDate.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Filter is always scoped to one owner. Nil pointers mean "no constraint".
type Filter struct {
	OwnerID   int64
	Dates     *DateRange
	Completed *bool
	Scheduled *bool
}

// ListTasksQuery is the raw query string form of a Filter.
type ListTasksQuery struct {
	Date      string `form:"date" binding:"omitempty,datetime=2006-01-02"`
	From      string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To        string `form:"to" binding:"omitempty,datetime=2006-01-02"`
	Status    *bool  `form:"status"`
	Scheduled *bool  `form:"scheduled"`
}

// DayRange covers one UTC calendar day.
func DayRange(day string) (DateRange, error) {
	start, err := time.Parse(dayLayout, day)
	if err != nil {
		return DateRange{}, ErrInvalidDateRange
	}
	return DateRange{From: start, To: start.AddDate(0, 0, 1)}, nil
}

// BetweenDays covers from..to inclusive, either side may be empty.
func BetweenDays(from, to string) (DateRange, error) {
	r := DateRange{}

	if from != "" {
		start, err := time.Parse(dayLayout, from)
		if err != nil {
			return DateRange{}, ErrInvalidDateRange
		}
		r.From = start
	}

	if to != "" {
		end, err := time.Parse(dayLayout, to)
		if err != nil {
			return DateRange{}, ErrInvalidDateRange
		}
		r.To = end.AddDate(0, 0, 1)
	}

	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return DateRange{}, ErrInvalidDateRange
	}

	return r, nil
}

// ToFilter resolves the query for one owner. A single day and a from/to
// range are mutually exclusive.
func (q ListTasksQuery) ToFilter(ownerID int64) (Filter, error) {
	f := Filter{OwnerID: ownerID, Completed: q.Status, Scheduled: q.Scheduled}

	switch {
	case q.Date != "" && (q.From != "" || q.To != ""):
		return Filter{}, ErrInvalidDateRange
	case q.Date != "":
		r, err := DayRange(q.Date)
		if err != nil {
			return Filter{}, err
		}
		f.Dates = &r
	case q.From != "" || q.To != "":
		r, err := BetweenDays(q.From, q.To)
		if err != nil {
			return Filter{}, err
		}
		f.Dates = &r
	}

	return f, nil
}

// Matches reports whether t satisfies f. Stores without a query language use
// it directly; the Mongo store builds the equivalent document filter.
func (f Filter) Matches(t Task) bool {
	if t.OwnerID != f.OwnerID {
		return false
	}

	if f.Completed != nil && t.IsCompleted != *f.Completed {
		return false
	}

	if f.Scheduled != nil && (t.EstimatedDate != nil) != *f.Scheduled {
		return false
	}

	if f.Dates != nil {
		if t.EstimatedDate == nil {
			return false
		}
		d := *t.EstimatedDate
		if !f.Dates.From.IsZero() && d.Before(f.Dates.From) {
			return false
		}
		if !f.Dates.To.IsZero() && !d.Before(f.Dates.To) {
			return false
		}
	}

	return true
}

// SortForListing orders unscheduled tasks first, then by estimated date,
// creation time and id.
func SortForListing(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]

		switch {
		case a.EstimatedDate == nil && b.EstimatedDate != nil:
			return true
		case a.EstimatedDate != nil && b.EstimatedDate == nil:
			return false
		case a.EstimatedDate != nil && !a.EstimatedDate.Equal(*b.EstimatedDate):
			return a.EstimatedDate.Before(*b.EstimatedDate)
		}

		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
