package cashflow

import (
	"regexp"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
)

// Text shaped like a day or a month is never searched for.
var dateShape = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}|\d{2}/\d{2}/\d{4}|\d{4}-\d{2})$`)

// ParseQuery interprets a report query string.
// Recognized forms are a day (2006-01-02 or 02/01/2006), a month (2006-01)
// and a year (2006); anything else is a free-text search.
// An empty string means today. A date-shaped string naming no real day or
// month is a validation error.
func ParseQuery(text string, now time.Time) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		d := truncateDay(now)
		return Query{From: &d, To: &d}, nil
	}

	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if t, err := time.Parse(layout, text); err == nil {
			return Query{From: &t, To: &t}, nil
		}
	}
	if t, err := time.Parse("2006-01", text); err == nil {
		to := t.AddDate(0, 1, -1)
		return Query{From: &t, To: &to}, nil
	}
	if dateShape.MatchString(text) {
		return Query{}, apperror.NewInvalidField("q", "not a valid date: "+text)
	}
	if len(text) == 4 {
		if t, err := time.Parse("2006", text); err == nil {
			to := t.AddDate(1, 0, -1)
			return Query{From: &t, To: &to}, nil
		}
	}
	return Query{Search: text}, nil
}

// RangeQuery builds a date-range query, validating its bounds.
func RangeQuery(from, to string) (Query, error) {
	f, err := time.Parse("2006-01-02", strings.TrimSpace(from))
	if err != nil {
		return Query{}, apperror.NewInvalidField("from", "from must be a date (YYYY-MM-DD)")
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(to))
	if err != nil {
		return Query{}, apperror.NewInvalidField("to", "to must be a date (YYYY-MM-DD)")
	}
	q := Query{From: &f, To: &t}
	return q, q.validate()
}

func (q Query) validate() error {
	if q.IsSearch() {
		return nil
	}
	if q.From == nil || q.To == nil {
		return apperror.NewValidation("from and to are required")
	}
	if q.From.After(*q.To) {
		return apperror.NewValidation("from must not be after to").
			WithDetail("from", q.From.Format("2006-01-02")).
			WithDetail("to", q.To.Format("2006-01-02"))
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
