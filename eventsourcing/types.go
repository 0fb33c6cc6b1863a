package eventsourcing

import (
	"strings"
	"time"
)

// Symbol is an enum-like interned string. Two Symbols with equal underlying
// text are equal by Go's native string comparison, which satisfies the
// "interned" requirement without a separate intern table.
type Symbol string

// dateLayout is the strict DD-MM-YYYY layout required by §4.A.
const dateLayout = "02-01-2006"

// Date is a date-only value (no time-of-day component), serialized as
// "DD-MM-YYYY".
type Date struct {
	time.Time
}

// NewDate builds a Date from year/month/day components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses the strict DD-MM-YYYY layout; any other format fails.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Time.Format(dateLayout)
}

func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

// coerceDate implements §4.A: parse strict DD-MM-YYYY on strings; any other
// format fails. Blank is not a valid Date per spec (dates are not listed as
// blank-nilable beyond the generic nil-on-nil rule); nil input yields nil.
func coerceDate(v any) (*Date, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, ErrMalformedValue
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// coerceDateTime implements §4.A: parse strict ISO-8601; malformed fails.
func coerceDateTime(v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, ErrMalformedValue
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
