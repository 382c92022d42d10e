// Package period models planning periods and derives their launch windows.
package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/metas/internal/platform/errors"
	"github.com/louisbranch/metas/internal/platform/i18n/catalog"
	"github.com/louisbranch/metas/internal/platform/id"
)

const (
	// DateLayout is the wire format for period and window dates.
	DateLayout = "2006-01-02"
	// KeyLayout formats a window key from its start date.
	KeyLayout = "2006-01"
	// MaxWindows bounds how many windows one period may produce.
	MaxWindows = 240
)

var (
	// ErrNameEmpty indicates a missing period name.
	ErrNameEmpty = apperrors.New(apperrors.CodePeriodNameEmpty, "period name is required")
	// ErrRangeInvalid indicates a start date that is not before the end date.
	ErrRangeInvalid = apperrors.New(apperrors.CodePeriodRangeInvalid, "period start must be before end")
	// ErrTooLong indicates a range that yields more than MaxWindows windows.
	ErrTooLong = apperrors.New(apperrors.CodePeriodTooLong, "period produces too many windows")
)

// Period is a named date range with a reporting cadence. Start and End are
// calendar days (UTC midnight) and both are inclusive.
type Period struct {
	ID        string
	Name      string
	Start     time.Time
	End       time.Time
	Cadence   Cadence
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Window is one reporting slot of a period.
type Window struct {
	ID       string
	PeriodID string
	// Key is the slot's starting year-month, unique within the period.
	Key     string
	Label   string
	Ordinal int
	Start   time.Time
	End     time.Time
}

// Contains reports whether day falls inside the window.
func (w Window) Contains(day time.Time) bool {
	day = Day(day)
	return !day.Before(w.Start) && !day.After(w.End)
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(raw string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperrors.WithMetadata(apperrors.CodeValidationFailed, fmt.Sprintf("invalid date %q", raw), map[string]string{
			"Reason": "dates use the YYYY-MM-DD format",
		})
	}
	return parsed, nil
}

// Day truncates t to its calendar day at UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GenerateWindows splits the inclusive range [start, end] into consecutive
// slots of the cadence's length in calendar months. Slots are anchored on the
// start day (clamped to short months) and the last slot is truncated at end
// when the range does not divide evenly. Labels use the base locale.
func GenerateWindows(start, end time.Time, cadence Cadence) ([]Window, error) {
	if !cadence.Valid() {
		return nil, ErrCadenceInvalid
	}
	start, end = Day(start), Day(end)
	if !start.Before(end) {
		return nil, ErrRangeInvalid
	}

	step := cadence.Months()
	var windows []Window
	for slot := 0; ; slot++ {
		slotStart := addMonths(start, slot*step)
		if slotStart.After(end) {
			break
		}
		if len(windows) == MaxWindows {
			return nil, ErrTooLong
		}
		slotEnd := addMonths(start, (slot+1)*step).AddDate(0, 0, -1)
		if slotEnd.After(end) {
			slotEnd = end
		}
		windows = append(windows, Window{
			Key:     slotStart.Format(KeyLayout),
			Label:   Label(slotStart, slotEnd, catalog.BaseLocale),
			Ordinal: slot + 1,
			Start:   slotStart,
			End:     slotEnd,
		})
	}
	return windows, nil
}

// addMonths moves anchor forward by months, keeping its day of month when the
// target month is long enough and clamping to the month's last day otherwise.
func addMonths(anchor time.Time, months int) time.Time {
	y, m, d := anchor.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// Label renders a window label such as "Jan 2025", "Jan–Mar 2025" or
// "Nov 2025–Jan 2026" in locale.
func Label(start, end time.Time, locale string) string {
	printer := catalog.Default().Printer(locale)
	month := func(t time.Time) string {
		return printer.Sprintf("month.short." + strconv.Itoa(int(t.Month())))
	}
	year := func(t time.Time) string {
		return strconv.Itoa(t.Year())
	}

	switch {
	case start.Year() == end.Year() && start.Month() == end.Month():
		return printer.Sprintf("window.label.single", month(start), year(start))
	case start.Year() == end.Year():
		return printer.Sprintf("window.label.range", month(start), month(end), year(start))
	default:
		return printer.Sprintf("window.label.range_years", month(start), year(start), month(end), year(end))
	}
}

// Relabel returns a copy of windows labeled in locale.
func Relabel(windows []Window, locale string) []Window {
	out := make([]Window, len(windows))
	for i, window := range windows {
		window.Label = Label(window.Start, window.End, locale)
		out[i] = window
	}
	return out
}

// CreatePeriodInput describes a new period.
type CreatePeriodInput struct {
	Name    string
	Start   time.Time
	End     time.Time
	Cadence Cadence
	// Locale selects the language of the stored window labels.
	Locale string
}

// CreatePeriod builds an active period and its windows. Windows are derived
// once here and never regenerated.
func CreatePeriod(input CreatePeriodInput, now func() time.Time, idGenerator func() (string, error)) (Period, []Window, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Period{}, nil, ErrNameEmpty
	}
	windows, err := GenerateWindows(input.Start, input.End, input.Cadence)
	if err != nil {
		return Period{}, nil, err
	}

	periodID, err := idGenerator()
	if err != nil {
		return Period{}, nil, fmt.Errorf("generate period id: %w", err)
	}
	locale := strings.TrimSpace(input.Locale)
	if locale == "" {
		locale = catalog.BaseLocale
	}
	for i := range windows {
		windowID, err := idGenerator()
		if err != nil {
			return Period{}, nil, fmt.Errorf("generate window id: %w", err)
		}
		windows[i].ID = windowID
		windows[i].PeriodID = periodID
		windows[i].Label = Label(windows[i].Start, windows[i].End, locale)
	}

	createdAt := now().UTC()
	return Period{
		ID:        periodID,
		Name:      name,
		Start:     Day(input.Start),
		End:       Day(input.End),
		Cadence:   input.Cadence,
		Active:    true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, windows, nil
}

// UpdatePeriodInput carries the only mutable period fields.
type UpdatePeriodInput struct {
	Name   string
	Active *bool
}

// UpdatePeriod renames or (de)activates a period. A blank name keeps the
// current one. The range and cadence are fixed at creation.
func UpdatePeriod(period Period, input UpdatePeriodInput, now func() time.Time) Period {
	if now == nil {
		now = time.Now
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		period.Name = name
	}
	if input.Active != nil {
		period.Active = *input.Active
	}
	period.UpdatedAt = now().UTC()
	return period
}
