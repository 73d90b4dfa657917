package reporting

import "time"

// =============================================================================
// WINDOW - Half-open time range used for every report bucket
// =============================================================================

// Window is the range [Start, End). Buckets never overlap at their edges:
// a document stamped exactly at midnight belongs to the day that starts then.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return "[" + w.Start.Format(time.RFC3339) + ", " + w.End.Format(time.RFC3339) + ")"
}

// StartOfDay truncates t to local midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func StartOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// Day is the calendar day containing t.
func Day(t time.Time) Window {
	start := StartOfDay(t)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// LastDays covers today plus the n-1 preceding calendar days.
func LastDays(now time.Time, n int) Window {
	today := Day(now)
	return Window{Start: today.Start.AddDate(0, 0, -(n - 1)), End: today.End}
}

// Month is the calendar month containing t.
func Month(t time.Time) Window {
	start := StartOfMonth(t)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// Days splits w into calendar days, oldest first.
func (w Window) Days() []Window {
	var days []Window
	for d := StartOfDay(w.Start); d.Before(w.End); d = d.AddDate(0, 0, 1) {
		days = append(days, Window{Start: d, End: d.AddDate(0, 0, 1)})
	}
	return days
}
