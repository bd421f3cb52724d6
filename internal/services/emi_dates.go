package services

import "time"

// Date arithmetic for installment schedules. All functions are pure.

// LastDayOfMonth returns the final day of t's month, at midnight in t's location.
func LastDayOfMonth(t time.Time) time.Time {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location())
}

// MonthName returns the full English month name for t, e.g. "January".
func MonthName(t time.Time) string {
	return t.Month().String()
}

// NextDueDate advances start by monthsOffset whole months and then clamps
// dueDay to the last valid day of the resulting month (due-day 31 in a
// 30-day month becomes day 30).
func NextDueDate(start time.Time, dueDay int, monthsOffset int) time.Time {
	// Normalize to the first of the target month before clamping so that a
	// 31st start date cannot overflow into the following month.
	target := time.Date(start.Year(), start.Month()+time.Month(monthsOffset), 1, 0, 0, 0, 0, start.Location())

	lastDay := LastDayOfMonth(target).Day()
	day := dueDay
	if day > lastDay {
		day = lastDay
	}

	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, start.Location())
}
