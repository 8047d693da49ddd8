package types

import (
	"time"
)

// AddClampedDate adds years, months and days to t, clamping the day to the
// last day of the resulting month. Jan 31 plus one month is Feb 28 (or 29),
// never Mar 3 as time.AddDate would return.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := time.Month(int(m) + months)

	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	firstOfNextMonth := time.Date(newY, newM+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.AddDate(0, 0, -1).Day()

	newD := d
	if newD > lastDay {
		newD = lastDay
	}

	return time.Date(newY, newM, newD, h, min, sec, t.Nanosecond(), t.Location()).AddDate(0, 0, days)
}

// InstallmentDueDate returns the due date of installment n (1 based) of a
// monthly schedule anchored on start. Each date is computed from the anchor
// so a clamped February does not drag the later months back.
func InstallmentDueDate(start time.Time, n int) time.Time {
	return AddClampedDate(start, 0, n, 0)
}

// StartOfYear returns midnight UTC on January 1st of t's year
func StartOfYear(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}
