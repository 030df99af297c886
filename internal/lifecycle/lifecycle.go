// Package lifecycle derives an event's live phase and seat availability from
// its stored dates and counters. Everything here is pure.
package lifecycle

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidDate is returned when a stored event date cannot be parsed.
var ErrInvalidDate = errors.New("invalid date")

// Phase is one of upcoming, live or ended.
type Phase string

const (
	Upcoming Phase = "upcoming"
	Live     Phase = "live"
	Ended    Phase = "ended"
)

// AdmissionOpen reports whether registration is offered in this phase.
func (p Phase) AdmissionOpen() bool {
	return p == Upcoming
}

const dateLayout = "2006-01-02"

// ParseDay parses a calendar date ("2006-01-02" or RFC 3339) and truncates it
// to midnight in loc.
func ParseDay(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return day(t.In(loc)), nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DerivePhase returns the phase of an event running from startDate to
// endDate (inclusive) as seen at now.
func DerivePhase(startDate, endDate string, now time.Time) (Phase, error) {
	loc := now.Location()
	start, err := ParseDay(startDate, loc)
	if err != nil {
		return "", fmt.Errorf("start date: %w", err)
	}
	end, err := ParseDay(endDate, loc)
	if err != nil {
		return "", fmt.Errorf("end date: %w", err)
	}
	today := day(now)

	switch {
	case today.Before(start):
		return Upcoming, nil
	case today.After(end):
		return Ended, nil
	default:
		return Live, nil
	}
}

// Availability describes how many seats an event has left.
type Availability struct {
	Unlimited   bool
	Remaining   int
	FillPercent int
}

// Slots computes seat availability. A nil capacity means unlimited.
func Slots(capacity *int, registered int) Availability {
	if capacity == nil {
		return Availability{Unlimited: true}
	}
	c := *capacity
	a := Availability{Remaining: max(0, c-registered)}
	if c > 0 {
		a.FillPercent = int(math.Round(100 * float64(registered) / float64(c)))
	}
	return a
}
