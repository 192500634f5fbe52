// Package schedule computes successor due dates for recurring jobs.
//
// Every Schedule obeys the same contract: Next returns an instant strictly
// after the reference time it was given, so a recurring job can never be
// rescheduled into the past or onto its own due date.
package schedule

import (
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields the next due date strictly after a reference time.
type Schedule interface {
	Next(from time.Time) time.Time
}

// Func adapts an ordinary function to the Schedule interface.
type Func func(from time.Time) time.Time

func (f Func) Next(from time.Time) time.Time { return f(from) }

// Every fires once per interval, counted from the reference time.
func Every(interval time.Duration) Schedule {
	return Func(func(from time.Time) time.Time {
		return from.Add(interval)
	})
}

// Daily fires at the given UTC wall-clock time once a day.
func Daily(hour, minute int) Schedule {
	return Func(func(from time.Time) time.Time {
		return nextClock(from.UTC(), 0, hour, minute, 1)
	})
}

// Weekly fires at the given weekday and UTC wall-clock time once a week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return Func(func(from time.Time) time.Time {
		from = from.UTC()
		ahead := (int(day) - int(from.Weekday()) + 7) % 7
		return nextClock(from, ahead, hour, minute, 7)
	})
}

// nextClock builds the candidate instant at hour:minute, daysAhead days
// past the reference date. A candidate that has already passed is pushed
// forward by step days.
func nextClock(from time.Time, daysAhead, hour, minute, step int) time.Time {
	due := time.Date(from.Year(), from.Month(), from.Day()+daysAhead, hour, minute, 0, 0, from.Location())
	if due.After(from) {
		return due
	}
	return due.AddDate(0, 0, step)
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Cron parses a standard five-field cron expression. It panics when the
// expression does not parse: schedules are wired at startup, so a bad
// expression is a programming error rather than a runtime condition.
func Cron(expr string) Schedule {
	spec, err := cronParser.Parse(expr)
	if err != nil {
		panic("schedule: bad cron expression " + strconv.Quote(expr) + ": " + err.Error())
	}
	return Func(spec.Next)
}
