package queue

import (
	"fmt"
	"time"
)

// Schedule determines when a repeatable job should run next
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

// interval repeats after a fixed duration, aligned to multiples of it so
// every scheduler process computes the same run times.
type interval time.Duration

func (s interval) Next(from time.Time) time.Time {
	d := time.Duration(s)
	return from.Truncate(d).Add(d)
}

func (s interval) String() string {
	return fmt.Sprintf("every %v", time.Duration(s))
}

type period int

const (
	periodHour period = iota
	periodDay
	periodWeek
	periodMonth
)

// calendar repeats at a wall-clock position within an hour, day, week or month.
type calendar struct {
	period  period
	weekday time.Weekday
	day     int
	hour    int
	minute  int
}

func (s calendar) Next(from time.Time) time.Time {
	y, m, d := from.Date()
	loc := from.Location()

	var next time.Time
	switch s.period {
	case periodHour:
		next = time.Date(y, m, d, from.Hour(), s.minute, 0, 0, loc)
		if !next.After(from) {
			next = next.Add(time.Hour)
		}
	case periodDay:
		next = time.Date(y, m, d, s.hour, s.minute, 0, 0, loc)
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
	case periodWeek:
		ahead := (int(s.weekday) - int(from.Weekday()) + 7) % 7
		next = time.Date(y, m, d+ahead, s.hour, s.minute, 0, 0, loc)
		if !next.After(from) {
			next = next.AddDate(0, 0, 7)
		}
	case periodMonth:
		next = s.inMonth(y, m, loc)
		if !next.After(from) {
			next = s.inMonth(y, m+1, loc)
		}
	}
	return next
}

// inMonth clamps the day to the month length, so day 31 runs on Feb 28/29.
func (s calendar) inMonth(y int, m time.Month, loc *time.Location) time.Time {
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	return time.Date(first.Year(), first.Month(), min(s.day, last), s.hour, s.minute, 0, 0, loc)
}

func (s calendar) String() string {
	switch s.period {
	case periodHour:
		return fmt.Sprintf("hourly at :%02d", s.minute)
	case periodWeek:
		return fmt.Sprintf("weekly on %s at %02d:%02d", s.weekday, s.hour, s.minute)
	case periodMonth:
		return fmt.Sprintf("monthly on day %d at %02d:%02d", s.day, s.hour, s.minute)
	default:
		return fmt.Sprintf("daily at %02d:%02d", s.hour, s.minute)
	}
}

// Every repeats at a fixed interval
func Every(d time.Duration) Schedule {
	return interval(d)
}

// HourlyAt repeats every hour at the given minute
func HourlyAt(minute int) Schedule {
	return calendar{period: periodHour, minute: minute}
}

// DailyAt repeats every day at the given time
func DailyAt(hour, minute int) Schedule {
	return calendar{period: periodDay, hour: hour, minute: minute}
}

// WeeklyOn repeats every week on the given day and time
func WeeklyOn(weekday time.Weekday, hour, minute int) Schedule {
	return calendar{period: periodWeek, weekday: weekday, hour: hour, minute: minute}
}

// MonthlyOn repeats every month on the given day and time
func MonthlyOn(day, hour, minute int) Schedule {
	return calendar{period: periodMonth, day: day, hour: hour, minute: minute}
}
