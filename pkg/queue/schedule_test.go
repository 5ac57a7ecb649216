package queue_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/queuekit/pkg/queue"
)

func TestSchedule_Next(t *testing.T) {
	t.Parallel()

	date := func(y int, m time.Month, d, h, min, s int) time.Time {
		return time.Date(y, m, d, h, min, s, 0, time.UTC)
	}

	tests := []struct {
		name     string
		schedule queue.Schedule
		from     time.Time
		want     time.Time
	}{
		{"every 30s aligned", queue.Every(30 * time.Second), date(2024, 1, 1, 14, 15, 10), date(2024, 1, 1, 14, 15, 30)},
		{"every 30s on boundary", queue.Every(30 * time.Second), date(2024, 1, 1, 14, 15, 30), date(2024, 1, 1, 14, 16, 0)},
		{"every 15m", queue.Every(15 * time.Minute), date(2024, 1, 1, 14, 7, 0), date(2024, 1, 1, 14, 15, 0)},
		{"hourly later this hour", queue.HourlyAt(30), date(2024, 1, 1, 14, 15, 0), date(2024, 1, 1, 14, 30, 0)},
		{"hourly next hour", queue.HourlyAt(15), date(2024, 1, 1, 14, 30, 0), date(2024, 1, 1, 15, 15, 0)},
		{"hourly exact time moves on", queue.HourlyAt(0), date(2024, 1, 1, 14, 0, 0), date(2024, 1, 1, 15, 0, 0)},
		{"daily later today", queue.DailyAt(15, 30), date(2024, 1, 1, 14, 0, 0), date(2024, 1, 1, 15, 30, 0)},
		{"daily tomorrow", queue.DailyAt(9, 0), date(2024, 1, 1, 14, 0, 0), date(2024, 1, 2, 9, 0, 0)},
		{"daily year boundary", queue.DailyAt(0, 0), date(2024, 12, 31, 23, 59, 0), date(2025, 1, 1, 0, 0, 0)},
		{"weekly later this week", queue.WeeklyOn(time.Friday, 10, 0), date(2024, 1, 1, 14, 0, 0), date(2024, 1, 5, 10, 0, 0)},
		{"weekly same day earlier", queue.WeeklyOn(time.Monday, 10, 0), date(2024, 1, 1, 14, 0, 0), date(2024, 1, 8, 10, 0, 0)},
		{"weekly same day later", queue.WeeklyOn(time.Monday, 16, 0), date(2024, 1, 1, 14, 0, 0), date(2024, 1, 1, 16, 0, 0)},
		{"monthly this month", queue.MonthlyOn(15, 10, 0), date(2024, 1, 1, 14, 0, 0), date(2024, 1, 15, 10, 0, 0)},
		{"monthly next month", queue.MonthlyOn(1, 10, 0), date(2024, 1, 1, 14, 0, 0), date(2024, 2, 1, 10, 0, 0)},
		{"monthly year boundary", queue.MonthlyOn(5, 10, 0), date(2024, 12, 20, 14, 0, 0), date(2025, 1, 5, 10, 0, 0)},
		{"monthly clamps to short month", queue.MonthlyOn(29, 10, 0), date(2023, 1, 31, 10, 0, 0), date(2023, 2, 28, 10, 0, 0)},
		{"monthly leap year", queue.MonthlyOn(29, 10, 0), date(2024, 1, 31, 10, 0, 0), date(2024, 2, 29, 10, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.schedule.Next(tt.from))
		})
	}
}

func TestSchedule_DaysInMonth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2024, time.January, 31},
		{2024, time.February, 29},
		{2023, time.February, 28},
		{2024, time.April, 30},
		{2024, time.December, 31},
	}

	schedule := queue.MonthlyOn(31, 12, 0)
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-%02d", tt.year, tt.month), func(t *testing.T) {
			t.Parallel()
			next := schedule.Next(time.Date(tt.year, tt.month, 1, 0, 0, 0, 0, time.UTC))
			assert.Equal(t, tt.month, next.Month())
			assert.Equal(t, tt.want, next.Day())
		})
	}
}

func TestSchedule_PreservesLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC-5", -5*60*60)
	next := queue.DailyAt(9, 0).Next(time.Date(2024, 1, 1, 14, 0, 0, 0, loc))

	assert.Equal(t, loc, next.Location())
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, loc), next)
}

func TestSchedule_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "every 30s", queue.Every(30*time.Second).String())
	assert.Equal(t, "hourly at :05", queue.HourlyAt(5).String())
	assert.Equal(t, "daily at 09:30", queue.DailyAt(9, 30).String())
	assert.Equal(t, "weekly on Monday at 10:00", queue.WeeklyOn(time.Monday, 10, 0).String())
	assert.Equal(t, "monthly on day 15 at 08:00", queue.MonthlyOn(15, 8, 0).String())
}
