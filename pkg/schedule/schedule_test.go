package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvery(t *testing.T) {
	s := Every(5 * time.Minute)
	now := time.Now()
	assert.Equal(t, now.Add(5*time.Minute), s.Next(now))
}

func TestEvery_MultipleNext(t *testing.T) {
	s := Every(time.Hour)
	start := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	next1 := s.Next(start)
	next2 := s.Next(next1)

	assert.Equal(t, time.Date(2026, 1, 5, 13, 0, 0, 0, time.UTC), next1)
	assert.Equal(t, time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC), next2)
}

func TestDaily(t *testing.T) {
	s := Daily(9, 30)
	from := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC), s.Next(from))
}

func TestDaily_NextDay(t *testing.T) {
	s := Daily(9, 30)
	from := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 6, 9, 30, 0, 0, time.UTC), s.Next(from))
}

func TestWeekly(t *testing.T) {
	s := Weekly(time.Monday, 10, 0)
	from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // Monday
	assert.Equal(t, time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC), s.Next(from))
}

func TestWeekly_NextWeek(t *testing.T) {
	s := Weekly(time.Monday, 10, 0)
	from := time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC) // Monday after 10:00
	assert.Equal(t, time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC), s.Next(from))
}

func TestWeekly_DifferentDay(t *testing.T) {
	s := Weekly(time.Friday, 17, 0)
	from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // Monday
	assert.Equal(t, time.Date(2026, 1, 9, 17, 0, 0, 0, time.UTC), s.Next(from))
}

func TestCron(t *testing.T) {
	s := Cron("0 9 * * *")
	from := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	next := s.Next(from)

	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestCron_InvalidExpression_Panics(t *testing.T) {
	assert.Panics(t, func() {
		Cron("invalid cron")
	})
}

func TestScheduleInterface(t *testing.T) {
	var _ Schedule = Every(time.Minute)
	var _ Schedule = Daily(9, 0)
	var _ Schedule = Weekly(time.Monday, 9, 0)
	var _ Schedule = Cron("* * * * *")
}
