package scheduler

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makenakalei/fika-scheduling/internal/domain"
)

var testDay = time.Date(2025, 3, 10, 0, 0, 0, 0, time.Local)

func hm(hour, minute int) time.Time {
	return time.Date(testDay.Year(), testDay.Month(), testDay.Day(), hour, minute, 0, 0, time.Local)
}

func hmPtr(hour, minute int) *time.Time {
	t := hm(hour, minute)
	return &t
}

func TestComputeGaps(t *testing.T) {
	tests := []struct {
		name  string
		fixed []Interval
		want  []Interval
	}{
		{
			name: "no fixed blocks",
			want: []Interval{{hm(8, 0), hm(17, 0)}},
		},
		{
			name:  "block in the middle",
			fixed: []Interval{{hm(10, 0), hm(11, 0)}},
			want:  []Interval{{hm(8, 0), hm(10, 0)}, {hm(11, 0), hm(17, 0)}},
		},
		{
			name:  "unsorted blocks touching the bounds",
			fixed: []Interval{{hm(16, 0), hm(17, 0)}, {hm(8, 0), hm(9, 0)}},
			want:  []Interval{{hm(9, 0), hm(16, 0)}},
		},
		{
			name:  "overlapping blocks merge",
			fixed: []Interval{{hm(9, 0), hm(11, 0)}, {hm(10, 0), hm(10, 30)}, {hm(10, 45), hm(12, 0)}},
			want:  []Interval{{hm(8, 0), hm(9, 0)}, {hm(12, 0), hm(17, 0)}},
		},
		{
			name:  "whole day covered",
			fixed: []Interval{{hm(8, 0), hm(17, 0)}},
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeGaps(hm(8, 0), hm(17, 0), tt.fixed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeGapsIsDeterministicAndPure(t *testing.T) {
	fixed := []Interval{{hm(13, 0), hm(14, 0)}, {hm(9, 0), hm(9, 30)}}
	original := append([]Interval(nil), fixed...)

	first := ComputeGaps(hm(8, 0), hm(17, 0), fixed)
	second := ComputeGaps(hm(8, 0), hm(17, 0), fixed)

	assert.Equal(t, first, second)
	assert.Equal(t, original, fixed, "input must not be reordered")
}

func TestPrepareFixed(t *testing.T) {
	tasks := []domain.Task{
		{ID: 1, Name: "lunch", FixedTime: true, StartTime: hmPtr(12, 0), EndTime: hmPtr(13, 0)},
		{ID: 2, Name: "standup", FixedTime: true, StartTime: hmPtr(9, 0)},
		{ID: 3, Name: "flexible", EstimatedTime: 30},
		{ID: 4, Name: "tomorrow", FixedTime: true, StartTime: func() *time.Time { t := hm(9, 0).AddDate(0, 0, 1); return &t }()},
		{ID: 5, Name: "late night", FixedTime: true, StartTime: hmPtr(16, 30), EndTime: hmPtr(18, 0)},
	}

	blocks, err := PrepareFixed(tasks, hm(8, 0), hm(17, 0), nil)
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	assert.Equal(t, int64(2), blocks[0].Task.ID)
	assert.Equal(t, Interval{hm(9, 0), hm(10, 0)}, blocks[0].Window)
	assert.Equal(t, int64(1), blocks[1].Task.ID)
	assert.Equal(t, Interval{hm(16, 30), hm(17, 0)}, blocks[2].Window, "clipped to day end")
}

func TestPrepareFixedMissingStartIsFatal(t *testing.T) {
	tasks := []domain.Task{{ID: 9, Name: "broken", FixedTime: true, EndTime: hmPtr(10, 0)}}
	_, err := PrepareFixed(tasks, hm(8, 0), hm(17, 0), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnresolvableWindow))
}

func TestWorkdayBounds(t *testing.T) {
	start, end := DefaultWorkday.Bounds(hm(15, 42))
	assert.Equal(t, hm(8, 0), start)
	assert.Equal(t, hm(17, 0), end)

	assert.Error(t, Workday{Start: 10 * time.Hour, End: 9 * time.Hour}.Validate())
	assert.NoError(t, DefaultWorkday.Validate())
}

func TestWorkdayBoundsKeepWallClockAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	for _, day := range []time.Time{
		time.Date(2025, 3, 9, 0, 0, 0, 0, ny),  // spring forward
		time.Date(2025, 11, 2, 0, 0, 0, 0, ny), // fall back
	} {
		start, end := DefaultWorkday.Bounds(day)
		assert.Equal(t, time.Date(2025, day.Month(), day.Day(), 8, 0, 0, 0, ny), start)
		assert.Equal(t, time.Date(2025, day.Month(), day.Day(), 17, 0, 0, 0, ny), end)
		assert.Equal(t, 8, start.Hour(), day.Format(time.DateOnly))
		assert.Equal(t, 17, end.Hour(), day.Format(time.DateOnly))
	}

	half := Workday{Start: 8*time.Hour + 30*time.Minute, End: 24 * time.Hour}
	start, end := half.Bounds(time.Date(2025, 3, 9, 12, 0, 0, 0, ny))
	assert.Equal(t, time.Date(2025, 3, 9, 8, 30, 0, 0, ny), start)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, ny), end)
}
