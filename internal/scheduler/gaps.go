// Package scheduler builds a single day's schedule from fixed commitments and
// flexible tasks, using a tabular Q-learning policy to pick the next placement
// and a scoring function to grade the finished day.
package scheduler

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/makenakalei/fika-scheduling/internal/domain"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the interval.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether the two intervals share any time.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// ComputeGaps returns the open intervals of [dayStart, dayEnd) not covered by a
// fixed block, in chronological order. Overlapping blocks are merged.
// The input slice is not modified.
func ComputeGaps(dayStart, dayEnd time.Time, fixed []Interval) []Interval {
	blocks := slices.Clone(fixed)
	slices.SortStableFunc(blocks, func(a, b Interval) int {
		return a.Start.Compare(b.Start)
	})

	var gaps []Interval
	cursor := dayStart
	for _, block := range blocks {
		if cursor.Before(block.Start) {
			gaps = append(gaps, Interval{Start: cursor, End: block.Start})
		}
		if block.End.After(cursor) {
			cursor = block.End
		}
	}
	if cursor.Before(dayEnd) {
		gaps = append(gaps, Interval{Start: cursor, End: dayEnd})
	}
	return gaps
}

// FixedBlock is a fixed task with its resolved window.
type FixedBlock struct {
	Task   domain.Task
	Window Interval
}

// Workday is the daily working window expressed as offsets from midnight.
type Workday struct {
	Start time.Duration
	End   time.Duration
}

// DefaultWorkday runs from 08:00 to 17:00.
var DefaultWorkday = Workday{Start: 8 * time.Hour, End: 17 * time.Hour}

// Bounds returns the working window on the calendar day of t, in t's location.
// Start and End are wall-clock offsets, so the window keeps its clock times on
// daylight saving changeover days.
func (w Workday) Bounds(t time.Time) (time.Time, time.Time) {
	return wallClock(t, w.Start), wallClock(t, w.End)
}

func wallClock(day time.Time, offset time.Duration) time.Time {
	hour := int(offset / time.Hour)
	minute := int(offset % time.Hour / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

// Validate checks that the window is non-empty and inside one day.
func (w Workday) Validate() error {
	if w.Start < 0 || w.End > 24*time.Hour || w.End <= w.Start {
		return fmt.Errorf("invalid workday %s-%s", w.Start, w.End)
	}
	return nil
}

// PrepareFixed resolves the windows of fixed tasks, keeps those overlapping the
// day, clips them to the day bounds and sorts them by start. A task with no
// usable start time fails the whole run.
func PrepareFixed(tasks []domain.Task, dayStart, dayEnd time.Time, logger *slog.Logger) ([]FixedBlock, error) {
	if logger == nil {
		logger = slog.Default()
	}
	day := Interval{Start: dayStart, End: dayEnd}

	var blocks []FixedBlock
	for _, task := range tasks {
		if !task.FixedTime {
			continue
		}
		start, end, err := task.ResolveWindow()
		if err != nil {
			return nil, err
		}
		window := Interval{Start: start, End: end}
		if !window.Overlaps(day) {
			logger.Debug("Fixed task outside of workday", "task_id", task.ID, "start", start, "end", end)
			continue
		}
		if window.Start.Before(dayStart) {
			window.Start = dayStart
		}
		if window.End.After(dayEnd) {
			window.End = dayEnd
		}
		blocks = append(blocks, FixedBlock{Task: task, Window: window})
	}

	slices.SortStableFunc(blocks, func(a, b FixedBlock) int {
		return a.Window.Start.Compare(b.Window.Start)
	})
	for i := 1; i < len(blocks); i++ {
		if blocks[i].Window.Overlaps(blocks[i-1].Window) {
			logger.Warn("Overlapping fixed tasks merged",
				"task_id", blocks[i].Task.ID,
				"other_task_id", blocks[i-1].Task.ID)
		}
	}
	return blocks, nil
}

func windows(blocks []FixedBlock) []Interval {
	out := make([]Interval, len(blocks))
	for i, b := range blocks {
		out[i] = b.Window
	}
	return out
}
