package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/makenakalei/fika-scheduling/internal/domain"
)

func entry(typ domain.EntryType, start, end [2]int, priority domain.Priority) domain.ScheduleEntry {
	e := domain.ScheduleEntry{
		Label:    string(typ),
		Start:    hm(start[0], start[1]),
		End:      hm(end[0], end[1]),
		Type:     typ,
		Priority: priority,
	}
	if typ != domain.EntryBreak {
		id := int64(start[0]*100 + start[1])
		e.TaskID = &id
	}
	return e
}

func TestEvaluate(t *testing.T) {
	morningLong := domain.UserPreferences{FocusPeriod: domain.FocusMorning, WorkStyle: domain.WorkStyleLongChunks, StressLevel: 4}

	tests := []struct {
		name    string
		entries []domain.ScheduleEntry
		prefs   domain.UserPreferences
		want    float64
	}{
		{
			// fixed in focus: 2 + 3*15/24, flexible out of focus: -1 + 1*11/24,
			// break: 1, mean 50m for long chunks: -2, stress: 3
			name: "mixed day",
			entries: []domain.ScheduleEntry{
				entry(domain.EntryFixed, [2]int{9, 0}, [2]int{10, 0}, domain.PriorityHigh),
				entry(domain.EntryFlexible, [2]int{13, 0}, [2]int{14, 0}, domain.PriorityLow),
				entry(domain.EntryBreak, [2]int{10, 0}, [2]int{10, 30}, domain.PriorityUnknown),
			},
			prefs: morningLong,
			want:  3.875 - 1 + 11.0/24 + 1 - 2 + 3,
		},
		{
			// 2 + 2*16/24, break 1, mean 20m for sprints: +3, stress 0: +5
			name: "short sprints aligned",
			entries: []domain.ScheduleEntry{
				entry(domain.EntryFlexible, [2]int{8, 0}, [2]int{8, 30}, domain.PriorityMedium),
				entry(domain.EntryBreak, [2]int{8, 30}, [2]int{8, 40}, domain.PriorityUnknown),
			},
			prefs: domain.UserPreferences{FocusPeriod: domain.FocusMorning, WorkStyle: domain.WorkStyleShortSprints},
			want:  2 + 2.0*16/24 + 1 + 3 + 5,
		},
		{
			// unknown priority scores 1, afternoon window covers 11:00
			name: "unknown priority",
			entries: []domain.ScheduleEntry{
				entry(domain.EntryFlexible, [2]int{11, 0}, [2]int{12, 30}, domain.PriorityUnknown),
			},
			prefs: domain.UserPreferences{FocusPeriod: domain.FocusAfternoon, WorkStyle: domain.WorkStyleLongChunks, StressLevel: 10},
			want:  2 + 13.0/24 + 3,
		},
		{
			name:  "empty schedule",
			prefs: morningLong,
			want:  -2 + 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Evaluate(tt.entries, tt.prefs), 1e-9)
		})
	}
}

func TestEvaluateIsPure(t *testing.T) {
	entries := []domain.ScheduleEntry{
		entry(domain.EntryFixed, [2]int{12, 0}, [2]int{13, 0}, domain.PriorityExtraHigh),
		entry(domain.EntryFlexible, [2]int{14, 0}, [2]int{14, 45}, domain.PriorityMedium),
	}
	prefs := domain.UserPreferences{FocusPeriod: domain.FocusEvening, WorkStyle: domain.WorkStyleShortSprints, StressLevel: 7}
	before := append([]domain.ScheduleEntry(nil), entries...)

	first := Evaluate(entries, prefs)
	second := Evaluate(entries, prefs)

	assert.Equal(t, first, second)
	assert.Equal(t, before, entries)
}

func TestAverageDuration(t *testing.T) {
	assert.Zero(t, AverageDuration(nil))
	assert.InDelta(t, 45.0, AverageDuration([]domain.ScheduleEntry{
		entry(domain.EntryFlexible, [2]int{8, 0}, [2]int{8, 30}, domain.PriorityLow),
		entry(domain.EntryFlexible, [2]int{9, 0}, [2]int{10, 0}, domain.PriorityLow),
	}), 1e-9)
}
