package scheduler

import (
	"log/slog"
	"slices"
	"time"

	"github.com/makenakalei/fika-scheduling/internal/domain"
)

// Rewards handed to the policy for individual placements.
const (
	TaskReward  = 1.0
	BreakReward = 0.05
)

// DefaultEstimatedMinutes is used for flexible tasks stored without a positive estimate.
const DefaultEstimatedMinutes = 30

// Phase is the control-loop state of the builder.
type Phase int

const (
	PhaseAtGapStart Phase = iota
	PhaseScheduling
	PhaseGapExhausted
	PhaseTasksExhausted
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseAtGapStart:
		return "at_gap_start"
	case PhaseScheduling:
		return "scheduling"
	case PhaseGapExhausted:
		return "gap_exhausted"
	case PhaseTasksExhausted:
		return "tasks_exhausted"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Result is the outcome of one build.
type Result struct {
	Entries []domain.ScheduleEntry
	// Dropped holds flexible tasks that were picked but did not fit the rest
	// of their gap. They are not re-queued for later gaps.
	Dropped []domain.Task
}

// Counts returns the number of entries of each type.
func (r Result) Counts() map[domain.EntryType]int {
	counts := make(map[domain.EntryType]int, 3)
	for _, e := range r.Entries {
		counts[e.Type]++
	}
	return counts
}

// Builder drives the policy across the open gaps of a day.
type Builder struct {
	policy *Policy
	prefs  domain.UserPreferences
	logger *slog.Logger

	workBlock int
	breakTime time.Duration
	phase     Phase
}

// NewBuilder creates a builder for one run.
func NewBuilder(policy *Policy, prefs domain.UserPreferences, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	workBlock, breakMinutes := prefs.WorkBlock()
	return &Builder{
		policy:    policy,
		prefs:     prefs,
		logger:    logger,
		workBlock: workBlock,
		breakTime: time.Duration(breakMinutes) * time.Minute,
		phase:     PhaseAtGapStart,
	}
}

// ActionsFor returns the action space for a list of flexible tasks: one action
// per task, in order, followed by the break action.
func ActionsFor(flexible []domain.Task) []Action {
	actions := make([]Action, 0, len(flexible)+1)
	for _, t := range flexible {
		actions = append(actions, TaskAction(t.ID))
	}
	return append(actions, BreakAction)
}

// Build emits the fixed entries first, then fills every gap between them with
// flexible tasks and breaks chosen by the policy.
func (b *Builder) Build(dayStart, dayEnd time.Time, fixed []FixedBlock, flexible []domain.Task) Result {
	var res Result
	for _, block := range fixed {
		id := block.Task.ID
		res.Entries = append(res.Entries, domain.ScheduleEntry{
			TaskID:   &id,
			Label:    block.Task.Name,
			Start:    block.Window.Start,
			End:      block.Window.End,
			Type:     domain.EntryFixed,
			Priority: block.Task.Priority,
		})
	}

	remaining := slices.Clone(flexible)
	for _, gap := range ComputeGaps(dayStart, dayEnd, windows(fixed)) {
		if len(remaining) == 0 {
			b.setPhase(PhaseTasksExhausted)
			break
		}
		b.setPhase(PhaseAtGapStart)
		var dropped []domain.Task
		var entries []domain.ScheduleEntry
		entries, remaining, dropped = b.fillGap(gap, remaining)
		res.Entries = append(res.Entries, entries...)
		res.Dropped = append(res.Dropped, dropped...)
	}
	b.setPhase(PhaseDone)
	return res
}

func (b *Builder) fillGap(gap Interval, remaining []domain.Task) ([]domain.ScheduleEntry, []domain.Task, []domain.Task) {
	var entries []domain.ScheduleEntry
	var dropped []domain.Task
	cursor := gap.Start

	for cursor.Before(gap.End) && len(remaining) > 0 {
		b.setPhase(PhaseScheduling)
		state := NewAgentState(cursor, len(remaining), b.prefs)
		action, ok := b.policy.Select(state, ActionsFor(remaining))
		if !ok {
			break
		}

		if action.Break {
			end := cursor.Add(b.breakTime)
			if end.After(gap.End) {
				break
			}
			entries = append(entries, breakEntry(cursor, end))
			b.policy.Update(state, action, BreakReward, NewAgentState(end, len(remaining), b.prefs))
			cursor = end
			continue
		}

		idx := slices.IndexFunc(remaining, func(t domain.Task) bool { return t.ID == action.TaskID })
		task := remaining[idx]
		remaining = slices.Delete(remaining, idx, idx+1)

		// Compare in minutes so oversized estimates cannot overflow time.Duration.
		minutes := taskMinutes(task)
		if minutes > int64(gap.End.Sub(cursor)/time.Minute) {
			b.logger.Debug("Task does not fit remaining gap, dropping",
				"task_id", task.ID, "cursor", cursor, "gap_end", gap.End)
			dropped = append(dropped, task)
			break
		}
		end := cursor.Add(time.Duration(minutes) * time.Minute)
		id := task.ID
		entries = append(entries, domain.ScheduleEntry{
			TaskID:   &id,
			Label:    task.Name,
			Start:    cursor,
			End:      end,
			Type:     domain.EntryFlexible,
			Priority: task.Priority,
		})
		b.policy.Update(state, action, TaskReward, NewAgentState(end, len(remaining), b.prefs))
		cursor = end

		if b.wantsBreak(cursor) {
			breakEnd := cursor.Add(b.breakTime)
			if breakEnd.After(gap.End) {
				break
			}
			entries = append(entries, breakEntry(cursor, breakEnd))
			cursor = breakEnd
		}
	}

	b.setPhase(PhaseGapExhausted)
	return entries, remaining, dropped
}

// wantsBreak applies the automatic break rule after a placed task.
func (b *Builder) wantsBreak(cursor time.Time) bool {
	switch b.prefs.WorkStyle {
	case domain.WorkStyleShortSprints:
		return true
	case domain.WorkStyleLongChunks:
		return cursor.Minute()%b.workBlock == 0
	default:
		return false
	}
}

func (b *Builder) setPhase(p Phase) {
	if b.phase != p {
		b.logger.Debug("Builder phase change", "from", b.phase.String(), "to", p.String())
		b.phase = p
	}
}

func breakEntry(start, end time.Time) domain.ScheduleEntry {
	return domain.ScheduleEntry{
		Label: "Break",
		Start: start,
		End:   end,
		Type:  domain.EntryBreak,
	}
}

func taskMinutes(t domain.Task) int64 {
	if t.EstimatedTime <= 0 {
		return DefaultEstimatedMinutes
	}
	return int64(t.EstimatedTime)
}
