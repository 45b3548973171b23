package scheduler

import (
	"github.com/makenakalei/fika-scheduling/internal/domain"
)

// Evaluate scores a finished schedule against the user's preferences. It is a
// pure function of its inputs.
func Evaluate(entries []domain.ScheduleEntry, prefs domain.UserPreferences) float64 {
	focusStart, focusEnd := prefs.FocusPeriod.Window()

	reward := 0.0
	for _, e := range entries {
		if e.IsBreak() {
			reward++
			continue
		}
		hour := e.Start.Hour()
		if hour >= focusStart && hour < focusEnd {
			reward += 2
		} else {
			reward--
		}
		// earlier hours weigh more
		reward += float64(e.Priority.Score()) * float64(24-hour) / 24
	}

	mean := AverageDuration(entries)
	switch {
	case prefs.WorkStyle == domain.WorkStyleLongChunks && mean >= 60:
		reward += 3
	case prefs.WorkStyle == domain.WorkStyleShortSprints && mean < 45:
		reward += 3
	default:
		reward -= 2
	}

	reward += float64(domain.MaxStressLevel-prefs.StressLevel) * 0.5
	return reward
}

// AverageDuration returns the mean entry length in minutes, 0 for no entries.
func AverageDuration(entries []domain.ScheduleEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	total := 0.0
	for _, e := range entries {
		total += e.Duration().Minutes()
	}
	return total / float64(len(entries))
}
