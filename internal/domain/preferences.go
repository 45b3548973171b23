package domain

import (
	"fmt"
)

// FocusPeriod is the part of the day a user prefers for deep work.
type FocusPeriod string

const (
	FocusMorning   FocusPeriod = "morning"
	FocusAfternoon FocusPeriod = "afternoon"
	FocusEvening   FocusPeriod = "evening"
)

// Window returns the focus hour range [start, end) for the period.
// Unknown periods fall back to the morning window.
func (f FocusPeriod) Window() (startHour, endHour int) {
	switch f {
	case FocusAfternoon:
		return 10, 14
	case FocusEvening:
		return 12, 16
	default:
		return 8, 12
	}
}

// WorkStyle describes how a user likes to chunk work.
type WorkStyle string

const (
	WorkStyleLongChunks   WorkStyle = "long_chunks"
	WorkStyleShortSprints WorkStyle = "short_sprints"
)

// MaxStressLevel is the upper bound of the stress scale.
const MaxStressLevel = 10

// UserPreferences are the stated work preferences consumed by the scheduler.
// SleepGoal, SleepPref and Occupation are stored but not used for scheduling.
type UserPreferences struct {
	FocusPeriod FocusPeriod `json:"focus_period"`
	WorkStyle   WorkStyle   `json:"work_style"`
	StressLevel int         `json:"stress_level"`
	SleepGoal   *float64    `json:"sleep_goal,omitempty"`
	SleepPref   string      `json:"sleep_pref,omitempty"`
	Occupation  string      `json:"occupation,omitempty"`
}

// Validate checks the fields the scheduler depends on.
func (p UserPreferences) Validate() error {
	switch p.FocusPeriod {
	case FocusMorning, FocusAfternoon, FocusEvening:
	default:
		return fmt.Errorf("invalid focus_period %q", p.FocusPeriod)
	}
	switch p.WorkStyle {
	case WorkStyleLongChunks, WorkStyleShortSprints:
	default:
		return fmt.Errorf("invalid work_style %q", p.WorkStyle)
	}
	if p.StressLevel < 0 || p.StressLevel > MaxStressLevel {
		return fmt.Errorf("stress_level must be between 0 and %d, got %d", MaxStressLevel, p.StressLevel)
	}
	return nil
}

// WorkBlock returns the work block length and break length in minutes.
// Stressed users (level 7 and above) get ten extra minutes of break.
func (p UserPreferences) WorkBlock() (workBlock, breakTime int) {
	if p.WorkStyle == WorkStyleLongChunks {
		workBlock, breakTime = 90, 30
	} else {
		workBlock, breakTime = 45, 10
	}
	if p.StressLevel >= 7 {
		breakTime += 10
	}
	return workBlock, breakTime
}
