package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxEstimatedTime is the longest accepted estimate, in minutes.
const MaxEstimatedTime = 24 * 60

// DefaultFixedDuration is used when a fixed task has neither an end time nor a deadline.
const DefaultFixedDuration = 60 * time.Minute

// ErrUnresolvableWindow is returned when a fixed task has no usable start time.
var ErrUnresolvableWindow = errors.New("fixed task has no resolvable start time")

// Priority is an ordinal task priority. The zero value means unknown.
type Priority int

const (
	PriorityUnknown Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityExtraHigh
)

// String returns the display name stored in the database and sent over the wire.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityExtraHigh:
		return "Extra High"
	default:
		return ""
	}
}

// Score is the weight the evaluator gives the priority. Unknown counts as Low.
func (p Priority) Score() int {
	if p < PriorityLow || p > PriorityExtraHigh {
		return 1
	}
	return int(p)
}

// ParsePriority accepts the display names case-insensitively, with or without
// the space in "Extra High". Unknown names map to PriorityUnknown.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "low":
		return PriorityLow
	case "medium":
		return PriorityMedium
	case "high":
		return PriorityHigh
	case "extrahigh":
		return PriorityExtraHigh
	default:
		return PriorityUnknown
	}
}

// MarshalJSON encodes the priority as its display name.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a display name.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("priority must be a string: %w", err)
	}
	*p = ParsePriority(s)
	return nil
}

// Task is a unit of work owned by a user.
type Task struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"user_id"`
	Name          string     `json:"name"`
	Category      string     `json:"category,omitempty"`
	Description   string     `json:"description,omitempty"`
	EstimatedTime int        `json:"estimated_time"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	FixedTime     bool       `json:"fixed_time"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Priority      Priority   `json:"priority"`
	StressEntry   *int       `json:"stress_entry,omitempty"`
	Archived      bool       `json:"archived"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Duration returns the estimated time as a duration.
func (t *Task) Duration() time.Duration {
	return time.Duration(t.EstimatedTime) * time.Minute
}

// Validate checks fields required for a task to be stored.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("name cannot be empty")
	}
	if t.EstimatedTime <= 0 || t.EstimatedTime > MaxEstimatedTime {
		return fmt.Errorf("estimated_time must be between 1 and %d minutes, got %d", MaxEstimatedTime, t.EstimatedTime)
	}
	if t.FixedTime && t.StartTime == nil {
		return errors.New("fixed tasks require start_time")
	}
	return nil
}

// ResolveWindow returns the immovable window of a fixed task. The end comes from
// the explicit end time, else the deadline, else start plus one hour.
func (t *Task) ResolveWindow() (start, end time.Time, err error) {
	if t.StartTime == nil || t.StartTime.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("task %d (%s): %w", t.ID, t.Name, ErrUnresolvableWindow)
	}
	start = *t.StartTime
	switch {
	case t.EndTime != nil && t.EndTime.After(start):
		end = *t.EndTime
	case t.Deadline != nil && t.Deadline.After(start):
		end = *t.Deadline
	default:
		end = start.Add(DefaultFixedDuration)
	}
	return start, end, nil
}
