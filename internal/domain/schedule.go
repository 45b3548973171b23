package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WireLayout is the local-naive timestamp format used for stored and transmitted entries.
const WireLayout = "2006-01-02 15:04"

// DateLayout is the format of a schedule day.
const DateLayout = "2006-01-02"

var timestampLayouts = []string{
	WireLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseDay parses a YYYY-MM-DD day at midnight in time.Local. An empty value
// means the calendar day of now.
func ParseDay(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		now = now.In(time.Local)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local), nil
	}
	day, err := time.ParseInLocation(DateLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD, got %q", raw)
	}
	return day, nil
}

// ParseTimestamp parses a textual timestamp in any of the accepted layouts.
// Layouts without a zone are interpreted in time.Local.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unsupported format", s)
}

// FormatTimestamp renders t in the wire layout.
func FormatTimestamp(t time.Time) string {
	return t.Format(WireLayout)
}

// EntryType classifies a schedule entry.
type EntryType string

const (
	EntryFixed    EntryType = "Fixed"
	EntryFlexible EntryType = "Flexible"
	EntryBreak    EntryType = "Break"
)

// Valid reports whether the type is one of the known entry types.
func (t EntryType) Valid() bool {
	return t == EntryFixed || t == EntryFlexible || t == EntryBreak
}

// ScheduleEntry is one interval of a generated day.
type ScheduleEntry struct {
	TaskID   *int64
	Label    string
	Start    time.Time
	End      time.Time
	Type     EntryType
	Priority Priority
}

// Duration returns the length of the entry.
func (e ScheduleEntry) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// IsBreak returns true for break entries.
func (e ScheduleEntry) IsBreak() bool {
	return e.Type == EntryBreak
}

type wireEntry struct {
	TaskID   *int64    `json:"task_id"`
	Label    string    `json:"task"`
	Start    string    `json:"start"`
	End      string    `json:"end"`
	Type     EntryType `json:"type"`
	Priority string    `json:"priority,omitempty"`
}

// MarshalJSON encodes the entry in the wire shape with local-naive timestamps.
func (e ScheduleEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEntry{
		TaskID:   e.TaskID,
		Label:    e.Label,
		Start:    FormatTimestamp(e.Start),
		End:      FormatTimestamp(e.End),
		Type:     e.Type,
		Priority: e.Priority.String(),
	})
}

// UnmarshalJSON decodes the wire shape. Start and end must both parse.
func (e *ScheduleEntry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	start, err := ParseTimestamp(w.Start)
	if err != nil {
		return fmt.Errorf("entry start: %w", err)
	}
	end, err := ParseTimestamp(w.End)
	if err != nil {
		return fmt.Errorf("entry end: %w", err)
	}
	if !w.Type.Valid() {
		return fmt.Errorf("invalid entry type %q", w.Type)
	}
	*e = ScheduleEntry{
		TaskID:   w.TaskID,
		Label:    w.Label,
		Start:    start,
		End:      end,
		Type:     w.Type,
		Priority: ParsePriority(w.Priority),
	}
	return nil
}
