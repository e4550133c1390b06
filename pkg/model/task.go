package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the progress state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// ParseStatus accepts the wire values as well as their upper-case enum spellings.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "todo":
		return StatusTodo, nil
	case "in-progress", "in_progress", "inprogress":
		return StatusInProgress, nil
	case "done":
		return StatusDone, nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// UnmarshalJSON implements the json.Unmarshaler interface for Status.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("task status must be a string: %w", err)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Task is a unit of work extracted from a journal.
type Task struct {
	ID           string   `json:"id" yaml:"id"`
	Title        string   `json:"title" yaml:"title"`
	Description  string   `json:"description" yaml:"description"`
	DueDate      *string  `json:"dueDate" yaml:"dueDate,omitempty"`
	Category     string   `json:"category" yaml:"category"`
	Status       Status   `json:"status" yaml:"status"`
	IsUrgent     bool     `json:"isUrgent" yaml:"isUrgent"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
	CreatedAt    string   `json:"createdAt" yaml:"createdAt"`
}

var dueLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Due parses the due date. ok is false when the task has no deadline or the
// date is not ISO-8601.
func (t Task) Due() (due time.Time, ok bool) {
	if t.DueDate == nil {
		return time.Time{}, false
	}
	s := strings.TrimSpace(*t.DueDate)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dueLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// HasDeadline reports whether a non-empty due date is set.
func (t Task) HasDeadline() bool {
	return t.DueDate != nil && strings.TrimSpace(*t.DueDate) != ""
}

// TaskSet is the ordered result of one extraction.
type TaskSet []Task

// Find returns the task with the given ID.
func (ts TaskSet) Find(id string) (Task, bool) {
	for _, t := range ts {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Clone returns a deep copy so callers cannot mutate committed state.
func (ts TaskSet) Clone() TaskSet {
	if ts == nil {
		return TaskSet{}
	}
	out := make(TaskSet, len(ts))
	for i, t := range ts {
		if t.DueDate != nil {
			d := *t.DueDate
			t.DueDate = &d
		}
		if t.Dependencies != nil {
			deps := make([]string, len(t.Dependencies))
			copy(deps, t.Dependencies)
			t.Dependencies = deps
		}
		out[i] = t
	}
	return out
}

// StringPtr is a convenience for building tasks with a due date.
func StringPtr(s string) *string {
	return &s
}
