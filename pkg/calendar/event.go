package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/jotask/pkg/model"
	"google.golang.org/api/calendar/v3"
)

const (
	taskIDProperty  = "jotask_id"
	defaultDuration = 30 * time.Minute
)

// ConvertTaskToEvent builds the calendar event for a task with a due date.
// Date-only deadlines become all-day events.
func ConvertTaskToEvent(task model.Task, colorID string) (*calendar.Event, error) {
	due, ok := task.Due()
	if !ok {
		return nil, fmt.Errorf("task has no ISO-8601 due date: %s", task.ID)
	}

	prefix := ""
	if task.Status == model.StatusDone {
		prefix = "✓"
	} else if task.IsUrgent {
		prefix = "!"
	}
	summary := task.Title
	if prefix != "" {
		summary = fmt.Sprintf("%s %s", prefix, task.Title)
	}

	var desc strings.Builder
	if task.Description != "" {
		desc.WriteString(task.Description)
		desc.WriteString("\n\n")
	}
	fmt.Fprintf(&desc, "Status: %s\n", task.Status)
	if task.Category != "" {
		fmt.Fprintf(&desc, "Category: %s\n", task.Category)
	}
	if len(task.Dependencies) > 0 {
		fmt.Fprintf(&desc, "Depends on: %s\n", strings.Join(task.Dependencies, ", "))
	}
	fmt.Fprintf(&desc, "ID: %s\n", task.ID)

	event := &calendar.Event{
		Summary:     summary,
		Description: desc.String(),
		ColorId:     colorID,
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{taskIDProperty: task.ID},
		},
	}

	if isDateOnly(*task.DueDate) {
		event.Start = &calendar.EventDateTime{Date: due.Format("2006-01-02")}
		event.End = &calendar.EventDateTime{Date: due.AddDate(0, 0, 1).Format("2006-01-02")}
	} else {
		event.Start = &calendar.EventDateTime{DateTime: due.UTC().Format(time.RFC3339)}
		event.End = &calendar.EventDateTime{DateTime: due.Add(defaultDuration).UTC().Format(time.RFC3339)}
	}
	return event, nil
}

func isDateOnly(s string) bool {
	return len(strings.TrimSpace(s)) == len("2006-01-02")
}

// EventNeedsUpdate returns a patch holding the fields that differ, or nil.
func EventNeedsUpdate(existing, target *calendar.Event) *calendar.Event {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}
	if !sameTime(existing.Start, target.Start) || !sameTime(existing.End, target.End) {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}

	if needsUpdate {
		return patch
	}
	return nil
}

func sameTime(a, b *calendar.EventDateTime) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Date != "" || b.Date != "" {
		return a.Date == b.Date
	}
	ta, errA := time.Parse(time.RFC3339, a.DateTime)
	tb, errB := time.Parse(time.RFC3339, b.DateTime)
	if errA != nil || errB != nil {
		return a.DateTime == b.DateTime
	}
	return ta.Equal(tb)
}
