// Package calendar pushes task deadlines to a Google Calendar as events.
package calendar

import (
	"context"
	"fmt"
	"net/http"

	"github.com/harrisonrobin/jotask/pkg/model"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Scopes requested for calendar export.
var Scopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

// NewService creates a Calendar service on an authorized HTTP client.
func NewService(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*calendar.Service, error) {
	base := []option.ClientOption{option.WithHTTPClient(httpClient)}
	srv, err := calendar.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}
	return srv, nil
}

// FindCalendarID resolves a calendar by its display name.
func FindCalendarID(ctx context.Context, srv *calendar.Service, name string) (string, error) {
	calendarList, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to retrieve calendar list: %w", err)
	}
	for _, item := range calendarList.Items {
		if item.Summary == name {
			return item.Id, nil
		}
	}
	return "", fmt.Errorf("calendar '%s' not found", name)
}

// Client pushes tasks to one calendar.
type Client struct {
	srv        *calendar.Service
	calendarID string
	index      *EventIndex
	colors     *ColorCache
	logger     *logrus.Logger
}

func NewClient(srv *calendar.Service, calendarID string, idx *EventIndex, colors *ColorCache, logger *logrus.Logger) *Client {
	return &Client{srv: srv, calendarID: calendarID, index: idx, colors: colors, logger: logger}
}

// PushResult counts what Push did.
type PushResult struct {
	Created   int
	Updated   int
	Unchanged int
	Deleted   int
	Skipped   int
}

// Push mirrors the deadlines of tasks into the calendar. Tasks without a
// parsable due date are skipped; events of tasks no longer present, or no
// longer carrying a deadline, are deleted.
func (c *Client) Push(ctx context.Context, tasks model.TaskSet) (PushResult, error) {
	var res PushResult
	keep := make(map[string]bool, len(tasks))

	for _, task := range tasks {
		if _, ok := task.Due(); !ok {
			res.Skipped++
			continue
		}
		keep[task.ID] = true

		out, err := c.syncTask(ctx, task)
		if err != nil {
			return res, fmt.Errorf("sync task %s: %w", task.ID, err)
		}
		switch out {
		case outcomeCreated:
			res.Created++
		case outcomeUpdated:
			res.Updated++
		default:
			res.Unchanged++
		}
	}

	for _, id := range c.index.TaskIDs() {
		if keep[id] {
			continue
		}
		if err := c.DeleteEvent(ctx, c.index.Get(id)); err != nil {
			c.logger.WithError(err).WithField("task", id).Warn("could not delete stale event")
		} else {
			res.Deleted++
		}
		c.index.Remove(id)
	}

	if err := c.index.Save(); err != nil {
		return res, fmt.Errorf("save calendar index: %w", err)
	}
	if err := c.colors.Save(); err != nil {
		c.logger.WithError(err).Warn("failed to save calendar colors")
	}
	return res, nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
)

// syncTask creates the task's event or patches it when it drifted.
func (c *Client) syncTask(ctx context.Context, task model.Task) (outcome, error) {
	event, err := ConvertTaskToEvent(task, c.colors.ColorID(task.Category))
	if err != nil {
		return outcomeUnchanged, err
	}

	var existing *calendar.Event
	if eventID := c.index.Get(task.ID); eventID != "" {
		existing, err = c.srv.Events.Get(c.calendarID, eventID).Context(ctx).Do()
		if err != nil || existing.Status == "cancelled" {
			existing = nil
		}
	}
	if existing == nil {
		existing, err = c.GetEventByTaskID(ctx, task.ID)
		if err != nil {
			return outcomeUnchanged, fmt.Errorf("error searching for event: %w", err)
		}
	}

	if existing != nil {
		patch := EventNeedsUpdate(existing, event)
		if patch == nil {
			c.index.Set(task.ID, existing.Id)
			return outcomeUnchanged, nil
		}
		updated, err := c.srv.Events.Patch(c.calendarID, existing.Id, patch).Context(ctx).Do()
		if err != nil {
			return outcomeUnchanged, err
		}
		c.index.Set(task.ID, updated.Id)
		return outcomeUpdated, nil
	}

	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return outcomeUnchanged, err
	}
	c.index.Set(task.ID, created.Id)
	return outcomeCreated, nil
}

// DeleteEvent deletes an event from the calendar.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	return c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
}

// GetEventByTaskID searches for an event carrying the task ID property.
func (c *Client) GetEventByTaskID(ctx context.Context, taskID string) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", taskIDProperty, taskID)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}
