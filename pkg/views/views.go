// Package views derives filtered lists, statistics and dependency edges from
// a task set. Everything here is pure.
package views

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/harrisonrobin/jotask/pkg/model"
)

// Filter selects tasks by status.
type Filter string

const (
	FilterAll  Filter = "all"
	FilterTodo Filter = "todo"
	FilterDone Filter = "done"
)

// ParseFilter validates user input.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FilterAll:
		return FilterAll, nil
	case FilterTodo, FilterDone:
		return f, nil
	}
	return "", fmt.Errorf("unknown filter %q (want all, todo or done)", s)
}

// FilterByStatus returns the stable-order subsequence of tasks matching f.
// Unknown filters behave as FilterAll.
func FilterByStatus(tasks model.TaskSet, f Filter) model.TaskSet {
	var want model.Status
	switch f {
	case FilterTodo:
		want = model.StatusTodo
	case FilterDone:
		want = model.StatusDone
	default:
		out := make(model.TaskSet, len(tasks))
		copy(out, tasks)
		return out
	}

	out := model.TaskSet{}
	for _, t := range tasks {
		if t.Status == want {
			out = append(out, t)
		}
	}
	return out
}

// Stats summarizes a task set.
type Stats struct {
	Total           int     `json:"total" yaml:"total"`
	Completed       int     `json:"completed" yaml:"completed"`
	Pending         int     `json:"pending" yaml:"pending"`
	Urgent          int     `json:"urgent" yaml:"urgent"`
	CompletionRatio float64 `json:"completionRatio" yaml:"completionRatio"`
}

// ComputeStats counts tasks. Urgent counts only tasks not yet done, and the
// completion ratio of an empty set is 0.
func ComputeStats(tasks model.TaskSet) Stats {
	s := Stats{Total: len(tasks)}
	for _, t := range tasks {
		if t.Status == model.StatusDone {
			s.Completed++
		} else if t.IsUrgent {
			s.Urgent++
		}
	}
	s.Pending = s.Total - s.Completed
	if s.Total > 0 {
		s.CompletionRatio = float64(s.Completed) / float64(s.Total)
	}
	return s
}

// CompletionPercent is the ratio as a whole percentage.
func (s Stats) CompletionPercent() int {
	return int(math.Round(s.CompletionRatio * 100))
}

// ChartSlice is one segment of the progress chart.
type ChartSlice struct {
	Name  string `json:"name" yaml:"name"`
	Value int    `json:"value" yaml:"value"`
}

// ChartData splits the stats into completed and pending segments.
func ChartData(s Stats) []ChartSlice {
	return []ChartSlice{
		{Name: "Completed", Value: s.Completed},
		{Name: "Pending", Value: s.Pending},
	}
}

// Edge is a dependency predecessor -> dependent.
type Edge struct {
	PredecessorID    string `json:"predecessorId" yaml:"predecessorId"`
	PredecessorLabel string `json:"predecessorLabel" yaml:"predecessorLabel"`
	DependentID      string `json:"dependentId" yaml:"dependentId"`
	DependentLabel   string `json:"dependentLabel" yaml:"dependentLabel"`
	// Dangling is set when no task with PredecessorID exists in the set.
	Dangling bool `json:"dangling,omitempty" yaml:"dangling,omitempty"`
}

// DependencyEdges lists an edge for every dependency of every task, in task
// order. A predecessor missing from the set is labeled with its raw ID.
// Cycles are reported as-is.
func DependencyEdges(tasks model.TaskSet) []Edge {
	titles := make(map[string]string, len(tasks))
	for _, t := range tasks {
		if _, seen := titles[t.ID]; !seen {
			titles[t.ID] = t.Title
		}
	}

	edges := []Edge{}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			e := Edge{
				PredecessorID:    dep,
				PredecessorLabel: dep,
				DependentID:      t.ID,
				DependentLabel:   t.Title,
			}
			title, ok := titles[dep]
			if !ok {
				e.Dangling = true
			} else if title != "" {
				e.PredecessorLabel = title
			}
			edges = append(edges, e)
		}
	}
	return edges
}

// Overdue returns the tasks not yet done whose deadline has passed at now, in
// task order. A date-only deadline runs to the end of that day in now's
// location.
func Overdue(tasks model.TaskSet, now time.Time) model.TaskSet {
	out := model.TaskSet{}
	for _, t := range tasks {
		if t.Status == model.StatusDone {
			continue
		}
		due, ok := t.Due()
		if !ok {
			continue
		}
		if len(strings.TrimSpace(*t.DueDate)) == len("2006-01-02") {
			due = time.Date(due.Year(), due.Month(), due.Day()+1, 0, 0, 0, 0, now.Location())
		}
		if due.Before(now) {
			out = append(out, t)
		}
	}
	return out
}
