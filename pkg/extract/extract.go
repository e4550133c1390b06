package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harrisonrobin/jotask/pkg/model"
)

// ErrInvalidResponse marks an extraction result that does not match the task schema.
var ErrInvalidResponse = errors.New("invalid extraction response")

// Extractor turns journal text into a task set.
type Extractor interface {
	Extract(ctx context.Context, journal string) (model.TaskSet, error)
}

// wireTask mirrors the response schema with pointers so absent required
// fields can be told apart from zero values.
type wireTask struct {
	ID           *string   `json:"id"`
	Title        *string   `json:"title"`
	Description  *string   `json:"description"`
	DueDate      *string   `json:"dueDate"`
	Category     *string   `json:"category"`
	Status       *string   `json:"status"`
	IsUrgent     *bool     `json:"isUrgent"`
	Dependencies *[]string `json:"dependencies"`
	CreatedAt    *string   `json:"createdAt"`
}

type wireResult struct {
	Tasks []wireTask `json:"tasks"`
}

// DecodeResult parses and validates a raw extraction response. An empty
// response is an empty task set.
func DecodeResult(text string) (model.TaskSet, error) {
	text = stripFences(text)
	if text == "" {
		return model.TaskSet{}, nil
	}

	var result wireResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	tasks := make(model.TaskSet, 0, len(result.Tasks))
	seen := make(map[string]bool, len(result.Tasks))
	for i, w := range result.Tasks {
		task, err := w.toTask()
		if err != nil {
			return nil, fmt.Errorf("%w: task %d: %v", ErrInvalidResponse, i, err)
		}
		if seen[task.ID] {
			return nil, fmt.Errorf("%w: duplicate task id %q", ErrInvalidResponse, task.ID)
		}
		seen[task.ID] = true
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (w wireTask) toTask() (model.Task, error) {
	var missing []string
	if w.ID == nil || strings.TrimSpace(*w.ID) == "" {
		missing = append(missing, "id")
	}
	if w.Title == nil {
		missing = append(missing, "title")
	}
	if w.Description == nil {
		missing = append(missing, "description")
	}
	if w.Category == nil {
		missing = append(missing, "category")
	}
	if w.Status == nil {
		missing = append(missing, "status")
	}
	if w.IsUrgent == nil {
		missing = append(missing, "isUrgent")
	}
	if w.Dependencies == nil {
		missing = append(missing, "dependencies")
	}
	if w.CreatedAt == nil {
		missing = append(missing, "createdAt")
	}
	if len(missing) > 0 {
		return model.Task{}, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	status, err := model.ParseStatus(*w.Status)
	if err != nil {
		return model.Task{}, err
	}

	task := model.Task{
		ID:           strings.TrimSpace(*w.ID),
		Title:        *w.Title,
		Description:  *w.Description,
		Category:     *w.Category,
		Status:       status,
		IsUrgent:     *w.IsUrgent,
		Dependencies: append([]string{}, (*w.Dependencies)...),
		CreatedAt:    *w.CreatedAt,
	}
	if w.DueDate != nil && strings.TrimSpace(*w.DueDate) != "" && !strings.EqualFold(*w.DueDate, "null") {
		task.DueDate = model.StringPtr(strings.TrimSpace(*w.DueDate))
	}
	return task, nil
}

// stripFences removes a Markdown code block wrapper if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
