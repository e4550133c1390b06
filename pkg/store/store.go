// Package store persists the task set and the journal text it was extracted
// from. Both values are always written together.
package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harrisonrobin/jotask/pkg/kv"
	"github.com/harrisonrobin/jotask/pkg/model"
	"github.com/sirupsen/logrus"
)

const (
	KeyTasks          = "tasks"
	KeyJournalContent = "journal_content"
	KeyClientID       = "google_client_id"
)

// TaskStore is the durable home of the task set and journal content.
type TaskStore struct {
	kv     kv.Store
	logger *logrus.Logger
}

func New(backend kv.Store, logger *logrus.Logger) *TaskStore {
	return &TaskStore{kv: backend, logger: logger}
}

// Load reads the persisted pair. Missing, unreadable or corrupt values
// degrade to empty defaults; startup never fails here.
func (s *TaskStore) Load() (model.TaskSet, string) {
	tasks := model.TaskSet{}

	raw, ok, err := s.kv.Get(KeyTasks)
	if err != nil {
		s.logger.WithError(err).Warn("could not read stored tasks, starting empty")
	} else if ok && strings.TrimSpace(raw) != "" {
		var decoded model.TaskSet
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			s.logger.WithError(err).Warn("stored tasks are corrupt, starting empty")
		} else if decoded != nil {
			tasks = decoded
		}
	}

	journal, _, err := s.kv.Get(KeyJournalContent)
	if err != nil {
		s.logger.WithError(err).Warn("could not read stored journal content")
		journal = ""
	}
	return tasks, journal
}

// Save writes the task set and journal in a single batch.
func (s *TaskStore) Save(tasks model.TaskSet, journal string) error {
	if tasks == nil {
		tasks = model.TaskSet{}
	}
	b, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("failed to encode tasks: %w", err)
	}
	if err := s.kv.Put(map[string]string{
		KeyTasks:          string(b),
		KeyJournalContent: journal,
	}); err != nil {
		return fmt.Errorf("failed to save tasks: %w", err)
	}
	s.logger.WithField("tasks", len(tasks)).Debug("task set saved")
	return nil
}

// Clear removes the task set and journal. The stored client ID survives.
func (s *TaskStore) Clear() error {
	if err := s.kv.Delete(KeyTasks, KeyJournalContent); err != nil {
		return fmt.Errorf("failed to clear workspace: %w", err)
	}
	return nil
}

// ClientID returns the user-entered OAuth client ID, or "".
func (s *TaskStore) ClientID() string {
	v, _, err := s.kv.Get(KeyClientID)
	if err != nil {
		s.logger.WithError(err).Warn("could not read stored client id")
		return ""
	}
	return strings.TrimSpace(v)
}

// SetClientID stores the OAuth client ID. An empty id removes it.
func (s *TaskStore) SetClientID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return s.kv.Delete(KeyClientID)
	}
	return s.kv.Put(map[string]string{KeyClientID: id})
}
