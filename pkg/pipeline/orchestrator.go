// Package pipeline drives a sync from raw journal text to a committed task
// set, and runs Drive imports that feed it.
//
// The task set held here is always either empty or the result of the most
// recent successful sync. A failed sync or import never touches it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/jotask/pkg/classify"
	"github.com/harrisonrobin/jotask/pkg/extract"
	"github.com/harrisonrobin/jotask/pkg/model"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyJournal   = errors.New("journal text is empty")
	ErrSyncInProgress = errors.New("a sync is already in progress")
)

// Kind is the sync state discriminator.
type Kind int

const (
	Idle Kind = iota
	Syncing
	Succeeded
	Failed
)

func (k Kind) String() string {
	switch k {
	case Syncing:
		return "syncing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "idle"
}

// State is the current sync state. At is set for Succeeded, Error for Failed.
type State struct {
	Kind  Kind
	At    time.Time
	Error *classify.Classification
}

// ClassifiedError is returned for a failed sync or import.
type ClassifiedError struct {
	Classification classify.Classification
	Err            error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Classification.Category, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Store is the durable side of the task set.
type Store interface {
	Load() (model.TaskSet, string)
	Save(tasks model.TaskSet, journal string) error
	Clear() error
}

// Importer fetches journal text from an external source. ok is false when
// the user cancelled.
type Importer interface {
	Import(ctx context.Context) (content string, ok bool, err error)
}

// Orchestrator owns the sync state machine and the committed task set.
type Orchestrator struct {
	mu          sync.Mutex
	state       State
	tasks       model.TaskSet
	journal     string
	lastSuccess time.Time
	onChange    []func(model.TaskSet)

	extractor extract.Extractor
	store     Store
	logger    *logrus.Logger
	now       func() time.Time
}

// New loads the persisted task set and starts Idle.
func New(st Store, ex extract.Extractor, logger *logrus.Logger) *Orchestrator {
	tasks, journal := st.Load()
	return &Orchestrator{
		tasks:     tasks.Clone(),
		journal:   journal,
		extractor: ex,
		store:     st,
		logger:    logger,
		now:       time.Now,
	}
}

// OnChange registers fn to run after every commit or reset with a copy of
// the new task set.
func (o *Orchestrator) OnChange(fn func(model.TaskSet)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onChange = append(o.onChange, fn)
}

// State returns the current sync state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Tasks returns a copy of the committed task set.
func (o *Orchestrator) Tasks() model.TaskSet {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tasks.Clone()
}

// Journal returns the journal text of the committed task set.
func (o *Orchestrator) Journal() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.journal
}

// Sync extracts tasks from text and commits them wholesale. Blank text and
// a sync already in flight are rejected without changing anything. Starting
// a sync clears any previous error.
func (o *Orchestrator) Sync(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyJournal
	}

	o.mu.Lock()
	if o.state.Kind == Syncing {
		o.mu.Unlock()
		return ErrSyncInProgress
	}
	o.state = State{Kind: Syncing}
	o.mu.Unlock()

	log := o.logger.WithField("sync_id", uuid.NewString())
	log.WithField("chars", len(text)).Info("sync started")

	tasks, err := o.extractor.Extract(ctx, text)
	if err == nil {
		if tasks == nil {
			tasks = model.TaskSet{}
		}
		if serr := o.store.Save(tasks, text); serr != nil {
			err = serr
		}
	}

	if err != nil {
		c := o.fail(err)
		log.WithError(err).WithField("category", c.Category.String()).Warn("sync failed")
		return &ClassifiedError{Classification: c, Err: err}
	}

	o.mu.Lock()
	o.tasks = tasks.Clone()
	o.journal = text
	o.lastSuccess = o.now()
	o.state = State{Kind: Succeeded, At: o.lastSuccess}
	hooks := append([]func(model.TaskSet){}, o.onChange...)
	o.mu.Unlock()

	log.WithField("tasks", len(tasks)).Info("sync succeeded")
	o.notify(hooks, tasks)
	return nil
}

// Import runs im and returns the imported text for a follow-up Sync. A user
// cancel or denied consent returns ok=false with no error and no error state.
// Other failures set Failed and leave the task set alone.
func (o *Orchestrator) Import(ctx context.Context, im Importer) (string, bool, error) {
	o.mu.Lock()
	if o.state.Kind == Syncing {
		o.mu.Unlock()
		return "", false, ErrSyncInProgress
	}
	o.mu.Unlock()

	content, ok, err := im.Import(ctx)
	if err != nil {
		c := classify.Classify(err)
		if !c.Surfaced() {
			o.logger.WithField("reason", c.Message).Info("import cancelled")
			return "", false, nil
		}
		o.mu.Lock()
		// A sync started meanwhile owns the state.
		if o.state.Kind != Syncing {
			o.state = State{Kind: Failed, Error: &c}
		}
		o.mu.Unlock()
		o.logger.WithError(err).WithField("category", c.Category.String()).Warn("import failed")
		return "", false, &ClassifiedError{Classification: c, Err: err}
	}
	if !ok {
		return "", false, nil
	}
	o.logger.WithField("chars", len(content)).Info("import succeeded")
	return content, true, nil
}

// DismissError clears a failure without re-syncing.
func (o *Orchestrator) DismissError() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Kind != Failed {
		return
	}
	o.state = o.settledState()
}

// Reset clears the committed task set, the journal and any error.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.state.Kind == Syncing {
		o.mu.Unlock()
		return ErrSyncInProgress
	}
	if err := o.store.Clear(); err != nil {
		o.mu.Unlock()
		return err
	}
	o.tasks = model.TaskSet{}
	o.journal = ""
	o.lastSuccess = time.Time{}
	o.state = State{Kind: Idle}
	hooks := append([]func(model.TaskSet){}, o.onChange...)
	o.mu.Unlock()

	o.logger.Info("workspace reset")
	o.notify(hooks, model.TaskSet{})
	return nil
}

func (o *Orchestrator) fail(err error) classify.Classification {
	c := classify.Classify(err)
	o.mu.Lock()
	o.state = State{Kind: Failed, Error: &c}
	o.mu.Unlock()
	return c
}

// settledState is where a dismissed failure returns to. Callers hold mu.
func (o *Orchestrator) settledState() State {
	if o.lastSuccess.IsZero() {
		return State{Kind: Idle}
	}
	return State{Kind: Succeeded, At: o.lastSuccess}
}

func (o *Orchestrator) notify(hooks []func(model.TaskSet), tasks model.TaskSet) {
	for _, fn := range hooks {
		fn(tasks.Clone())
	}
}
