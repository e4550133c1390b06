package calendar

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/harrisonrobin/jotask/pkg/kv"
)

const indexKey = "calendar_events"

// EventIndex maps task IDs to the calendar events created for them.
type EventIndex struct {
	Mappings map[string]string
	store    kv.Store
	mu       sync.RWMutex
	dirty    bool
}

func LoadEventIndex(store kv.Store) (*EventIndex, error) {
	idx := &EventIndex{Mappings: make(map[string]string), store: store}
	raw, ok, err := store.Get(indexKey)
	if err != nil {
		return nil, err
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &idx.Mappings); err != nil {
			return nil, fmt.Errorf("failed to decode calendar event index: %w", err)
		}
	}
	return idx, nil
}

func (idx *EventIndex) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return nil
	}
	b, err := json.Marshal(idx.Mappings)
	if err != nil {
		return err
	}
	if err := idx.store.Put(map[string]string{indexKey: string(b)}); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

func (idx *EventIndex) Get(taskID string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.Mappings[taskID]
}

func (idx *EventIndex) Set(taskID, eventID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.Mappings[taskID] != eventID {
		idx.Mappings[taskID] = eventID
		idx.dirty = true
	}
}

func (idx *EventIndex) Remove(taskID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.Mappings[taskID]; exists {
		delete(idx.Mappings, taskID)
		idx.dirty = true
	}
}

// TaskIDs returns the indexed task IDs in sorted order.
func (idx *EventIndex) TaskIDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := make([]string, 0, len(idx.Mappings))
	for id := range idx.Mappings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
