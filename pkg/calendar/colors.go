package calendar

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/jotask/pkg/kv"
)

const (
	colorsKey = "calendar_colors"

	// Google Calendar event colors 1-11; 8 (graphite) is kept for uncategorized tasks.
	uncategorizedColor = "8"
)

type CategoryState struct {
	ColorID      string    `json:"color_id"`
	LastModified time.Time `json:"last_modified"`
}

// ColorCache assigns each task category a stable event color, recycling the
// least recently used color when all are taken.
type ColorCache struct {
	Categories map[string]*CategoryState
	store      kv.Store
	dirty      bool
	now        func() time.Time
}

func LoadColorCache(store kv.Store) (*ColorCache, error) {
	c := &ColorCache{
		Categories: make(map[string]*CategoryState),
		store:      store,
		now:        time.Now,
	}
	raw, ok, err := store.Get(colorsKey)
	if err != nil {
		return nil, err
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Categories); err != nil {
			return nil, fmt.Errorf("failed to decode calendar colors: %w", err)
		}
	}
	return c, nil
}

func (c *ColorCache) Save() error {
	if !c.dirty {
		return nil
	}
	b, err := json.Marshal(c.Categories)
	if err != nil {
		return err
	}
	if err := c.store.Put(map[string]string{colorsKey: string(b)}); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// ColorID returns the color for a category.
func (c *ColorCache) ColorID(category string) string {
	key := strings.ToLower(strings.TrimSpace(category))
	if key == "" {
		return uncategorizedColor
	}

	if state, exists := c.Categories[key]; exists {
		state.LastModified = c.now()
		c.dirty = true
		return state.ColorID
	}
	return c.assignColor(key)
}

func (c *ColorCache) assignColor(category string) string {
	used := make(map[string]bool)
	for _, s := range c.Categories {
		used[s.ColorID] = true
	}

	for i := 1; i <= 11; i++ {
		id := strconv.Itoa(i)
		if id == uncategorizedColor || used[id] {
			continue
		}
		c.Categories[category] = &CategoryState{ColorID: id, LastModified: c.now()}
		c.dirty = true
		return id
	}

	var oldest string
	var oldestTime time.Time
	first := true
	for name, s := range c.Categories {
		if first || s.LastModified.Before(oldestTime) {
			oldestTime = s.LastModified
			oldest = name
			first = false
		}
	}

	if oldest == "" {
		return "1"
	}
	recycled := c.Categories[oldest].ColorID
	delete(c.Categories, oldest)
	c.Categories[category] = &CategoryState{ColorID: recycled, LastModified: c.now()}
	c.dirty = true
	return recycled
}
