package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps every key in a single JSON object file.
type FileStore struct {
	Path string
	// Recovered is set when an undecodable state file was moved aside on open.
	Recovered string
	values    map[string]string
	mu        sync.RWMutex
}

func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		Path:   path,
		values: make(map[string]string),
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			aside := path + ".corrupt"
			if rerr := os.Rename(path, aside); rerr != nil {
				return nil, err
			}
			s.values = make(map[string]string)
			s.Recovered = aside
		}
	}
	return s, nil
}

func (s *FileStore) load() error {
	f, err := os.Open(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&s.values); err != nil {
		return fmt.Errorf("failed to decode state file %s: %w", s.Path, err)
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	return nil
}

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *FileStore) Put(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(s.values)+len(values))
	for k, v := range s.values {
		next[k] = v
	}
	for k, v := range values {
		next[k] = v
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func (s *FileStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(s.values))
	for k, v := range s.values {
		next[k] = v
	}
	changed := false
	for _, k := range keys {
		if _, exists := next[k]; exists {
			delete(next, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func (s *FileStore) Close() error { return nil }

// write replaces the file through a rename so readers never see a half-written object.
func (s *FileStore) write(values map[string]string) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(values); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}
