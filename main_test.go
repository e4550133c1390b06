package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harrisonrobin/jotask/pkg/classify"
	"github.com/harrisonrobin/jotask/pkg/config"
	"github.com/harrisonrobin/jotask/pkg/kv"
	"github.com/harrisonrobin/jotask/pkg/model"
	"github.com/harrisonrobin/jotask/pkg/pipeline"
	"github.com/harrisonrobin/jotask/pkg/store"
	"github.com/harrisonrobin/jotask/pkg/views"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

func sampleTasks() model.TaskSet {
	return model.TaskSet{
		{ID: "t1", Title: "Book venue", Category: "Event", Status: model.StatusDone, Dependencies: []string{}},
		{ID: "t2", Title: "Send invites", Status: model.StatusTodo, IsUrgent: true, DueDate: model.StringPtr("2026-11-02"), Dependencies: []string{"t1"}},
		{ID: "t3", Title: "Order cake", Status: model.StatusInProgress, Dependencies: []string{"t9"}},
	}
}

// seedWorkspace writes a config pointing at a file store in a temp dir and
// commits tasks to it. It returns the config path.
func seedWorkspace(t *testing.T, tasks model.TaskSet) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	storePath := filepath.Join(dir, "state.json")
	if err := config.SaveTo(cfgPath, &config.Config{Backend: kv.BackendFile, StorePath: storePath}); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	backend, err := kv.Open(kv.BackendFile, storePath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer backend.Close()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if err := store.New(backend, logger).Save(tasks, "journal"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return cfgPath
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestListJSON(t *testing.T) {
	cfgPath := seedWorkspace(t, sampleTasks())

	out, err := runRoot(t, "--config", cfgPath, "list", "--filter", "todo", "-o", "json")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var got model.TaskSet
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, out)
	}
	if len(got) != 1 || got[0].ID != "t2" {
		t.Errorf("Expected only t2, got %+v", got)
	}
}

func TestStatsYAML(t *testing.T) {
	cfgPath := seedWorkspace(t, sampleTasks())

	out, err := runRoot(t, "--config", cfgPath, "stats", "-o", "yaml")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	var got struct {
		Total     int                `yaml:"total"`
		Completed int                `yaml:"completed"`
		Urgent    int                `yaml:"urgent"`
		Chart     []views.ChartSlice `yaml:"chart"`
	}
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("Output is not YAML: %v\n%s", err, out)
	}
	if got.Total != 3 || got.Completed != 1 || got.Urgent != 1 || len(got.Chart) != 2 || got.Chart[1].Value != 2 {
		t.Errorf("Unexpected stats %+v", got)
	}
}

func TestDepsText(t *testing.T) {
	cfgPath := seedWorkspace(t, sampleTasks())

	out, err := runRoot(t, "--config", cfgPath, "deps")
	if err != nil {
		t.Fatalf("deps failed: %v", err)
	}
	if !strings.Contains(out, "Book venue") || !strings.Contains(out, "Send invites") {
		t.Errorf("Expected the t1 -> t2 edge, got %q", out)
	}
	if !strings.Contains(out, "t9 (missing)") {
		t.Errorf("Expected the dangling edge to be flagged, got %q", out)
	}
}

func TestResetClearsTasks(t *testing.T) {
	cfgPath := seedWorkspace(t, sampleTasks())

	if _, err := runRoot(t, "--config", cfgPath, "reset", "--yes"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	out, err := runRoot(t, "--config", cfgPath, "list", "-o", "json")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("Expected an empty list after reset, got %q", out)
	}
}

func TestResetDeclined(t *testing.T) {
	cfgPath := seedWorkspace(t, sampleTasks())

	if _, err := runRoot(t, "--config", cfgPath, "reset"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	out, _ := runRoot(t, "--config", cfgPath, "list", "-o", "json")
	var got model.TaskSet
	if err := json.Unmarshal([]byte(out), &got); err != nil || len(got) != 3 {
		t.Errorf("Expected tasks to survive a declined reset, got %q", out)
	}
}

func TestSyncRejectsEmptyJournal(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")

	_, err := runRoot(t, "--config", cfgPath, "sync", "--text", "   ")
	if !errors.Is(err, pipeline.ErrEmptyJournal) {
		t.Errorf("Expected ErrEmptyJournal, got %v", err)
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	cfgPath := seedWorkspace(t, sampleTasks())
	if _, err := runRoot(t, "--config", cfgPath, "list", "-o", "xml"); err == nil {
		t.Error("Expected an error for an unknown output format")
	}
}

func TestConfigSetAndShow(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")

	if _, err := runRoot(t, "--config", cfgPath, "config", "set", "calendar", "Work"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if _, err := runRoot(t, "--config", cfgPath, "config", "set", "colour", "x"); err == nil {
		t.Error("Expected an unknown key to be rejected")
	}
	raw, err := config.LoadRaw(cfgPath)
	if err != nil {
		t.Fatalf("LoadRaw failed: %v", err)
	}
	if raw.Calendar != "Work" || raw.StorePath != "" {
		t.Errorf("Expected only calendar to be written, got %+v", raw)
	}

	out, err := runRoot(t, "--config", cfgPath, "config", "show", "-o", "json")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	var got configView
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, out)
	}
	if got.Calendar != "Work" || got.Backend != kv.BackendFile {
		t.Errorf("Unexpected config view %+v", got)
	}
}

func TestConfigSetClientID(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "")
	cfgPath := filepath.Join(t.TempDir(), "config.json")

	_, err := runRoot(t, "--config", cfgPath, "config", "set-client-id", "not-an-id")
	if got := classify.Classify(err).Category; got != classify.AuthConfigError {
		t.Errorf("Expected auth_config for a malformed id, got %s", got)
	}

	id := "42-xyz.apps.googleusercontent.com"
	if _, err := runRoot(t, "--config", cfgPath, "config", "set-client-id", id); err != nil {
		t.Fatalf("set-client-id failed: %v", err)
	}
	out, _ := runRoot(t, "--config", cfgPath, "config", "show", "-o", "json")
	var got configView
	json.Unmarshal([]byte(out), &got)
	if got.ClientID != id || got.ClientIDSource != "stored" {
		t.Errorf("Expected stored client id, got %+v", got)
	}
}

func TestReadJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.md")
	if err := os.WriteFile(path, []byte("from file"), 0o600); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		args []string
		text string
		want string
	}{
		{"flag wins", []string{path}, "from flag", "from flag"},
		{"file", []string{path}, "", "from file"},
		{"stdin", []string{"-"}, "", "from stdin"},
		{"nothing", nil, "", ""},
	}
	for _, c := range cases {
		got, err := readJournal(strings.NewReader("from stdin"), c.args, c.text)
		if err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
			continue
		}
		if got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}

func TestRenderErrorShowsHint(t *testing.T) {
	var buf bytes.Buffer
	err := &pipeline.ClassifiedError{
		Classification: classify.ClassifyMessage("API_KEY_SERVICE_BLOCKED"),
		Err:            errors.New("API_KEY_SERVICE_BLOCKED"),
	}
	renderError(&buf, err)
	out := buf.String()
	if !strings.Contains(out, "[service_blocked]") || !strings.Contains(out, classify.ServiceBlocked.Hint()) {
		t.Errorf("Expected category tag and hint, got %q", out)
	}
}

type scriptedExtractor struct {
	tasks model.TaskSet
	err   error
	calls int
}

func (s *scriptedExtractor) Extract(context.Context, string) (model.TaskSet, error) {
	s.calls++
	return s.tasks, s.err
}

func TestRunSyncCommitsAndRenders(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	journal := "~~Book venue~~\nSend invites by 2026-11-02 [URGENT]"

	a, err := newApp(rootOptions{configPath: cfgPath, output: outputText})
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	var out bytes.Buffer
	ex := &scriptedExtractor{tasks: sampleTasks()}
	if err := runSync(context.Background(), a, ex, journal, &out); err != nil {
		t.Fatalf("runSync failed: %v", err)
	}
	a.Close()

	if ex.calls != 1 {
		t.Errorf("Expected one extraction, got %d", ex.calls)
	}
	if !strings.Contains(out.String(), "Synced 3 tasks") || !strings.Contains(out.String(), "33% complete") {
		t.Errorf("Unexpected summary %q", out.String())
	}

	a, err = newApp(rootOptions{configPath: cfgPath, output: outputText})
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()
	tasks, stored := a.store.Load()
	if stored != journal {
		t.Errorf("Expected the journal to be persisted, got %q", stored)
	}
	if len(tasks) != 3 || tasks[1].ID != "t2" || !tasks[1].IsUrgent {
		t.Errorf("Unexpected persisted tasks %+v", tasks)
	}
}

func TestRunSyncJSONOutput(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	a, err := newApp(rootOptions{configPath: cfgPath, output: outputJSON})
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	var out bytes.Buffer
	if err := runSync(context.Background(), a, &scriptedExtractor{tasks: sampleTasks()}, "journal", &out); err != nil {
		t.Fatalf("runSync failed: %v", err)
	}
	var got model.TaskSet
	if err := json.Unmarshal(out.Bytes(), &got); err != nil || len(got) != 3 {
		t.Errorf("Expected the committed tasks as JSON, got %q (%v)", out.String(), err)
	}
}

func TestRunSyncFailureKeepsWorkspace(t *testing.T) {
	cfgPath := seedWorkspace(t, sampleTasks())
	a, err := newApp(rootOptions{configPath: cfgPath, output: outputText})
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	var out bytes.Buffer
	ex := &scriptedExtractor{err: errors.New("Requests to this API are blocked.")}
	err = runSync(context.Background(), a, ex, "new journal", &out)
	var ce *pipeline.ClassifiedError
	if !errors.As(err, &ce) || ce.Classification.Category != classify.ServiceBlocked {
		t.Fatalf("Expected a service_blocked failure, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("Expected no summary on failure, got %q", out.String())
	}
	tasks, journal := a.store.Load()
	if len(tasks) != 3 || journal != "journal" {
		t.Errorf("Failed sync changed the workspace: %d tasks, journal %q", len(tasks), journal)
	}
}
