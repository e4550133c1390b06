package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/harrisonrobin/jotask/pkg/calendar"
	"github.com/harrisonrobin/jotask/pkg/model"
	"github.com/harrisonrobin/jotask/pkg/pipeline"
	"github.com/harrisonrobin/jotask/pkg/ui"
	"github.com/harrisonrobin/jotask/pkg/views"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (use text, json or yaml)", format)
}

// writeStructured encodes v as JSON or YAML. It reports false for text output.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	}
	return false, nil
}

func statusIcon(s model.Status) string {
	switch s {
	case model.StatusDone:
		return ui.Good.Render(ui.IconDone)
	case model.StatusInProgress:
		return ui.Warn.Render(ui.IconDoing)
	}
	return ui.Muted.Render(ui.IconTodo)
}

func renderTasks(w io.Writer, format string, tasks model.TaskSet) error {
	if ok, err := writeStructured(w, format, tasks); ok {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(w, ui.Muted.Render("No tasks. Run `jotask sync` with a journal to extract some."))
		return nil
	}
	for _, t := range tasks {
		line := fmt.Sprintf("%s %s", statusIcon(t.Status), t.Title)
		if t.IsUrgent && t.Status != model.StatusDone {
			line += " " + ui.Bad.Render(ui.IconUrgent)
		}
		if t.Category != "" {
			line += " " + ui.Tag.Render("#"+t.Category)
		}
		if t.HasDeadline() {
			line += " " + ui.Muted.Render("due "+*t.DueDate)
		}
		fmt.Fprintln(w, line)
		if t.Description != "" {
			fmt.Fprintf(w, "    %s\n", ui.Muted.Render(t.Description))
		}
		if len(t.Dependencies) > 0 {
			fmt.Fprintf(w, "    %s\n", ui.Muted.Render("after "+strings.Join(t.Dependencies, ", ")))
		}
	}
	return nil
}

type statsReport struct {
	views.Stats `yaml:",inline"`
	Chart       []views.ChartSlice `json:"chart" yaml:"chart"`
}

func renderStats(w io.Writer, format string, s views.Stats) error {
	report := statsReport{Stats: s, Chart: views.ChartData(s)}
	if ok, err := writeStructured(w, format, report); ok {
		return err
	}
	var b strings.Builder
	b.WriteString(ui.H2.Render("Progress") + "\n")
	b.WriteString(fmt.Sprintf("%s %d%%\n", ui.ProgressBar(s.CompletionRatio, 24), s.CompletionPercent()))
	b.WriteString(ui.KV("Total", s.Total) + "\n")
	b.WriteString(ui.KV("Completed", s.Completed) + "\n")
	b.WriteString(ui.KV("Pending", s.Pending) + "\n")
	b.WriteString(ui.KV("Urgent", s.Urgent))
	fmt.Fprintln(w, ui.Box.Render(b.String()))
	return nil
}

func renderEdges(w io.Writer, format string, edges []views.Edge) error {
	if ok, err := writeStructured(w, format, edges); ok {
		return err
	}
	if len(edges) == 0 {
		fmt.Fprintln(w, ui.Muted.Render("No dependencies."))
		return nil
	}
	for _, e := range edges {
		pred := e.PredecessorLabel
		if e.Dangling {
			pred = ui.Warn.Render(pred + " (missing)")
		}
		fmt.Fprintf(w, "%s %s %s\n", pred, ui.Muted.Render(ui.IconArrow), e.DependentLabel)
	}
	return nil
}

func renderSyncResult(w io.Writer, state pipeline.State, tasks model.TaskSet) {
	s := views.ComputeStats(tasks)
	fmt.Fprintf(w, "%s Synced %d tasks at %s (%d%% complete, %d urgent)\n",
		ui.Good.Render(ui.IconSparkle), s.Total, state.At.Format("15:04:05"), s.CompletionPercent(), s.Urgent)
}

func renderPushResult(w io.Writer, res calendar.PushResult) {
	fmt.Fprintf(w, "%s Calendar updated: %d created, %d updated, %d unchanged, %d deleted, %d without a deadline\n",
		ui.Good.Render(ui.IconDone), res.Created, res.Updated, res.Unchanged, res.Deleted, res.Skipped)
}

// renderError prints a classified failure with its category tag and hint.
// Other errors are printed as-is.
func renderError(w io.Writer, err error) {
	var ce *pipeline.ClassifiedError
	if errors.As(err, &ce) {
		fmt.Fprintf(w, "%s %s %s\n", ui.Bad.Render(ui.IconError+" Error"),
			ui.Tag.Render("["+ce.Classification.Category.String()+"]"), ce.Classification.Message)
		fmt.Fprintf(w, "  %s\n", ui.Muted.Render(ce.Classification.Hint))
		return
	}
	fmt.Fprintf(w, "%s %v\n", ui.Bad.Render(ui.IconError), err)
}

func renderConfig(w io.Writer, format string, c configView) error {
	if ok, err := writeStructured(w, format, c); ok {
		return err
	}
	clientID := ui.Muted.Render("(not set)")
	if c.ClientID != "" {
		clientID = fmt.Sprintf("%s %s", c.ClientID, ui.Muted.Render("("+c.ClientIDSource+")"))
	}
	apiKey := ui.Bad.Render("missing")
	if c.APIKeySet {
		apiKey = ui.Good.Render("set")
	}
	fmt.Fprintln(w, ui.KV("Config", c.ConfigPath))
	fmt.Fprintln(w, ui.KV("Backend", c.Backend))
	fmt.Fprintln(w, ui.KV("Store", c.StorePath))
	fmt.Fprintln(w, ui.KV("Model", c.Model))
	fmt.Fprintln(w, ui.KV("Calendar", c.Calendar))
	fmt.Fprintln(w, ui.KV("Client ID", clientID))
	fmt.Fprintln(w, ui.KV("Gemini API key", apiKey))
	return nil
}
