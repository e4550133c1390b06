package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/harrisonrobin/jotask/pkg/auth"
	"github.com/harrisonrobin/jotask/pkg/calendar"
	"github.com/harrisonrobin/jotask/pkg/classify"
	"github.com/harrisonrobin/jotask/pkg/config"
	"github.com/harrisonrobin/jotask/pkg/drive"
	"github.com/harrisonrobin/jotask/pkg/extract"
	"github.com/harrisonrobin/jotask/pkg/model"
	"github.com/harrisonrobin/jotask/pkg/pipeline"
	"github.com/harrisonrobin/jotask/pkg/ui"
	"github.com/harrisonrobin/jotask/pkg/views"
	"github.com/spf13/cobra"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		renderError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "jotask",
		Short:         "Turn a free-form journal into a structured task list",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateOutput(opts.output)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.json (default ~/.config/jotask/config.json)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (default $JOTASK_LOG_LEVEL or warn)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", outputText, "output format: text, json or yaml")

	root.AddCommand(
		newSyncCmd(opts),
		newImportCmd(opts),
		newListCmd(opts),
		newStatsCmd(opts),
		newDepsCmd(opts),
		newResetCmd(opts),
		newConfigCmd(opts),
		newAuthCmd(opts),
		newCalendarCmd(opts),
	)
	return root
}

// readJournal picks the journal text: --text, then a file argument ("-" for
// stdin). It returns "" when neither is given.
func readJournal(stdin io.Reader, args []string, text string) (string, error) {
	if text != "" {
		return text, nil
	}
	if len(args) == 0 {
		return "", nil
	}
	if args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading journal: %w", err)
	}
	return string(b), nil
}

// runSync extracts and commits journal, printing a summary on success.
func runSync(ctx context.Context, a *app, ex extract.Extractor, journal string, out io.Writer) error {
	orch := a.orchestrator(ex)
	orch.OnChange(func(tasks model.TaskSet) {
		if a.opts.output == outputText {
			renderSyncResult(out, orch.State(), tasks)
			return
		}
		if err := renderTasks(out, a.opts.output, tasks); err != nil {
			a.logger.WithError(err).Warn("could not render tasks")
		}
	})
	return orch.Sync(ctx, journal)
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "sync [file|-]",
		Short: "Extract tasks from a journal and replace the current task set",
		Long: `Extract tasks from a journal and replace the current task set.

The journal is read from --text, from the given file, or from stdin with "-".
Without any of these the last synced journal is extracted again.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*opts)
			if err != nil {
				return err
			}
			defer a.Close()

			journal, err := readJournal(cmd.InOrStdin(), args, text)
			if err != nil {
				return err
			}
			if journal == "" {
				_, journal = a.store.Load()
			}
			if strings.TrimSpace(journal) == "" {
				return pipeline.ErrEmptyJournal
			}

			ex, err := a.extractor(cmd.Context())
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), a, ex, journal, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "journal text to extract from")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var (
		clientID string
		noSync   bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Pick a journal from Google Drive and sync it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*opts)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			var ex extract.Extractor
			if !noSync {
				if ex, err = a.extractor(ctx); err != nil {
					return err
				}
			}

			client, source := a.clientConfig(clientID)
			a.logger.WithField("source", source).Debug("resolved Google client id")
			flow := a.tokenFlow(client, drive.Scopes, auth.DriveTokenFile)
			im := drive.NewImporter(drive.Config{ClientID: client.ClientID}, flow, &drive.TerminalPicker{}, a.logger)

			orch := a.orchestrator(ex)
			content, ok, err := orch.Import(ctx, im)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.Muted.Render("Nothing imported."))
				return nil
			}
			if noSync {
				fmt.Fprint(cmd.OutOrStdout(), content)
				return nil
			}
			return runSync(ctx, a, ex, content, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", "", "Google OAuth client ID (overrides the stored value)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "print the imported text instead of syncing it")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		filter  string
		overdue bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the current tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := views.ParseFilter(filter)
			if err != nil {
				return err
			}
			a, err := newApp(*opts)
			if err != nil {
				return err
			}
			defer a.Close()

			tasks, _ := a.store.Load()
			tasks = views.FilterByStatus(tasks, f)
			if overdue {
				tasks = views.Overdue(tasks, time.Now())
			}
			return renderTasks(cmd.OutOrStdout(), opts.output, tasks)
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", string(views.FilterAll), "show all, todo or done tasks")
	cmd.Flags().BoolVar(&overdue, "overdue", false, "only show tasks past their deadline")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show completion statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*opts)
			if err != nil {
				return err
			}
			defer a.Close()

			tasks, _ := a.store.Load()
			return renderStats(cmd.OutOrStdout(), opts.output, views.ComputeStats(tasks))
		},
	}
}

func newDepsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Show task dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*opts)
			if err != nil {
				return err
			}
			defer a.Close()

			tasks, _ := a.store.Load()
			return renderEdges(cmd.OutOrStdout(), opts.output, views.DependencyEdges(tasks))
		},
	}
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear all tasks and the stored journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Clear all tasks and the stored journal?") {
				return nil
			}
			a, err := newApp(*opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.orchestrator(nil).Reset(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render(ui.IconDone)+" Workspace cleared.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change jotask settings",
	}

	setClientID := &cobra.Command{
		Use:   "set-client-id [id]",
		Short: "Store the Google OAuth client ID (no argument clears it)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			}
			if id != "" {
				if err := drive.ValidateClientID(id); err != nil {
					return err
				}
			}
			a, err := newApp(*opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.SetClientID(id); err != nil {
				return err
			}
			if id == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Client ID cleared.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render(ui.IconDone)+" Client ID saved.")
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Set a config file value",
		Args:      cobra.ExactArgs(2),
		ValidArgs: configKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(*opts)
			if err != nil {
				return err
			}
			cfg, err := config.LoadRaw(path)
			if err != nil {
				return err
			}
			if err := setConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := config.SaveTo(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s updated.\n", ui.Good.Render(ui.IconDone), args[0])
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*opts)
			if err != nil {
				return err
			}
			defer a.Close()

			return renderConfig(cmd.OutOrStdout(), opts.output, effectiveConfig(a))
		},
	}

	cmd.AddCommand(setClientID, set, show)
	return cmd
}

var configKeys = []string{"backend", "store_path", "model", "calendar", "client_secret"}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "backend":
		cfg.Backend = value
	case "store_path":
		cfg.StorePath = value
	case "model":
		cfg.Model = value
	case "calendar":
		cfg.Calendar = value
	case "client_secret":
		cfg.ClientSecret = value
	default:
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(configKeys, ", "))
	}
	return nil
}

type configView struct {
	ConfigPath     string `json:"configPath" yaml:"configPath"`
	Backend        string `json:"backend" yaml:"backend"`
	StorePath      string `json:"storePath" yaml:"storePath"`
	Model          string `json:"model" yaml:"model"`
	Calendar       string `json:"calendar" yaml:"calendar"`
	ClientID       string `json:"clientId" yaml:"clientId"`
	ClientIDSource string `json:"clientIdSource" yaml:"clientIdSource"`
	APIKeySet      bool   `json:"apiKeySet" yaml:"apiKeySet"`
}

func effectiveConfig(a *app) configView {
	id, source := config.ResolveClientID("", a.store.ClientID(), a.env.ClientID)
	modelName := config.ResolveModel(a.cfg, a.env)
	if modelName == "" {
		modelName = extract.DefaultModel
	}
	return configView{
		ConfigPath:     a.cfgPath,
		Backend:        a.cfg.Backend,
		StorePath:      a.cfg.StorePath,
		Model:          modelName,
		Calendar:       a.cfg.Calendar,
		ClientID:       id,
		ClientIDSource: source,
		APIKeySet:      a.env.GeminiAPIKey != "",
	}
}

func newAuthCmd(opts *rootOptions) *cobra.Command {
	var (
		clientID    string
		forCalendar bool
	)
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in to Google again, replacing the cached token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*opts)
			if err != nil {
				return err
			}
			defer a.Close()

			client, _ := a.clientConfig(clientID)
			if err := drive.ValidateClientID(client.ClientID); err != nil {
				return err
			}
			scopes, tokenFile := drive.Scopes, auth.DriveTokenFile
			if forCalendar {
				scopes, tokenFile = calendar.Scopes, auth.CalendarTokenFile
			}
			flow := a.tokenFlow(client, scopes, tokenFile)
			if err := flow.RemoveToken(); err != nil {
				return err
			}
			if _, err := flow.RequestAccessToken(cmd.Context()); err != nil {
				return classified(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render(ui.IconDone)+" Signed in.")
			return nil
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", "", "Google OAuth client ID (overrides the stored value)")
	cmd.Flags().BoolVar(&forCalendar, "calendar", false, "authorize calendar access instead of Drive")
	return cmd
}

func newCalendarCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Mirror task deadlines into Google Calendar",
	}

	var (
		clientID string
		name     string
	)
	push := &cobra.Command{
		Use:   "push",
		Short: "Create, update and delete calendar events to match task deadlines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*opts)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			client, _ := a.clientConfig(clientID)
			if err := drive.ValidateClientID(client.ClientID); err != nil {
				return err
			}
			if name == "" {
				name = a.cfg.Calendar
			}

			res, err := pushCalendar(ctx, a, client, name)
			if err != nil {
				return classified(err)
			}
			renderPushResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	push.Flags().StringVar(&clientID, "client-id", "", "Google OAuth client ID (overrides the stored value)")
	push.Flags().StringVar(&name, "calendar", "", "calendar name (default from config)")

	cmd.AddCommand(push)
	return cmd
}

func pushCalendar(ctx context.Context, a *app, client auth.ClientConfig, name string) (calendar.PushResult, error) {
	httpClient, err := a.tokenFlow(client, calendar.Scopes, auth.CalendarTokenFile).Client(ctx)
	if err != nil {
		return calendar.PushResult{}, err
	}
	srv, err := calendar.NewService(ctx, httpClient)
	if err != nil {
		return calendar.PushResult{}, err
	}
	calendarID, err := calendar.FindCalendarID(ctx, srv, name)
	if err != nil {
		return calendar.PushResult{}, err
	}
	idx, err := calendar.LoadEventIndex(a.kv)
	if err != nil {
		return calendar.PushResult{}, err
	}
	colors, err := calendar.LoadColorCache(a.kv)
	if err != nil {
		return calendar.PushResult{}, err
	}

	tasks, _ := a.store.Load()
	return calendar.NewClient(srv, calendarID, idx, colors, a.logger).Push(ctx, tasks)
}

// classified attaches a category and hint to a Google failure.
func classified(err error) error {
	return &pipeline.ClassifiedError{Classification: classify.Classify(err), Err: err}
}
