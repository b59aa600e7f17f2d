package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"plotline/internal/client/storyapi"
	"plotline/internal/config"
	storySvc "plotline/internal/domain/services/story"
	"plotline/internal/editor"
	"plotline/internal/journal"
	"plotline/internal/savequeue"
)

const (
	// closeGrace covers the flush and the journal writes around the last beacon
	closeGrace = 5 * time.Second
	// journalSaveTimeout bounds journaling the beacons left at exit
	journalSaveTimeout = 5 * time.Second
)

var (
	configPath string
	serverURL  string
	storyName  string
	branchName string
	modelName  string
	verbose    bool

	cfg    *config.ClientConfig
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "storyctl",
	Short: "Edit branching stories from the terminal",
	Long: `storyctl drives a plotline story: it loads a branch into a local draft,
applies edits optimistically, batches saves, and reconciles with the server.
Updates that cannot be delivered are journaled locally; replay them with 'storyctl sync'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		loaded, err := config.LoadClient(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		flags := cmd.Flags()
		if flags.Changed("server") {
			cfg.ServerURL = serverURL
		}
		if flags.Changed("story") {
			cfg.Story = storyName
		}
		if flags.Changed("branch") {
			cfg.Branch = branchName
		}
		if flags.Changed("model") {
			cfg.Model = modelName
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.DefaultClientConfigPath(), "client config file")
	flags.StringVar(&serverURL, "server", "", "story service URL")
	flags.StringVarP(&storyName, "story", "s", "", "story name")
	flags.StringVarP(&branchName, "branch", "b", "", "branch name")
	flags.StringVarP(&modelName, "model", "m", "", "generation model")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// workspace bundles what a command needs to talk to the service
type workspace struct {
	client  *storyapi.Client
	journal *journal.Journal
	session *editor.Session
}

func openWorkspace(ctx context.Context) (*workspace, error) {
	j, err := journal.Open(cfg.JournalPath, logger)
	if err != nil {
		return nil, err
	}

	client := storyapi.New(cfg.ServerURL, storyapi.Options{
		RequestTimeout:    cfg.RequestTimeout,
		GenerationTimeout: cfg.GenerationTimeout,
		Logger:            logger,
		OnBeaconFailure: func(id string, req *storySvc.UpdateRequest, err error) {
			saveErr := j.Save(context.Background(), beaconEntry(id, req), err)
			switch {
			case errors.Is(saveErr, journal.ErrClosed):
				// close journaled it while the beacon was still in flight
				logger.Warn("beacon failed after shutdown", "snippet_id", id, "error", err)
			case saveErr != nil:
				logger.Error("failed to journal beacon", "snippet_id", id, "error", saveErr)
			}
		},
	})

	session := editor.NewSession(client, editor.Options{
		Story:     cfg.Story,
		Branch:    cfg.Branch,
		Model:     cfg.Model,
		SaveDelay: cfg.SaveDelay,
		Fallback:  j,
		Logger:    logger,
		OnNotify: func(n editor.Notification) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Message)
		},
	})

	return &workspace{client: client, journal: j, session: session}, nil
}

// open loads the branch into the session draft
func (w *workspace) open(ctx context.Context) error {
	return w.session.Open(ctx)
}

// errBeaconUnconfirmed marks updates journaled while their beacon was in flight
var errBeaconUnconfirmed = errors.New("beacon still in flight at exit")

// close flushes pending edits on the keepalive path and closes the journal.
// Beacons still in flight when ctx ends are journaled before the journal
// closes, so their content survives the process even if delivery fails.
func (w *workspace) close(ctx context.Context) error {
	err := w.session.Close(ctx)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalSaveTimeout)
	defer cancel()
	for _, b := range w.client.InFlightBeacons() {
		if saveErr := w.journal.Save(saveCtx, beaconEntry(b.ID, b.Request), errBeaconUnconfirmed); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
	}

	if closeErr := w.journal.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return err
}

func beaconEntry(id string, req *storySvc.UpdateRequest) savequeue.Entry {
	entry := savequeue.Entry{ID: id}
	if req.Content != nil {
		entry.Content = *req.Content
	}
	if req.Kind != nil {
		entry.Kind = *req.Kind
	}
	return entry
}

// closeTimeout lets a beacon sent at close use its whole request timeout
func closeTimeout(requestTimeout time.Duration) time.Duration {
	return requestTimeout + closeGrace
}

// withSession opens the workspace and branch, runs fn, then closes
func withSession(cmd *cobra.Command, fn func(ctx context.Context, w *workspace) error) error {
	ctx := cmd.Context()
	w, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	if err := w.open(ctx); err != nil {
		_ = w.close(ctx)
		return err
	}

	runErr := fn(ctx, w)
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout(cfg.RequestTimeout))
	defer cancel()
	if err := w.close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// textArg joins args into snippet text; a single "-" reads stdin
func textArg(in io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(data), "\n"), nil
	}
	return strings.Join(args, " "), nil
}
