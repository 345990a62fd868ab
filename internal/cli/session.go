package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"github.com/andywolf/milestonesync/internal/cloud/gcp"
	"github.com/andywolf/milestonesync/internal/config"
	"github.com/andywolf/milestonesync/internal/controller"
	"github.com/andywolf/milestonesync/internal/github"
	"github.com/andywolf/milestonesync/internal/journal"
	"github.com/andywolf/milestonesync/internal/security"
	"github.com/andywolf/milestonesync/internal/tracker"
	"github.com/andywolf/milestonesync/internal/tracker/ghapi"
	"github.com/andywolf/milestonesync/internal/tracker/ghcli"
)

// addRunFlags registers the flags shared by every command that talks to GitHub.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "Show what would change without modifying anything")
	cmd.Flags().Int("workers", 0, "Number of concurrent workers (default from config, 10)")
}

// addSelectionFlags registers --limit and --offset.
func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().Int("limit", 0, "Process at most N root issues (0 = all)")
	cmd.Flags().Int("offset", 0, "Skip the first N root issues")
}

func selectionFromFlags(cmd *cobra.Command) (controller.Selection, error) {
	var sel controller.Selection
	sel.Limit, _ = cmd.Flags().GetInt("limit")
	sel.Offset, _ = cmd.Flags().GetInt("offset")
	if sel.Limit < 0 || sel.Offset < 0 {
		return sel, fmt.Errorf("--limit and --offset must not be negative")
	}
	if f := cmd.Flags().Lookup("issues"); f != nil {
		raw, _ := cmd.Flags().GetStringSlice("issues")
		numbers, err := ExpandRanges(raw)
		if err != nil {
			return sel, fmt.Errorf("invalid --issues value: %w", err)
		}
		sel.Numbers = numbers
	}
	return sel, nil
}

// loadConfig loads the configuration and applies the run flags of cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("workers") {
		cfg.Run.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if f := cmd.Flags().Lookup("due-date"); f != nil && f.Changed {
		cfg.Run.DueDate = f.Value.String()
	}
	if f := cmd.Flags().Lookup("state"); f != nil && f.Changed {
		cfg.Run.State = f.Value.String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// session is everything one command invocation needs.
type session struct {
	cfg     *config.Config
	ctrl    *controller.Controller
	journal *journal.FileSink
}

func (s *session) Close() {
	if err := s.ctrl.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: failed to flush logs:", err)
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "Warning: failed to close journal:", err)
		}
	}
}

// newSession builds the tracker client, log sink and controller for command.
func newSession(cmd *cobra.Command, command string) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	verbose := viper.GetBool("verbose")
	scrubber := security.NewScrubber()
	runID := uuid.New().String()

	logger := log.New(os.Stderr, "[msync] ", log.LstdFlags)
	if cfg.Logging.Format == "json" {
		// Diagnostics go to the JSON sink only.
		logger = log.New(io.Discard, "", 0)
	}

	client, err := newTrackerClient(ctx, cfg, scrubber, verbose)
	if err != nil {
		return nil, err
	}

	sink, err := newSink(ctx, cfg, map[string]string{"run_id": runID, "command": command})
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg}
	opts := controller.Options{
		Client:   client,
		Out:      cmd.OutOrStdout(),
		Logger:   logger,
		Sink:     sink,
		Scrubber: scrubber,
		Command:  command,
		RunID:    runID,
		Workers:  cfg.Run.Workers,
		MaxDepth: cfg.Run.MaxDepth,
	}
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
	if cfg.Logging.Journal != "" {
		fs, err := journal.NewFileSink(cfg.Logging.Journal)
		if err != nil {
			if sink != nil {
				_ = sink.Close()
			}
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		s.journal = fs
		opts.Journal = fs
	}
	s.ctrl = controller.New(opts)
	return s, nil
}

// newTrackerClient picks the transport named by tracker.backend.
func newTrackerClient(ctx context.Context, cfg *config.Config, scrubber *security.Scrubber, verbose bool) (tracker.Client, error) {
	ts, err := tokenSource(ctx, cfg, scrubber)
	if err != nil {
		return nil, err
	}

	switch cfg.Tracker.Backend {
	case config.BackendAPI:
		if err := cfg.ValidateForAPI(ts != nil); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		client, err := ghapi.New(ghapi.Options{
			TokenSource: ts,
			APIURL:      cfg.Tracker.APIURL,
			GraphQLURL:  cfg.Tracker.GraphQLURL,
			Timeout:     cfg.Tracker.CallTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create API client: %w", err)
		}
		return client, nil
	default:
		opts := []ghcli.Option{ghcli.WithTimeout(cfg.Tracker.CallTimeout)}
		if ts != nil {
			opts = append(opts, ghcli.WithTokenSource(ts))
		}
		if verbose {
			opts = append(opts, ghcli.WithLogger(log.New(os.Stderr, "[gh] ", log.LstdFlags)))
		}
		return ghcli.New(opts...), nil
	}
}

// tokenSource returns the GitHub App installation token source when App
// credentials are configured, a static source for a token from the
// environment, or nil to let gh use its own login.
func tokenSource(ctx context.Context, cfg *config.Config, scrubber *security.Scrubber) (oauth2.TokenSource, error) {
	if cfg.UsesApp() {
		key, err := appPrivateKey(ctx, cfg)
		if err != nil {
			return nil, err
		}
		var opts []github.AppSourceOption
		if cfg.Tracker.APIURL != "" {
			opts = append(opts, github.WithExchanger(github.NewExchanger(github.WithBaseURL(cfg.Tracker.APIURL))))
		}
		ts, err := github.NewAppTokenSource(cfg.GitHub.AppID, cfg.GitHub.InstallationID, key, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to configure GitHub App: %w", err)
		}
		return scrubbingSource{ts, scrubber}, nil
	}

	if token, ok := github.EnvToken(cfg.GitHub.TokenEnv); ok {
		scrubber.AddSecret(token)
		return github.StaticTokenSource(token), nil
	}
	if cfg.GitHub.TokenEnv != "" {
		return nil, fmt.Errorf("token variable %s is empty", cfg.GitHub.TokenEnv)
	}
	return nil, nil
}

// scrubbingSource registers every minted token with the scrubber so it never
// reaches a log line.
type scrubbingSource struct {
	src      oauth2.TokenSource
	scrubber *security.Scrubber
}

func (s scrubbingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.scrubber.AddSecret(tok.AccessToken)
	return tok, nil
}

// appPrivateKey reads the App key from a file or from Secret Manager.
func appPrivateKey(ctx context.Context, cfg *config.Config) ([]byte, error) {
	if cfg.GitHub.PrivateKeyPath != "" {
		key, err := os.ReadFile(cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read GitHub App private key: %w", err)
		}
		return key, nil
	}

	sm, err := gcp.NewSecretManagerClient(ctx, cfg.GitHub.SecretProject)
	if err != nil {
		return nil, err
	}
	defer sm.Close()
	key, err := sm.FetchSecret(ctx, cfg.GitHub.PrivateKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch GitHub App private key: %w", err)
	}
	return key, nil
}

// newSink returns the Cloud Logging sink, a JSON sink on stderr, or nil.
func newSink(ctx context.Context, cfg *config.Config, labels map[string]string) (gcp.Sink, error) {
	if cfg.Logging.Cloud.Enabled {
		sink, err := gcp.NewCloudSink(ctx, cfg.Logging.Cloud.Project, cfg.Logging.Cloud.LogID, labels)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	if cfg.Logging.Format == "json" {
		return gcp.NewJSONSink(os.Stderr, labels), nil
	}
	return nil, nil
}
