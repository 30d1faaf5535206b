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

	"github.com/andywolf/mountrace/internal/clock"
	"github.com/andywolf/mountrace/internal/cloud/gcp"
	"github.com/andywolf/mountrace/internal/config"
	"github.com/andywolf/mountrace/internal/controller"
	"github.com/andywolf/mountrace/internal/device/restconf"
	"github.com/andywolf/mountrace/internal/events"
	"github.com/andywolf/mountrace/internal/logtail"
	"github.com/andywolf/mountrace/internal/observe"
	"github.com/andywolf/mountrace/internal/security"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the race-window search",
	Long: `Start the race-window search against the configured mount point.

The search runs until the server logs a duplicate mount point, a lifecycle
request fails, the cycle limit is reached, or the process is interrupted.

Example:
  mountrace run --log-path /opt/odl/data/log/karaf.log --node ME_CLI
  mountrace run --floor 100ms --ceiling 1s --step 5ms --max-cycles 500`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("log-path", "", "Server log file to follow")
	runCmd.Flags().String("node", "", "Mount point (node id) under test")
	runCmd.Flags().String("server", "", "Lifecycle server base URL")
	runCmd.Flags().String("probes-file", "", "JSONL file receiving one record per probe")
	runCmd.Flags().Duration("floor", 0, "Smallest race delay")
	runCmd.Flags().Duration("ceiling", 0, "Race delay at which the ramp restarts")
	runCmd.Flags().Duration("step", 0, "Race delay increment per cycle")
	runCmd.Flags().Int("max-cycles", 0, "Stop after this many cycles (0 runs until interrupted)")
	runCmd.Flags().Bool("status-check", false, "Query the operational topology after every cycle")
	runCmd.Flags().Bool("cleanup-unmount", false, "Unmount the node when the search exits")
	runCmd.Flags().Bool("structured", false, "Write structured JSON log entries to stdout")
	runCmd.Flags().String("cloud-project", "", "Send structured logs to Cloud Logging in this project")

	_ = viper.BindPFlag("log.path", runCmd.Flags().Lookup("log-path"))
	_ = viper.BindPFlag("server.node_id", runCmd.Flags().Lookup("node"))
	_ = viper.BindPFlag("server.base_url", runCmd.Flags().Lookup("server"))
	_ = viper.BindPFlag("output.probes_file", runCmd.Flags().Lookup("probes-file"))
	_ = viper.BindPFlag("search.floor", runCmd.Flags().Lookup("floor"))
	_ = viper.BindPFlag("search.ceiling", runCmd.Flags().Lookup("ceiling"))
	_ = viper.BindPFlag("search.step", runCmd.Flags().Lookup("step"))
	_ = viper.BindPFlag("search.max_cycles", runCmd.Flags().Lookup("max-cycles"))
	_ = viper.BindPFlag("search.status_check", runCmd.Flags().Lookup("status-check"))
	_ = viper.BindPFlag("search.cleanup_unmount", runCmd.Flags().Lookup("cleanup-unmount"))
	_ = viper.BindPFlag("logging.structured", runCmd.Flags().Lookup("structured"))
	_ = viper.BindPFlag("logging.cloud_project", runCmd.Flags().Lookup("cloud-project"))
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	runID := uuid.New().String()
	logger := log.New(os.Stdout, "[mountrace] ", log.LstdFlags)

	if err := resolveCredentials(ctx, cfg, newSecretFetcher(cfg.Logging.CloudProject)); err != nil {
		return err
	}

	sanitizer := security.NewLogSanitizer()
	sanitizer.AddSecret(cfg.Server.Password)
	sanitizer.AddSecret(cfg.Device.Password)

	cursor, err := logtail.Open(cfg.Log.Path, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cursor.Close() }()

	oracle := observe.NewOracle(cursor, observe.NewClassifier(cfg.Log.Markers), clock.Real(), cfg.Search.PollInterval)

	// Events written before this run must not be attributed to it
	discarded, err := oracle.Drain()
	if err != nil {
		return err
	}
	logger.Printf("Discarded %d existing lines from %s", discarded, cfg.Log.Path)

	client := restconf.New(restconf.Options{
		BaseURL:   cfg.Server.BaseURL,
		Username:  cfg.Server.Username,
		Password:  cfg.Server.Password,
		Topology:  cfg.Server.Topology,
		Timeout:   cfg.Server.RequestTimeout,
		Sanitizer: sanitizer,
	})

	var sink controller.ProbeSink
	if cfg.Output.ProbesFile != "" {
		fileSink, err := events.NewFileSink(cfg.Output.ProbesFile)
		if err != nil {
			return err
		}
		sink = fileSink
		logger.Printf("Recording probes to %s", fileSink.Path())
	}

	cloudLogger := newStructuredLogger(ctx, cfg, runID, os.Stdout, sanitizer, logger)

	ctrl, err := controller.New(cfg, runID, controller.Deps{
		Client:      client,
		Oracle:      oracle,
		Clock:       clock.Real(),
		Sink:        sink,
		CloudLogger: cloudLogger,
		Logger:      logger,
	})
	if err != nil {
		if sink != nil {
			_ = sink.Close()
		}
		if cloudLogger != nil {
			_ = cloudLogger.Close()
		}
		return fmt.Errorf("failed to create controller: %w", err)
	}

	return ctrl.Run(ctx)
}

// newSecretFetcher opens a Secret Manager client resolving bare secret names
// in projectID
func newSecretFetcher(projectID string) func(context.Context) (gcp.SecretFetcher, error) {
	return func(ctx context.Context) (gcp.SecretFetcher, error) {
		return gcp.NewSecretManagerClient(ctx, projectID)
	}
}

// resolveCredentials replaces inline passwords with Secret Manager values
// when a secret path is configured. The client is only created when needed.
func resolveCredentials(ctx context.Context, cfg *config.Config, newFetcher func(context.Context) (gcp.SecretFetcher, error)) error {
	if cfg.Server.PasswordSecret == "" && cfg.Device.PasswordSecret == "" {
		return nil
	}

	fetcher, err := newFetcher(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize Secret Manager client: %w", err)
	}
	defer func() { _ = fetcher.Close() }()

	cfg.Server.Password, err = gcp.ResolvePassword(ctx, fetcher, cfg.Server.PasswordSecret, cfg.Server.Password)
	if err != nil {
		return fmt.Errorf("server password: %w", err)
	}
	cfg.Device.Password, err = gcp.ResolvePassword(ctx, fetcher, cfg.Device.PasswordSecret, cfg.Device.Password)
	if err != nil {
		return fmt.Errorf("device password: %w", err)
	}
	return nil
}

// newStructuredLogger returns the structured logger selected by the logging
// config, or nil when structured logging is off. Cloud Logging failures fall
// back to local logs only.
func newStructuredLogger(ctx context.Context, cfg *config.Config, runID string, w io.Writer, sanitizer *security.LogSanitizer, logger *log.Logger) gcp.LoggerInterface {
	lc := cfg.Logging
	if lc.CloudProject == "" && !lc.Structured {
		return nil
	}

	structured, err := gcp.NewLogger(ctx, lc.CloudProject, lc.LogID, runID, w,
		gcp.WithSanitizer(sanitizer),
		gcp.WithLabels(map[string]string{"node": cfg.Server.NodeID}),
	)
	if err != nil {
		logger.Printf("Warning: Cloud Logging unavailable, using local logs only: %v", err)
		return nil
	}
	return structured
}
