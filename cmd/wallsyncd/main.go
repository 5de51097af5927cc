package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yhlac/wallsyncd/internal/activation"
	"github.com/yhlac/wallsyncd/internal/archive"
	"github.com/yhlac/wallsyncd/internal/config"
	"github.com/yhlac/wallsyncd/internal/media"
	"github.com/yhlac/wallsyncd/internal/provider"
	"github.com/yhlac/wallsyncd/internal/sync"
	"github.com/yhlac/wallsyncd/internal/target"
	"github.com/yhlac/wallsyncd/internal/trigger"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wallsyncd",
	Short: "Synchronize the daily wallpaper to storage backends",
	Long: `wallsyncd fetches the provider's image of the day, encodes desktop, mobile
and thumbnail variants with an accent color, and writes them to an S3 bucket,
a Redis cache and a GitHub-hosted archive.

It can run as a oneshot cycle (via systemd timer) or as a long-running server
with a cron schedule and an HTTP trigger.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync cycle and print its report",
	Long: `Run fetches today's snapshot, derives every configured variant and writes
the artifacts to all enabled targets. The JSON report is printed to stdout.

The command fails only when nothing could be produced: the provider was
unreachable or every variant failed. Failed targets are listed in the report.`,
	RunE: runCycle,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trigger server",
	Long: `Serve runs cycles on the configured cron schedule and exposes POST /run,
GET /status, GET /healthz and GET /metrics. A systemd-activated socket is used
when present, serve.listen_addr otherwise.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wallsyncd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/wallsyncd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Run command flags
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "derive artifacts without writing to any target")

	// Add commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runCycle(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine, cleanup, err := buildEngine(ctx, cfg, logger, dryRun)
	if err != nil {
		return err
	}
	defer cleanup()

	report, cycleErr := engine.RunCycle(ctx)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if cycleErr != nil {
		logger.Error("cycle failed", "error", cycleErr)
		return cycleErr
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine, cleanup, err := buildEngine(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer cleanup()

	ln, err := activation.Listen(cfg.Serve.ListenAddr, logger)
	if err != nil {
		return err
	}

	return trigger.NewServer(engine, cfg.Serve, logger).Start(ctx, ln)
}

// buildEngine wires the provider, transformer and enabled targets. The
// returned cleanup releases backend connections.
func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, dryRun bool) (*sync.Engine, func(), error) {
	var targets []target.SyncTarget
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	for _, name := range cfg.EnabledTargets() {
		t, closer, err := buildTarget(ctx, name, cfg, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to configure %s: %w", name, err)
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		targets = append(targets, t)
	}

	fetcher := provider.NewBingClient(cfg.Provider.MetadataURL, cfg.Provider.BaseURL, cfg.Provider.Timeout, logger)
	transformer := media.NewTransformer(cfg.Media.Quality)

	logger.Debug("engine configured",
		"targets", cfg.EnabledTargets(),
		"variants", len(cfg.Media.Variants),
		"quality", transformer.Quality())

	return sync.NewEngine(fetcher, transformer, cfg.Media.Variants, targets, logger, dryRun), cleanup, nil
}

func buildTarget(ctx context.Context, name string, cfg *config.Config, logger *slog.Logger) (target.SyncTarget, func() error, error) {
	switch name {
	case target.NameArchive:
		token, err := config.ReadSecretFile(cfg.Archive.TokenFile)
		if err != nil {
			return nil, nil, err
		}
		store := archive.NewGitHubStore(ctx, cfg.Archive.APIURL, cfg.Archive.Owner, cfg.Archive.Repo, token, cfg.Provider.Timeout)
		committer := archive.NewCommitter(store, cfg.Archive.Branch, logger.With("target", name))
		return target.NewArchive(committer, cfg.Archive.PathPrefix, logger.With("target", name)), nil, nil

	case target.NameObjectStore:
		secret, err := config.ReadSecretFile(cfg.ObjectStore.SecretAccessKeyFile)
		if err != nil {
			return nil, nil, err
		}
		client, err := target.NewS3Client(ctx, cfg.ObjectStore, secret)
		if err != nil {
			return nil, nil, err
		}
		return target.NewObjectStore(client, cfg.ObjectStore.Bucket, cfg.ObjectStore.Prefix, cfg.ObjectStore.CacheControl, logger.With("target", name)), nil, nil

	case target.NameFastKV:
		password, err := config.ReadSecretFile(cfg.FastKV.PasswordFile)
		if err != nil {
			return nil, nil, err
		}
		client := target.NewRedisClient(cfg.FastKV, password)
		return target.NewFastKV(client, cfg.FastKV.Prefix, cfg.FastKV.TTL, logger.With("target", name)), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown target %q", name)
	}
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	// stdout carries the run report
	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/wallsyncd/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"metadata_url", cfg.Provider.MetadataURL,
		"targets", cfg.EnabledTargets(),
		"schedule", cfg.Serve.Schedule)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
