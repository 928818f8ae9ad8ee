package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lbakyl/rClone-chunking/internal/backup"
	"github.com/lbakyl/rClone-chunking/internal/config"
	"github.com/lbakyl/rClone-chunking/internal/logger"
	"github.com/lbakyl/rClone-chunking/internal/transfer"
	"github.com/lbakyl/rClone-chunking/internal/watcher"
)

var (
	configPath  string
	sourceDir   string
	remote      string
	destDir     string
	threshold   int64
	chunkSize   int64
	refreshRate int
	watchMode   bool
	verifyMode  bool
	dryRun      bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "rclone-chunker",
		Short: "Chunked rclone backup tool",
		Long: "Backs up a source tree to an rclone remote, splitting files above a " +
			"size threshold into fixed-size chunks and verifying chunk integrity on every run",
		Run: runApp,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.Flags().StringVar(&sourceDir, "source", "", "Source directory to back up")
	rootCmd.Flags().StringVar(&remote, "remote", "", "rclone remote name (as in rclone config)")
	rootCmd.Flags().StringVar(&destDir, "dest", "", "Destination folder on the remote")
	rootCmd.Flags().Int64Var(&threshold, "threshold", 0, "Large-file cutoff in bytes")
	rootCmd.Flags().Int64Var(&chunkSize, "chunk-size", 0, "Chunk size in bytes")
	rootCmd.Flags().IntVar(&refreshRate, "refresh", 0, "Full sync interval in seconds (watch mode)")
	rootCmd.Flags().BoolVar(&watchMode, "watch", false, "Keep running and sync on source changes")
	rootCmd.Flags().BoolVar(&verifyMode, "verify", false, "Verify chunk sets against source content, no transfer")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log planned actions without writing or invoking rclone")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runApp(cmd *cobra.Command, args []string) {
	if watchMode && verifyMode {
		fmt.Fprintf(os.Stderr, "Error: --watch and --verify cannot be combined\n")
		printUsageExamples()
		os.Exit(1)
	}

	log, err := logger.New("rclone-chunker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to construct logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		printUsageExamples()
		os.Exit(1)
	}

	engine := backup.NewEngine(cfg, transfer.NewRclone(cfg.RclonePath, log), log)

	switch {
	case verifyMode:
		if err := runVerify(engine, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error during verify: %v\n", err)
			os.Exit(1)
		}
	case watchMode:
		if err := runWatch(cfg, engine, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error during watch: %v\n", err)
			os.Exit(1)
		}
	default:
		if err := runOnce(engine); err != nil {
			fmt.Fprintf(os.Stderr, "Error during backup: %v\n", err)
			os.Exit(1)
		}
	}
}

func printUsageExamples() {
	fmt.Fprintf(os.Stderr, `
Usage Examples:
===============

1. One-shot backup run:
   %s --source /volume1/data --remote box --dest backups

2. Watch mode (sync on change, full sync every 10 minutes):
   %s --source /volume1/data --remote box --dest backups --watch --refresh 600

3. Verify chunk integrity without transferring:
   %s --source /volume1/data --remote box --dest backups --verify

4. With a config file and a 100 MB chunk size:
   %s --config /etc/rclone-chunker.yaml --chunk-size 104857600

`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

// loadConfig layers YAML file, environment overrides and CLI flags, in that
// order. Only flags the user actually set override the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("source") {
		cfg.SourceDir = sourceDir
	}
	if cmd.Flags().Changed("remote") {
		cfg.Remote = remote
	}
	if cmd.Flags().Changed("dest") {
		cfg.DestDir = destDir
	}
	if cmd.Flags().Changed("threshold") {
		cfg.ThresholdBytes = threshold
	}
	if cmd.Flags().Changed("chunk-size") {
		cfg.ChunkSizeBytes = chunkSize
	}
	if cmd.Flags().Changed("refresh") {
		cfg.RefreshSeconds = refreshRate
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = dryRun
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runOnce(engine *backup.Engine) error {
	report, err := engine.Run(context.Background())
	if err != nil {
		return err
	}
	if n := len(report.Failures); n > 0 {
		return fmt.Errorf("run completed with %d failed items", n)
	}
	return nil
}

func runVerify(engine *backup.Engine, log *zap.SugaredLogger) error {
	report, err := engine.Verify(context.Background())
	if err != nil {
		return err
	}
	for _, problem := range report.Problems {
		log.Warnw("integrity problem", "path", problem.Path, "op", problem.Op, "error", problem.Err)
	}
	if n := len(report.Problems); n > 0 {
		return fmt.Errorf("verification found %d problems", n)
	}
	log.Infow("all chunk sets verified", "sets", report.SetsChecked)
	return nil
}

// runWatch is the long-running mode: an initial full sync, then a sync per
// debounced source change, plus a periodic full sync as a safety net.
func runWatch(cfg *config.Config, engine *backup.Engine, log *zap.SugaredLogger) error {
	w, err := watcher.NewWatcher(log)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.AddWatch(cfg.SourceDir); err != nil {
		return fmt.Errorf("failed to watch source: %w", err)
	}
	w.Start()
	log.Infow("watching source tree", "directories", w.WatchedDirs())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Infow("performing initial full sync")
	if _, err := engine.Run(ctx); err != nil {
		log.Warnw("initial sync failed", "error", err)
	}

	refreshTicker := time.NewTicker(time.Duration(cfg.RefreshSeconds) * time.Second)
	defer refreshTicker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Infow("watch mode started", "refresh_seconds", cfg.RefreshSeconds)

	for {
		select {
		case <-sigChan:
			log.Infow("shutdown signal received")
			return nil

		case event := <-w.Changes():
			log.Infow("source changed, syncing", "path", event.Path, "op", event.Operation)
			if _, err := engine.Run(ctx); err != nil {
				log.Errorw("sync failed", "error", err)
			}

		case err := <-w.Errors():
			log.Errorw("watcher error", "error", err)

		case <-refreshTicker.C:
			log.Infow("periodic full sync")
			if _, err := engine.Run(ctx); err != nil {
				log.Errorw("periodic sync failed", "error", err)
			}
		}
	}
}
