package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avianatlas/embrysync/internal/catalog"
	"github.com/avianatlas/embrysync/internal/checkpoint"
	"github.com/avianatlas/embrysync/internal/config"
	"github.com/avianatlas/embrysync/internal/inference"
	"github.com/avianatlas/embrysync/internal/storage"
	"github.com/avianatlas/embrysync/internal/update"
)

// --- update ---

var updateCmd = &cobra.Command{
	Use:   "update <image-dir>",
	Short: "Fetch new catalog images and append their predictions",
	Long: `Fetch metadata for images created since the last update, run the stage
and locations classifiers over the new ones, and append the results to the
prediction catalog.

The image directory must hold the image files the remote catalog refers to,
e.g. /srv/embryo/images.

Concurrent invocations are unsafe: two runs race on the checkpoint and the
catalog database. Schedule at most one run at a time (e.g. via cron).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return runUpdate(args[0], dryRun)
	},
}

func init() {
	updateCmd.Flags().Bool("dry-run", false, "report what would be added without running inference or writing anything")
}

func runUpdate(imageDir string, dryRun bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	info, err := os.Stat(imageDir)
	if err != nil {
		return fmt.Errorf("image directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("image directory %s is not a directory", imageDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	engine := inference.New(cfg.Inference.BaseURL)
	runner := inference.NewRunner(engine, cfg.Inference.StageModel, cfg.Inference.LocationsModel,
		cfg.Inference.BatchSize, os.Stderr)

	updater := update.New(update.Deps{
		Catalog:    catalog.New(cfg.Catalog.BaseURL, cfg.Catalog.Scope, cfg.Storage.DownloadDir()),
		Predictor:  runner,
		Store:      store,
		Checkpoint: checkpoint.NewFile(cfg.Storage.CheckpointPath()),
		RunLog:     checkpoint.NewUpdateLog(cfg.Storage.UpdateLogPath()),
		ImageDir:   imageDir,
		DryRun:     dryRun,
	})

	res, err := updater.Run(ctx)
	if err != nil {
		return err
	}

	switch {
	case res.UpToDate:
		printSuccess("Data already up to date (last update %s)", res.Since)
	case dryRun:
		for _, name := range res.Added {
			printStep("would add %s", name)
		}
		printSuccess("Dry run: %d new images since %s", len(res.Added), res.Since)
	default:
		printSuccess("Updated with %d images", len(res.Added))
	}
	return nil
}

func setupLogging(level string) {
	l := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		l = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog and classifier server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cp := checkpoint.NewFile(cfg.Storage.CheckpointPath())
	if date, err := cp.Read(); err != nil {
		printWarning("checkpoint not readable: %v", err)
	} else {
		printStatus("Last update", "%s", date)
	}

	// Show partial status even if the database cannot be opened.
	if store, err := storage.Open(cfg.Storage.DataDir); err != nil {
		printError("could not open catalog database: %v", err)
	} else {
		defer store.Close()
		if n, err := store.Count(); err == nil {
			printStatus("Stored images", "%d", n)
		}
	}

	engine := inference.New(cfg.Inference.BaseURL)
	if engine.IsRunning(ctx) {
		printStatus("Classifier server", "running at %s", cfg.Inference.BaseURL)
	} else {
		printStatus("Classifier server", "not running")
	}

	printStatus("Stage model", "%s", cfg.Inference.StageModel)
	printStatus("Locations model", "%s", cfg.Inference.LocationsModel)
	printStatus("Catalog endpoint", "%s", cfg.Catalog.BaseURL)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// --- verify ---

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check catalog integrity",
	Long: `Scan the prediction catalog and verify that every record carries both a
stage and a locations prediction vector. Exits nonzero on the first
violation found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		n, err := store.Verify()
		if err != nil {
			return fmt.Errorf("catalog inconsistent after %d records: %w", n, err)
		}

		printSuccess("Catalog consistent (%d images)", n)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(ansiBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
