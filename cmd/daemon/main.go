package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sho7650/content-rotation/internal/app"
	"github.com/sho7650/content-rotation/internal/config"
	"github.com/sho7650/content-rotation/internal/logger"
)

var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	var (
		configPath string
		envFile    string
		noWatch    bool
	)

	rootCmd := &cobra.Command{
		Use:     "content-rotation",
		Short:   "Serve seasonal storefront content with automatic rotation",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, envFile, !noWatch)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "configuration file (defaults are used when it does not exist)")
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "environment file loaded before the configuration")
	rootCmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable configuration hot reload")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, envFile string, watch bool) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	manager := config.NewConfigManager()
	defer manager.Close()

	cfg, fromFile, err := loadConfig(ctx, manager, configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Get("app")
	log.WithField("version", Version).Info("Starting content rotation daemon")

	application := app.New(cfg)
	if err := application.Start(ctx); err != nil {
		return err
	}

	changes := make(chan config.ConfigChangeEvent, 4)
	if watch && fromFile {
		if err := manager.WatchForChanges(ctx, configPath, changes); err != nil {
			log.WithError(err).Warn("Configuration hot reload disabled")
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return application.Stop(shutdownCtx)

		case event := <-changes:
			if event.Type != config.EventConfigUpdated {
				log.WithField("error", event.Error).Warn("Ignoring invalid configuration change")
				continue
			}
			if err := application.Reload(event.Config); err != nil {
				log.WithError(err).Error("Configuration reload applied with errors")
			}
		}
	}
}

// loadConfig reads configPath, or builds the defaults plus environment
// overrides when the file does not exist
func loadConfig(ctx context.Context, manager *config.ConfigManager, configPath string) (*config.Config, bool, error) {
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		cfg, err := manager.Parse(ctx, nil)
		return cfg, false, err
	}

	cfg, err := manager.LoadFromFile(ctx, configPath)
	return cfg, true, err
}
