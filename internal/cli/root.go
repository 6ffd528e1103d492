package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/sho7650/content-rotation/internal/app"
	"github.com/sho7650/content-rotation/internal/config"
	"github.com/sho7650/content-rotation/internal/logger"
	"github.com/sho7650/content-rotation/internal/storage"
)

// options are shared by every subcommand
type options struct {
	configPath string
	envFile    string
	jsonOutput bool
}

// NewRootCommand builds the operator command tree
func NewRootCommand(version string) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "content-cli",
		Short: "Inspect and maintain seasonal storefront content",
		Long: `content-cli works directly against the configured content store.

It detects seasons, previews what a slot would rotate through, imports
generated media records and archives old ones.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "configuration file (defaults are used when it does not exist)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "environment file loaded before the configuration")
	rootCmd.PersistentFlags().BoolVarP(&opts.jsonOutput, "json", "j", false, "output as JSON")

	rootCmd.AddCommand(seasonCmd(opts))
	rootCmd.AddCommand(fetchCmd(opts))
	rootCmd.AddCommand(holidayCmd(opts))
	rootCmd.AddCommand(migrateCmd(opts))
	rootCmd.AddCommand(importCmd(opts))
	rootCmd.AddCommand(archiveCmd(opts))
	rootCmd.AddCommand(versionCmd(version))

	return rootCmd
}

// Execute runs the command tree against os.Args
func Execute(version string) error {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func versionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "content-cli version %s\n", version)
		},
	}
}

// loadConfig reads the configuration file, falling back to defaults plus
// environment overrides when it does not exist
func (o *options) loadConfig(ctx context.Context) (*config.Config, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return nil, err
	}

	manager := config.NewConfigManager()
	var (
		cfg *config.Config
		err error
	)
	if _, statErr := os.Stat(o.configPath); errors.Is(statErr, fs.ErrNotExist) {
		cfg, err = manager.Parse(ctx, nil)
	} else {
		cfg, err = manager.LoadFromFile(ctx, o.configPath)
	}
	if err != nil {
		return nil, err
	}

	// Keep command output clean; warnings still reach stderr
	logCfg := cfg.Log
	if logCfg.Level == "info" || logCfg.Level == "debug" || logCfg.Level == "trace" {
		logCfg.Level = "warn"
	}
	if err := logger.Init(logCfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore loads the configuration and opens its store
func (o *options) openStore(ctx context.Context) (*config.Config, storage.ContentStore, error) {
	cfg, err := o.loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	store, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
