package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sho7650/content-rotation/internal/core"
	"github.com/sho7650/content-rotation/internal/storage"
)

// importFile is the YAML layout accepted by the import command
type importFile struct {
	Items []*core.ContentItem `yaml:"items"`
}

func migrateCmd(opts *options) *cobra.Command {
	var target int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the store schema",
		Long: `Migrate the SQLite schema to the latest version, or to --to.

Version 1 creates the content tables; version 2 adds the season compound
indexes and version 3 the holiday compound indexes. Rolling back below a
version leaves the queries that rely on its indexes answering through the
full-scan fallback.

With the mongo driver, creates the compound indexes; --to is ignored.`,
		Example: `  content-cli migrate
  content-cli migrate --to 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, store, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if mongo, ok := store.(*storage.MongoStore); ok {
				if err := mongo.EnsureIndexes(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Indexes ensured")
				return nil
			}

			sqlite, ok := store.(*storage.SQLiteStore)
			if !ok {
				return fmt.Errorf("migrations only apply to the sqlite and mongo drivers")
			}
			mm, err := sqlite.Migrations()
			if err != nil {
				return err
			}

			if target < 0 {
				target = storage.LatestVersion(storage.ContentMigrations())
			}
			if err := mm.MigrateToVersion(ctx, target); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			version, err := mm.GetCurrentVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d\n", version)
			return nil
		},
	}
	cmd.Flags().IntVar(&target, "to", -1, "target schema version (default latest)")
	return cmd
}

func importCmd(opts *options) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import content records from a YAML file",
		Long: `Import content records from a YAML file of the form

  items:
    - type: photo
      url: https://cdn.example.com/winter-01.jpg
      season: winter
      status: active
      created_at: 2025-01-10T09:00:00Z

Records without an id are assigned one. Every record is validated before
any is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read import file: %w", err)
			}

			var file importFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("failed to parse YAML: %w", err)
			}
			for i, item := range file.Items {
				if item.Status == "" {
					item.Status = core.StatusActive
				}
				if err := item.Validate(); err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
			}

			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d items valid, nothing written\n", len(file.Items))
				return nil
			}

			ctx := cmd.Context()
			_, store, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			writer, ok := store.(storage.ContentWriter)
			if !ok {
				return fmt.Errorf("store does not accept writes")
			}
			for i, item := range file.Items {
				if err := writer.PutContent(ctx, item); err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d items\n", len(file.Items))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without writing")
	return cmd
}

func archiveCmd(opts *options) *cobra.Command {
	var (
		contentType string
		before      string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive active content created before a date",
		Example: `  content-cli archive --type photo --before 2024-01-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := core.ParseContentType(contentType)
			if err != nil {
				return err
			}
			if before == "" {
				return fmt.Errorf("--before is required")
			}
			cutoff, err := time.ParseInLocation(dateLayout, before, time.Local)
			if err != nil {
				return fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", before, err)
			}

			ctx := cmd.Context()
			_, store, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			writer, ok := store.(storage.ContentWriter)
			if !ok {
				return fmt.Errorf("store does not accept writes")
			}

			items, err := store.Scan(ctx, ct)
			if err != nil {
				return err
			}

			archived := 0
			for _, item := range items {
				if !item.IsActive() || !item.CreatedAt.Before(cutoff) {
					continue
				}
				if !dryRun {
					if err := writer.SetStatus(ctx, ct, item.ID, core.StatusArchived); err != nil {
						return fmt.Errorf("failed to archive %s: %w", item.ID, err)
					}
				}
				archived++
			}

			verb := "Archived"
			if dryRun {
				verb = "Would archive"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d %s items\n", verb, archived, ct)
			return nil
		},
	}
	cmd.Flags().StringVarP(&contentType, "type", "t", string(core.ContentTypePhoto), "content type (photo, video)")
	cmd.Flags().StringVar(&before, "before", "", "archive items created before this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count without archiving")
	return cmd
}
