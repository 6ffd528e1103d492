package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/sho7650/content-rotation/internal/content"
	"github.com/sho7650/content-rotation/internal/core"
)

const dateLayout = "2006-01-02"

func seasonCmd(opts *options) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "season",
		Short: "Show the season for today or a given date",
		Example: `  content-cli season
  content-cli season --date 2025-12-21`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if date != "" {
				parsed, err := time.ParseInLocation(dateLayout, date, time.Local)
				if err != nil {
					return fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", date, err)
				}
				now = parsed
			}

			season := core.DetectSeason(now)
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"date":   now.Format(dateLayout),
					"season": string(season),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), season)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date to classify (YYYY-MM-DD)")
	return cmd
}

// fetchFlags are shared by fetch and holiday
type fetchFlags struct {
	contentType string
	limit       int
	date        string
}

func (f *fetchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.contentType, "type", "t", string(core.ContentTypePhoto), "content type (photo, video)")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", content.DefaultMaxResults, "maximum results")
	cmd.Flags().StringVar(&f.date, "date", "", "pretend today is this date (YYYY-MM-DD) when detecting the season")
}

func (f *fetchFlags) clock() (clockwork.Clock, error) {
	if f.date == "" {
		return clockwork.NewRealClock(), nil
	}
	parsed, err := time.ParseInLocation(dateLayout, f.date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", f.date, err)
	}
	return clockwork.NewFakeClockAt(parsed), nil
}

func fetchCmd(opts *options) *cobra.Command {
	flags := &fetchFlags{}
	var season string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "List the active content a slot would rotate through",
		Example: `  content-cli fetch --type video
  content-cli fetch --type photo --season winter --limit 20 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			contentType, err := core.ParseContentType(flags.contentType)
			if err != nil {
				return err
			}
			s, err := core.ParseSeason(season)
			if err != nil {
				return err
			}
			clock, err := flags.clock()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg, store, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := content.NewService(store, content.WithClock(clock), content.WithScanLimit(cfg.Store.ScanLimit))
			items, err := svc.FetchActive(ctx, contentType, s, flags.limit)
			if err != nil {
				return err
			}
			return printItems(cmd.OutOrStdout(), items, opts.jsonOutput)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&season, "season", "s", string(core.SeasonAuto), "season (auto, winter, spring, summer, autumn)")
	return cmd
}

func holidayCmd(opts *options) *cobra.Command {
	flags := &fetchFlags{}

	cmd := &cobra.Command{
		Use:   "holiday [name]",
		Short: "List the active content tagged with a holiday",
		Example: `  content-cli holiday christmas --type photo`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentType, err := core.ParseContentType(flags.contentType)
			if err != nil {
				return err
			}
			clock, err := flags.clock()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg, store, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := content.NewService(store, content.WithClock(clock), content.WithScanLimit(cfg.Store.ScanLimit))
			items, err := svc.FetchHoliday(ctx, contentType, args[0], flags.limit)
			if err != nil {
				return err
			}
			return printItems(cmd.OutOrStdout(), items, opts.jsonOutput)
		},
	}
	flags.register(cmd)
	return cmd
}

func printItems(w io.Writer, items []*core.ContentItem, asJSON bool) error {
	if asJSON {
		return writeJSON(w, items)
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "No content found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSEASON\tHOLIDAY\tCREATED\tURL")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ID, item.Type, item.Season, item.Holiday, item.CreatedAt.Format(time.RFC3339), item.URL)
	}
	return tw.Flush()
}
