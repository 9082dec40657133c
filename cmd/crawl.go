// Package cmd defines and implements the CLI commands for the officer-crawler
// executable.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/officer-crawler/internal/app"
	"github.com/JakeFAU/officer-crawler/internal/crawler"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls every pending search term and publishes the reports",
		Long: `Generates the search terms, publishes a snapshot of what is already
collected, crawls every term without a checkpoint, publishes interim
snapshots along the way, and finishes with the final report.`,
		RunE: runCrawlCommand,
	}
	cmd.Flags().Int("concurrency", 0, "number of concurrent workers (overrides crawler.concurrency)")
	cmd.Flags().Int("max-pages", 0, "listing pages read per search term (overrides crawler.max_pages)")
	cmd.Flags().String("names-file", "", "file with one base name per line (overrides units.names)")
	cmd.Flags().StringArray("redo", nil, "search term to crawl again, replacing its checkpoint (repeatable)")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	redo, err := cmd.Flags().GetStringArray("redo")
	if err != nil {
		return err
	}
	opts := app.CrawlOptions{}
	for _, unit := range redo {
		opts.Redo = append(opts.Redo, crawler.SearchUnit(unit))
	}

	report, err := appInstance.Crawl(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}
	appInstance.Logger().Info("crawl command finished",
		zap.String("run_id", report.RunID),
		zap.Int("queued", report.Queued),
		zap.Int("failed", len(report.Summary.Failed)),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d crawled, %d failed, %d officers, %d appointments\n",
		report.RunID, len(report.Summary.Completed), len(report.Summary.Failed),
		len(report.Final.Dataset.Officers), len(report.Final.Dataset.Appointments))
	for _, loc := range report.Final.Locations {
		fmt.Fprintln(cmd.OutOrStdout(), loc)
	}
	return nil
}
