// Package cmd defines and implements the CLI commands for the catalog-crawler executable.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs the crawl from the
// stored checkpoint down to page 1.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawls listing pages from the checkpoint down to page 1",
		Long: `Runs the crawl loop. An interrupt stops the crawl cleanly after in-flight
items finish and exits 0; the next run resumes from the interrupted page.
Exceeding the consecutive failure threshold exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: withApp(runCrawlCommand),
	}
}

func runCrawlCommand(cmd *cobra.Command, a App, _ []string) error {
	if err := a.Crawl(cmd.Context()); err != nil {
		return fmt.Errorf("run crawler: %w", err)
	}
	a.Logger().Info("crawl command finished")
	return nil
}
