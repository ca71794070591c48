package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCheckpointCmd groups the manual checkpoint commands.
func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspects or overrides the crawl checkpoint",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Prints the page the next crawl starts from",
		Args:  cobra.NoArgs,
		RunE:  withApp(runCheckpointGet),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set PAGE",
		Short: "Overwrites the checkpoint so the next crawl starts from PAGE",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runCheckpointSet),
	})
	return cmd
}

func runCheckpointGet(cmd *cobra.Command, a App, _ []string) error {
	page, err := a.Store().ReadCheckpoint(cmd.Context())
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), page)
	return err
}

func runCheckpointSet(cmd *cobra.Command, a App, args []string) error {
	page, err := strconv.Atoi(args[0])
	if err != nil || page < 0 {
		return fmt.Errorf("page must be a non-negative integer, got %q", args[0])
	}
	if err := a.Store().WriteCheckpoint(cmd.Context(), page); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	a.Logger().Info("checkpoint overwritten", zap.Int("page", page))
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "checkpoint set to %d\n", page)
	return err
}
