package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/storefront-rank-tracker/internal/app"
	"github.com/JakeFAU/storefront-rank-tracker/internal/tracking"
)

func newRebuildCmd() *cobra.Command {
	var only []string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Regenerate rank histories from stored snapshots",
		Long: `Replays every stored snapshot of the tracked regions oldest first and
rewrites the rank histories. Use it after changing the tracked patterns.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				codes, err := crawlRegions(a, only)
				if err != nil {
					return err
				}
				registry, err := a.LoadRegistry()
				if err != nil {
					return err
				}
				report, err := tracking.Rebuild(ctx, a.Snapshots, a.Histories, registry, codes, a.Logger.Named("rebuild"))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringSliceVar(&only, "region", nil, "rebuild only these regions (repeatable)")
	return cmd
}
