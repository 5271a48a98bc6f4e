package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/storefront-rank-tracker/internal/app"
	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/regions"
)

func newCrawlCmd() *cobra.Command {
	var only []string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every configured region once",
		Long: `Walks the pre-order listing of each region in order, stores the dated
snapshot and updates the tracked rank histories. Failed regions are retried
and then reported; they never stop the run. The run report is printed as JSON.`,
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
				w, err := a.NewWorker(ctx)
				if err != nil {
					return err
				}
				report, err := w.Run(ctx, codes, registry)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringSliceVar(&only, "region", nil, "crawl only these regions (repeatable)")
	return cmd
}

func crawlRegions(a *app.App, only []string) ([]crawler.Region, error) {
	if len(only) == 0 {
		return a.ResolveRegions()
	}
	codes := make([]crawler.Region, 0, len(only))
	for _, c := range only {
		codes = append(codes, crawler.Region(c))
	}
	return regions.Collapse(codes, a.Config.Regions.DefaultLanguage), nil
}
