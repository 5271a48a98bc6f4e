package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	collyfetcher "github.com/JakeFAU/storefront-rank-tracker/internal/fetcher/colly"
	"github.com/JakeFAU/storefront-rank-tracker/internal/policy/ratelimit"
	"github.com/JakeFAU/storefront-rank-tracker/internal/regions"
)

func newRegionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "Inspect the crawled regions",
	}
	cmd.AddCommand(newRegionsListCmd(), newRegionsProbeCmd())
	return cmd
}

func newRegionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the configured regions after per-country collapse",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := sessionFrom(cmd.Context())
			if err != nil {
				return err
			}
			for _, code := range rt.cfg.RegionCodes() {
				fmt.Fprintln(cmd.OutOrStdout(), code)
			}
			return nil
		},
	}
}

func newRegionsProbeCmd() *cobra.Command {
	var candidates []string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Find the locale codes whose listing page answers",
		Long: `Requests page 1 of every candidate locale and prints the codes that answered
200, collapsed to one code per country. The output can be pasted into
regions.codes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := sessionFrom(cmd.Context())
			if err != nil {
				return err
			}
			codes := regions.Candidates
			if len(candidates) > 0 {
				codes = make([]crawler.Region, 0, len(candidates))
				for _, c := range candidates {
					codes = append(codes, crawler.Region(c))
				}
			}
			fetcher := collyfetcher.New(collyfetcher.Config{
				UserAgent: rt.cfg.Crawler.UserAgent,
				Timeout:   rt.cfg.Crawler.PageTimeout,
			})
			defer func() { _ = fetcher.Close() }()

			throttle := ratelimit.New(ratelimit.Config{Delay: rt.cfg.Crawler.RequestDelay})
			valid, err := regions.Probe(cmd.Context(), fetcher, throttle, rt.cfg.Crawler.URLTemplate, codes, rt.logger.Named("probe"))
			if err != nil {
				return err
			}
			for _, code := range regions.Collapse(valid, rt.cfg.Regions.DefaultLanguage) {
				fmt.Fprintln(cmd.OutOrStdout(), code)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&candidates, "candidate", nil, "probe only these codes (repeatable)")
	return cmd
}
