package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/storefront-rank-tracker/internal/app"
	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/tracking"
)

func newTrackedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracked",
		Short: "Manage the tracked-item registry",
	}
	cmd.AddCommand(
		newTrackedListCmd(),
		newTrackedAddCmd(),
		newTrackedRemoveCmd(),
		newTrackedRegionCmd(),
	)
	return cmd
}

// editRegistry loads the effective registry, applies edit and saves the
// result. A first edit on a fresh install keeps the configured patterns.
func editRegistry(cmd *cobra.Command, edit func(tracking.Registry) tracking.Registry) error {
	rt, err := sessionFrom(cmd.Context())
	if err != nil {
		return err
	}
	reg, err := app.EffectiveRegistry(rt.cfg)
	if err != nil {
		return err
	}
	updated := edit(reg)
	if err := tracking.SaveRegistry(rt.cfg.Tracking.RegistryFile, updated); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d tracked items, %d tracked regions\n", len(updated.Items), len(updated.Regions))
	return nil
}

func newTrackedListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the tracked patterns and region restriction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := sessionFrom(cmd.Context())
			if err != nil {
				return err
			}
			reg, err := app.EffectiveRegistry(rt.cfg)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATTERN\tNAME")
			for _, item := range reg.Items {
				fmt.Fprintf(tw, "%s\t%s\n", item.MatchPattern, item.Name())
			}
			if err := tw.Flush(); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			regions := "all"
			if len(reg.Regions) > 0 {
				parts := make([]string, 0, len(reg.Regions))
				for _, r := range reg.Regions {
					parts = append(parts, string(r))
				}
				regions = strings.Join(parts, ", ")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "regions: %s\n", regions)
			return nil
		},
	}
}

func newTrackedAddCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add PATTERN...",
		Short: "Track titles whose identifier contains PATTERN",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name != "" && len(args) > 1 {
				return fmt.Errorf("%w: --name applies to a single pattern", crawler.ErrConfig)
			}
			for _, p := range args {
				if tracking.Normalize(p) == "" {
					return fmt.Errorf("%w: pattern %q has no letters or digits", crawler.ErrConfig, p)
				}
			}
			return editRegistry(cmd, func(reg tracking.Registry) tracking.Registry {
				for _, p := range args {
					reg = reg.AddItem(tracking.TrackedItem{CanonicalName: name, MatchPattern: strings.TrimSpace(p)})
				}
				return reg
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "canonical name reported for the pattern")
	return cmd
}

func newTrackedRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove PATTERN...",
		Short: "Stop tracking PATTERN",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editRegistry(cmd, func(reg tracking.Registry) tracking.Registry {
				for _, p := range args {
					reg = reg.RemoveItem(p)
				}
				return reg
			})
		},
	}
}

func newTrackedRegionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "region",
		Short: "Restrict tracking to some regions; an empty list tracks all",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add CODE...",
			Short: "Add regions to the tracking restriction",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return editRegistry(cmd, func(reg tracking.Registry) tracking.Registry {
					for _, c := range args {
						reg = reg.AddRegion(crawler.Region(strings.TrimSpace(c)))
					}
					return reg
				})
			},
		},
		&cobra.Command{
			Use:   "remove CODE...",
			Short: "Remove regions from the tracking restriction",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return editRegistry(cmd, func(reg tracking.Registry) tracking.Registry {
					for _, c := range args {
						reg = reg.RemoveRegion(crawler.Region(strings.TrimSpace(c)))
					}
					return reg
				})
			},
		},
	)
	return cmd
}
