// Package cmd defines the CLI commands of the rank tracker.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-rank-tracker/internal/app"
	"github.com/JakeFAU/storefront-rank-tracker/internal/config"
	"github.com/JakeFAU/storefront-rank-tracker/internal/logging"
	"github.com/JakeFAU/storefront-rank-tracker/internal/telemetry"
)

// version is stamped at build time with -ldflags "-X ...cmd.version=...".
var version = "dev"

type sessionKey struct{}

// session is what PersistentPreRunE hands to every subcommand.
type session struct {
	cfg    config.Config
	logger *zap.Logger
	tracer *sdktrace.TracerProvider
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "rank-tracker",
		Short: "Tracks storefront pre-order rankings across regions.",
		Long: `rank-tracker crawls the storefront pre-order listing of every configured
region, stores a dated snapshot per region and keeps the rank history of the
tracked titles. It also serves the stored data over a read-only HTTP API.`,
		SilenceUsage: true,
		Version:      version,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			tp, err := telemetry.InitTracerProvider(cmd.Context(), telemetry.ServiceName, version)
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), sessionKey{}, &session{cfg: cfg, logger: logger, tracer: tp}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			rt, ok := cmd.Context().Value(sessionKey{}).(*session)
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 5*time.Second)
			defer cancel()
			if err := rt.tracer.Shutdown(ctx); err != nil {
				rt.logger.Warn("tracer shutdown failed", zap.Error(err))
			}
			_ = rt.logger.Sync() //nolint:errcheck // best-effort flush
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment uses the RANKCRAWLER_ prefix")

	cmd.AddCommand(
		newCrawlCmd(),
		newServeCmd(),
		newRebuildCmd(),
		newRegionsCmd(),
		newTrackedCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func sessionFrom(ctx context.Context) (*session, error) {
	rt, ok := ctx.Value(sessionKey{}).(*session)
	if !ok || rt == nil {
		return nil, errors.New("config not loaded")
	}
	return rt, nil
}

// withApp opens the storage-backed App for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	rt, err := sessionFrom(cmd.Context())
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			rt.logger.Warn("close services", zap.Error(cerr))
		}
	}()
	return fn(cmd.Context(), a)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
