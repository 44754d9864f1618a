package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wilot/weather-station/internal/app"
	"github.com/wilot/weather-station/internal/config"
	"github.com/wilot/weather-station/internal/logging"
)

const appName = "weatherstation"

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// cli carries what every subcommand needs once the persistent pre-run has
// loaded the configuration.
type cli struct {
	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           appName,
		Short:         "Weather station sampler and ingest server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "config error: %v\n", err)
				return err
			}
			c.cfg = cfg
			c.logger = logging.New(cfg, version, appName)
			slog.SetDefault(c.logger)
			c.logger.Info("starting",
				"command", cmd.Name(),
				"version", version,
				"env", cfg.AppEnv,
				"log_level", cfg.LogLevel.String(),
			)
			return nil
		},
	}

	root.AddCommand(
		c.runCmd(),
		c.ingestCmd(),
		c.migrateCmd(),
		c.decodeCmd(),
	)
	return root
}

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sample the sensors and publish a record every period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.finish(app.RunStation(cmd.Context(), c.cfg, c.logger))
		},
	}
}

func (c *cli) ingestCmd() *cobra.Command {
	var opts app.IngestOptions
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Store published records in SQLite and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.finish(app.RunIngest(cmd.Context(), c.cfg, opts, c.logger))
		},
	}
	cmd.Flags().BoolVar(&opts.SetupTest, "setup-test", false,
		"recreate test_weather_data with one dummy row and log it before subscribing")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applied, err := app.Migrate(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return c.finish(err)
			}
			c.logger.Info("migrations applied", "count", len(applied))
			return nil
		},
	}
}

func (c *cli) decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode one published payload given as hex",
		Example: `  weatherstation decode 78563412D4E1D5670000000000...
  weatherstation decode "78 56 34 12 ..."`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			rec, layout, err := app.DecodeHex(args[0])
			if err != nil {
				return c.finish(err)
			}
			c.logger.Info("decoded record", "layout", layout, "record", rec, "time", rec.Time())
			return nil
		},
	}
}

// finish logs a failure the way every subcommand reports it. Cancellation
// by signal is a clean exit.
func (c *cli) finish(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		c.logger.Info("shutting down")
		return nil
	}
	c.logger.Error("run failed", "err", err)
	return err
}
