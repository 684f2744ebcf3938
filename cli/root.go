package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/santif/pgbridge/bridge"
	"github.com/santif/pgbridge/config"
	"github.com/santif/pgbridge/data"
	"github.com/santif/pgbridge/observability"
)

// app holds the state shared by the commands of one invocation
type app struct {
	configFile   string
	envFile      string
	printMetrics bool
	flags        *config.FlagSource

	cfg     *config.Config
	logger  observability.Logger
	metrics observability.Metrics
	tracer  observability.Tracer
}

// NewRootCommand builds the pgbridge command tree
func NewRootCommand() *cobra.Command {
	a := &app{
		flags: config.NewFlagSource(
			config.WithFlagKey("log-level", "logger.level"),
			config.WithFlagKey("log-format", "logger.format"),
		),
	}

	rootCmd := &cobra.Command{
		Use:   "pgbridge",
		Short: "pgbridge - run PostgreSQL statements through the handle bridge",
		Long: `pgbridge runs statements through the same handle-based bridge that
the C library exposes, which makes it handy for checking connectivity,
parameter encoding and configuration.

Configuration is read from a yaml, json or toml file (--config),
PGBRIDGE_* environment variables and flags, in increasing priority.
Without a DSN, Postgres drivers connect using the PG* variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.shutdown(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Configuration file (yaml, json or toml)")
	flags.StringVar(&a.envFile, "env-file", "", "Load environment variables from a .env file")
	flags.BoolVar(&a.printMetrics, "print-metrics", false, "Print metrics to stderr when done")
	flags.String("dsn", "", "Connection string")
	flags.String("driver", "", "Database driver ("+strings.Join(data.NewRegistry().Names(), ", ")+")")
	flags.String("encoding-policy", "", "Handling of unknown parameter types (lenient, strict)")
	flags.Duration("statement-timeout", 0, "Bound on each statement, 0 for none")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (json, text)")
	a.flags.AddToCommand(rootCmd)

	rootCmd.AddCommand(newQueryCommand(a))
	rootCmd.AddCommand(newExecCommand(a))
	rootCmd.AddCommand(newConfigCommand(a))

	return rootCmd
}

// Execute executes the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// init loads the configuration and builds the observability stack
func (a *app) init(cmd *cobra.Command) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			return fmt.Errorf("loading env file: %w", err)
		}
	}

	manager := config.NewManager(
		config.WithSource(config.NewEnvSource(config.EnvPrefix)),
		config.WithSource(a.flags),
	)
	if a.configFile != "" {
		manager.AddSource(config.NewFileSource(a.configFile, ""))
	}

	cfg := config.Default()
	if err := manager.Load(cfg); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	a.cfg = cfg

	obs := cfg.Observability()
	a.logger = observability.NewLoggerWithWriter(cmd.ErrOrStderr(), obs.Logger)
	a.metrics = observability.NewMetricsWithConfig(obs.Metrics)

	tracer, err := observability.NewTracerWithConfig(obs.Tracing)
	if err != nil {
		return fmt.Errorf("creating tracer: %w", err)
	}
	a.tracer = tracer

	return nil
}

func (a *app) shutdown(cmd *cobra.Command) error {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			a.logger.Error("tracer shutdown failed", err)
		}
	}
	if a.printMetrics && a.metrics != nil {
		return observability.WriteText(cmd.ErrOrStderr(), a.metrics)
	}
	return nil
}

// newBridge creates a bridge wired to the invocation's logger, metrics and tracer
func (a *app) newBridge() (*bridge.Bridge, error) {
	return bridge.New(a.cfg,
		bridge.WithLogger(a.logger),
		bridge.WithMetrics(a.metrics),
		bridge.WithTracer(a.tracer),
	)
}
