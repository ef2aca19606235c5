package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"factcalc/pkg/core/app"
	"factcalc/pkg/core/config"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	format  string
	verbose bool
}

// servicesFunc builds the collaborators a command needs. Tests replace it
// to serve canned documents.
type servicesFunc func(ctx context.Context, logger *slog.Logger) (*app.Services, error)

func loadServices(ctx context.Context, logger *slog.Logger) (*app.Services, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, logger, nil)
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(loadServices)
}

func newRootCmd(build servicesFunc) *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "factcalc",
		Short: "Cited financial facts and safe formula evaluation",
		Long: `factcalc resolves financial facts from SEC XBRL company facts and
evaluates metric formulas over them. Every value is cited back to the
filing it came from, and all inputs of a calculation come from one filing.

Configuration is read from the environment (and a .env file). SEC_USER_AGENT
must name a contact, e.g. "Example Corp admin@example.com".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.format {
			case "text", "json":
				return nil
			}
			return fmt.Errorf("format must be text or json, got %q", opts.format)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "Output format: text or json")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log resolver and engine activity to stderr")

	env := &commandEnv{opts: opts, build: build}
	cmd.AddCommand(
		newMetricCmd(env),
		newExplainCmd(env),
		newFactCmd(env),
		newMetricsCmd(env),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// commandEnv carries what subcommands share.
type commandEnv struct {
	opts  *globalOptions
	build servicesFunc
}

func (e *commandEnv) logger(stderr io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if e.opts.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// services builds the collaborators and returns a release func.
func (e *commandEnv) services(cmd *cobra.Command) (*app.Services, func(), error) {
	s, err := e.build(cmd.Context(), e.logger(cmd.ErrOrStderr()))
	if err != nil {
		return nil, nil, fmt.Errorf("initializing services: %w", err)
	}
	return s, s.Close, nil
}
