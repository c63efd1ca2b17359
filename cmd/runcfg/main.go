package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/phonebill/runcfg/internal/console"
	"github.com/phonebill/runcfg/internal/core"
	"github.com/phonebill/runcfg/internal/telemetry"
)

var (
	version   = "1.0.0"
	commit    = ""
	buildDate = ""
)

// Create the root command
func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runcfg [service-name]",
		Short: "Run the Gradle tasks of a service's IntelliJ run configuration",
		Long: "runcfg reads <service>/.run/<service>.run.xml below the project root and runs its\n" +
			"Gradle tasks one after another with the configured environment.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			opts := core.Options{}
			if len(args) > 0 {
				opts.Service = args[0]
			}
			opts.List, _ = cmd.Flags().GetBool("list")
			opts.Root, _ = cmd.Flags().GetString("root")
			opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
			opts.EnvFile, _ = cmd.Flags().GetString("env-file")
			opts.GracePeriod, _ = cmd.Flags().GetDuration("grace-period")
			return a.orchestrator().Execute(cmd.Context(), opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("log-level", "warn", "Set log level. Available: trace, debug, info, warn, error, fatal")
	cmd.PersistentFlags().String("config", "", "config file (default $XDG_CONFIG_HOME/runcfg/config.yaml)")
	cmd.PersistentFlags().Bool("no-color", false, "Disable coloured output")

	cmd.Flags().BoolP("list", "l", false, "List available services")
	cmd.Flags().String("root", "", "Project root (skips the gradlew search)")
	cmd.Flags().Bool("dry-run", false, "Print the commands without running them")
	cmd.Flags().String("env-file", "", "KEY=VALUE file applied on top of the run configuration env")
	cmd.Flags().Duration("grace-period", 0, "Time an interrupted task gets to exit before it is killed (default 10s)")

	cmd.PersistentPreRun = func(c *cobra.Command, args []string) {
		levelStr, _ := c.Flags().GetString("log-level")
		zerolog.SetGlobalLevel(parseLevel(levelStr))
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newHistoryCmd(a))
	return cmd
}

func parseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.WarnLevel
	}
}

// Create the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "runcfg %s (%s) %s\n", version, commit, buildDate)
		},
	}
}

// Setup the logger
func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout io.Writer) int {
	a := &app{stdout: stdout}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exitErr *core.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	a.console().Error("Unexpected error occurred: %v", err)
	return 1
}

// Main entry point
func main() {
	setupLogger()
	telemetry.ServiceVersion = version

	ctx, stop := interruptContext(context.Background())
	code := execute(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// interruptContext is cancelled by the first SIGINT or SIGTERM. The default
// handlers are restored right after, so a second signal ends runcfg while
// the running task is still inside its grace period.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

// app holds what the commands share once flags and config are known.
type app struct {
	stdout  io.Writer
	printer *console.Printer
	cfg     core.Config
	store   *core.Store
	metrics *telemetry.Collector
}

func (a *app) setup(cmd *cobra.Command) error {
	noColor, _ := cmd.Flags().GetBool("no-color")
	color := false
	if f, ok := a.stdout.(*os.File); ok && !noColor {
		color = console.ColorEnabled(f)
	}
	a.printer = console.New(a.stdout, color)

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := core.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	log.Debug().Str("root", cfg.Root).Strs("services", cfg.Services).Msg("configuration loaded")

	a.metrics = telemetry.NewCollector(cfg.Telemetry.Enabled, cfg.Telemetry.OTLPEndpoint)
	if cfg.History.Enabled {
		store, err := core.NewStore(cfg.History.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.History.Path).Msg("run history disabled")
		} else {
			a.store = store
		}
	}
	return nil
}

func (a *app) orchestrator() *core.Orchestrator {
	return core.NewOrchestrator(a.cfg, a.printer, a.metrics, a.store)
}

func (a *app) console() *console.Printer {
	if a.printer == nil {
		a.printer = console.New(a.stdout, false)
	}
	return a.printer
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close history store")
	}
}
