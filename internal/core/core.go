package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/phonebill/runcfg/internal/console"
	"github.com/phonebill/runcfg/internal/launcher"
	"github.com/phonebill/runcfg/internal/project"
	"github.com/phonebill/runcfg/internal/runconfig"
	"github.com/phonebill/runcfg/internal/runner"
	"github.com/phonebill/runcfg/internal/telemetry"
	"github.com/phonebill/runcfg/pkg/api"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoConfigurations = eris.New("no execution configurations found")
	ErrNoServiceName    = eris.New("no service name given")
	ErrServiceNotFound  = eris.New("service not found")
	ErrNoTasks          = eris.New("no executable tasks")
	ErrHistoryDisabled  = eris.New("history is disabled")
)

// ExitError is a failure that has already been reported on the console.
// The caller only needs to exit with Code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func reported(err error) error { return &ExitError{Code: 1, Err: err} }

// Options select what a single invocation does.
type Options struct {
	Service string
	List    bool
	// Root overrides both the config file and the marker search.
	Root   string
	DryRun bool
	// EnvFile given on the command line must exist.
	EnvFile string
	// GracePeriod is passed to the runner. Zero uses its default.
	GracePeriod time.Duration
}

// Orchestrator locates the project, reads the run configurations and runs
// the selected service's tasks.
type Orchestrator struct {
	cfg     Config
	out     *console.Printer
	metrics *telemetry.Collector
	store   *Store
	goos    string
	baseEnv []string
}

// NewOrchestrator wires the pipeline. metrics and store may be nil.
func NewOrchestrator(cfg Config, out *console.Printer, metrics *telemetry.Collector, store *Store) *Orchestrator {
	return &Orchestrator{cfg: cfg, out: out, metrics: metrics, store: store, goos: runtime.GOOS}
}

func (o *Orchestrator) Health(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.store != nil {
		return o.store.Ping(ctx)
	}
	return nil
}

// Execute runs one invocation. Every failure it returns is an *ExitError.
func (o *Orchestrator) Execute(ctx context.Context, opts Options) error {
	root, err := o.resolveRoot(opts.Root)
	if err != nil {
		o.out.Error("Cannot determine project root: %v", err)
		return reported(err)
	}
	o.out.Info("Project root: %s", root)

	o.out.Info("Reading run configuration files...")
	catalog, problems := runconfig.Scan(root, o.cfg.Services)
	for _, p := range problems {
		o.reportProblem(p)
	}

	if catalog.Len() == 0 {
		o.out.Error("No execution configurations found")
		return reported(ErrNoConfigurations)
	}
	o.out.Info("Found %d execution configurations", catalog.Len())

	if opts.List {
		o.ListServices(catalog)
		return nil
	}

	if opts.Service == "" {
		o.out.Blank()
		o.out.Error("Please provide service name")
		o.ListServices(catalog)
		o.out.Plain("Usage: runcfg <service-name>")
		o.out.Plain("       runcfg --list")
		return reported(ErrNoServiceName)
	}

	cfg, ok := catalog.Get(opts.Service)
	if !ok {
		o.out.Info("Trying to find configuration for '%s'...", opts.Service)
		targeted, err := runconfig.Load(root, opts.Service)
		switch {
		case eris.Is(err, runconfig.ErrConfigNotFound):
			o.out.Error("Cannot find run configuration: %s", runconfig.Path(root, opts.Service))
		case err != nil:
			o.reportProblem(err)
		}
		cfg, ok = targeted.Get(opts.Service)
	}
	if !ok {
		o.out.Error("Cannot find '%s' service", opts.Service)
		o.ListServices(catalog)
		return reported(ErrServiceNotFound)
	}

	if len(cfg.Tasks) == 0 {
		o.out.Error("No executable tasks found for '%s' service", opts.Service)
		return reported(ErrNoTasks)
	}

	cfg, err = o.applyEnvFile(cfg, opts.EnvFile)
	if err != nil {
		o.out.Error("Cannot read env file: %v", err)
		return reported(err)
	}

	command := o.cfg.Launcher
	if command == "" {
		command = launcher.Resolve(root, o.goos)
	}

	o.out.Blank()
	o.out.Target("Starting '%s' service execution", opts.Service)
	o.out.Rule(50)

	var recorder runner.Recorder
	if o.store != nil && !opts.DryRun {
		recorder = o.store
	}
	r := runner.New(runner.Options{
		Command:     command,
		Dir:         root,
		Env:         o.baseEnv,
		DryRun:      opts.DryRun,
		GracePeriod: opts.GracePeriod,
	}, o.out, o.metrics, recorder)

	res := r.Run(ctx, cfg)
	o.flushMetrics(ctx)

	log.Debug().
		Str("run_id", res.RunID).
		Str("service", opts.Service).
		Str("status", string(res.Status)).
		Strs("completed", res.Completed).
		Msg("run finished")

	if res.Err != nil {
		o.out.Blank()
		o.out.Failed("Failed to start '%s' service", opts.Service)
		return reported(res.Err)
	}

	o.out.Blank()
	o.out.Complete("'%s' service started successfully!", opts.Service)
	return nil
}

// ListServices prints every service that has at least one task.
func (o *Orchestrator) ListServices(catalog *runconfig.Catalog) {
	o.out.Blank()
	o.out.List("Available services:")
	o.out.Rule(40)
	for _, name := range catalog.Names() {
		cfg, _ := catalog.Get(name)
		if len(cfg.Tasks) == 0 {
			continue
		}
		o.out.Plain("  [SERVICE] %s", name)
		if cfg.SourcePath != "" {
			o.out.Plain("     +-- Config: %s", cfg.SourcePath)
		}
		for _, task := range cfg.Tasks {
			o.out.Plain("     +-- Task: %s", task)
		}
		o.out.Plain("     +-- %d environment variables", len(cfg.Env))
		o.out.Blank()
	}
}

func (o *Orchestrator) resolveRoot(override string) (string, error) {
	if override == "" {
		override = o.cfg.Root
	}
	if override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", eris.Wrapf(err, "invalid root %s", override)
		}
		return abs, nil
	}

	root, err := project.Default(o.cfg.Markers)
	if err != nil {
		return "", err
	}
	if !root.Found {
		log.Warn().Strs("markers", o.cfg.Markers).Str("root", root.Path).Msg("no project marker found, using fallback root")
		o.out.Warning("No %s found, assuming project root %s", strings.Join(o.cfg.Markers, " or "), root.Path)
	}
	return root.Path, nil
}

func (o *Orchestrator) reportProblem(err error) {
	if eris.Is(err, runconfig.ErrNoGradleConfiguration) {
		o.out.Warning("%v", err)
		return
	}
	var perr *runconfig.ParseError
	if errors.As(err, &perr) {
		o.out.Error("%s", perr.Error())
		return
	}
	o.out.Error("Error reading run configuration: %v", err)
}

// applyEnvFile returns cfg with the env file overlaid on its Env. A file
// named only in the config may be absent.
func (o *Orchestrator) applyEnvFile(cfg *api.RunConfiguration, flagPath string) (*api.RunConfiguration, error) {
	path, explicit := flagPath, flagPath != ""
	if !explicit {
		path = o.cfg.EnvFile
	}
	if path == "" {
		return cfg, nil
	}

	vars, err := LoadEnvFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("path", path).Msg("configured env file not found, skipping")
			return cfg, nil
		}
		return nil, err
	}

	merged := *cfg
	merged.Env = make(map[string]string, len(cfg.Env)+len(vars))
	for k, v := range cfg.Env {
		merged.Env[k] = v
	}
	for k, v := range vars {
		merged.Env[k] = v
	}
	log.Debug().Str("path", path).Int("vars", len(vars)).Msg("env file applied")
	return &merged, nil
}

func (o *Orchestrator) flushMetrics(ctx context.Context) {
	if !o.metrics.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.metrics.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to export metrics")
	}
}

// History prints the most recent task executions.
func (o *Orchestrator) History(ctx context.Context, service string, limit int) error {
	if o.store == nil {
		return ErrHistoryDisabled
	}
	records, err := o.store.Recent(ctx, service, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		o.out.Info("No task executions recorded")
		return nil
	}
	o.out.Plain("STARTED\tSERVICE\tTASK\tSTATUS\tEXIT\tDURATION")
	for _, r := range records {
		o.out.Plain("%s\t%s\t%s\t%s\t%d\t%s",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Service, r.Task, r.Status, r.ExitCode, r.Duration.Round(time.Millisecond))
	}
	return nil
}
