// Package runner executes the Gradle tasks of a run configuration one after
// another, relaying the build output and stopping at the first failure.
package runner

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/phonebill/runcfg/internal/console"
	"github.com/phonebill/runcfg/internal/telemetry"
	"github.com/phonebill/runcfg/pkg/api"
	"github.com/rs/zerolog/log"
)

// DefaultGracePeriod is how long an interrupted task may take to exit
// after SIGTERM before it is killed.
const DefaultGracePeriod = 10 * time.Second

// Execution describes one finished task.
type Execution struct {
	RunID     string
	Service   string
	Task      string
	Status    api.RunStatus
	ExitCode  int
	StartedAt time.Time
	Duration  time.Duration
}

// Recorder receives every finished task execution.
type Recorder interface {
	RecordExecution(ctx context.Context, e Execution) error
}

// Options configure a Runner.
type Options struct {
	// Command is the resolved launcher, e.g. /path/to/gradlew or gradle.
	Command string
	// Dir is the working directory of every task, the project root.
	Dir string
	// Env is the base environment. Nil means os.Environ().
	Env []string
	// DryRun prints the commands without running them.
	DryRun bool
	// GracePeriod overrides DefaultGracePeriod when positive.
	GracePeriod time.Duration
}

// Result is the outcome of a Run.
type Result struct {
	RunID     string
	Status    api.RunStatus
	Completed []string
	// Task and ExitCode describe the task that stopped the run.
	Task     string
	ExitCode int
	Err      error
}

type Runner struct {
	opts     Options
	out      *console.Printer
	metrics  *telemetry.Collector
	recorder Recorder
}

// New creates a Runner. metrics and recorder may be nil.
func New(opts Options, out *console.Printer, metrics *telemetry.Collector, recorder Recorder) *Runner {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	return &Runner{opts: opts, out: out, metrics: metrics, recorder: recorder}
}

// Run executes cfg.Tasks in order with cfg.Env overlaid on the base
// environment. The first task that fails, cannot be started or is
// interrupted ends the run; later tasks are never started.
func (r *Runner) Run(ctx context.Context, cfg *api.RunConfiguration) Result {
	res := Result{RunID: uuid.NewString(), Status: api.RunRunning}

	r.out.Start("Starting %s service...", cfg.Service)

	for _, k := range cfg.EnvKeys() {
		r.out.Env("%s=%s", k, cfg.Env[k])
	}

	base := r.opts.Env
	if base == nil {
		base = os.Environ()
	}
	env := MergeEnv(base, cfg.Env)

	for _, task := range cfg.Tasks {
		r.out.Blank()
		r.out.Run("Executing: %s", task)

		if r.opts.DryRun {
			r.out.Cmd("Command: %s %s", r.opts.Command, task)
			r.out.Dir("Working directory: %s", r.opts.Dir)
			res.Completed = append(res.Completed, task)
			continue
		}

		te := r.runTask(ctx, res.RunID, cfg.Service, task, env)
		r.record(ctx, te)

		r.out.Blank()
		if te.Status == api.RunSucceeded {
			r.out.Success("%s execution completed", task)
			res.Completed = append(res.Completed, task)
			continue
		}

		switch te.Status {
		case api.RunInterrupted:
			res.Err = ErrInterrupted
			r.out.Stop("Interrupted by user")
		case api.RunSpawnError:
			res.Err = te.err
			r.out.Error("Execution error: %v", te.err)
		default:
			res.Err = &TaskFailedError{Task: task, ExitCode: te.ExitCode}
			r.out.Failed("%s execution failed (exit code: %d)", task, te.ExitCode)
		}

		res.Status = te.Status
		res.Task = task
		res.ExitCode = te.ExitCode
		return res
	}

	res.Status = api.RunSucceeded
	return res
}

type taskExecution struct {
	Execution
	err error
}

func (r *Runner) runTask(ctx context.Context, runID, service, task string, env []string) (result taskExecution) {
	labels := map[string]string{"service": service, "task": task}
	result = taskExecution{Execution: Execution{
		RunID:     runID,
		Service:   service,
		Task:      task,
		ExitCode:  -1,
		StartedAt: time.Now(),
	}}
	defer func() { result.Duration = time.Since(result.StartedAt) }()

	if ctx.Err() != nil {
		result.Status = api.RunInterrupted
		return result
	}

	cmd := exec.CommandContext(ctx, r.opts.Command, task)
	cmd.Dir = r.opts.Dir
	cmd.Env = env
	cmd.Cancel = func() error {
		if runtime.GOOS == "windows" {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.opts.GracePeriod

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	r.metrics.Counter(telemetry.TaskStarted, 1, labels)
	timer := r.metrics.StartTimer(telemetry.TaskDuration, labels)

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		result.Status = api.RunSpawnError
		result.err = &SpawnError{Task: task, Command: r.opts.Command, Err: err}
		r.metrics.Counter(telemetry.TaskFailed, 1, labels)
		return result
	}

	r.out.Cmd("Command: %s %s", r.opts.Command, task)
	r.out.Dir("Working directory: %s", r.opts.Dir)
	r.out.Rule(50)

	log.Debug().Int("pid", cmd.Process.Pid).Str("task", task).Msg("task started")

	relayed := make(chan int, 1)
	go func() {
		relayed <- relay(pr, r.out)
	}()

	err := cmd.Wait()
	pw.Close()
	lines := <-relayed
	timer.End()
	r.metrics.Gauge(telemetry.OutputLines, float64(lines), labels)

	switch {
	case ctx.Err() != nil:
		result.Status = api.RunInterrupted
		if cmd.ProcessState != nil {
			result.ExitCode = cmd.ProcessState.ExitCode()
		}
	case err == nil, errors.Is(err, exec.ErrWaitDelay):
		result.Status = api.RunSucceeded
		result.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.Status = api.RunFailed
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.Status = api.RunSpawnError
			result.err = &SpawnError{Task: task, Command: r.opts.Command, Err: err}
		}
	}

	if result.Status == api.RunSucceeded {
		r.metrics.Counter(telemetry.TaskSucceeded, 1, labels)
	} else {
		r.metrics.Counter(telemetry.TaskFailed, 1, labels)
	}

	log.Debug().
		Str("task", task).
		Str("status", string(result.Status)).
		Int("exit_code", result.ExitCode).
		Int("lines", lines).
		Msg("task finished")

	return result
}

func (r *Runner) record(ctx context.Context, te taskExecution) {
	if r.recorder == nil {
		return
	}
	// the run context may already be cancelled; history is still written
	if err := r.recorder.RecordExecution(context.WithoutCancel(ctx), te.Execution); err != nil {
		log.Warn().Err(err).Str("task", te.Task).Msg("failed to record task execution")
	}
}

// relay copies rd to out line by line until EOF and returns the line count.
func relay(rd io.Reader, out *console.Printer) int {
	br := bufio.NewReader(rd)
	n := 0
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.ToValidUTF8(line, "\uFFFD")
			out.Line(strings.TrimRightFunc(line, unicode.IsSpace))
			n++
		}
		if err != nil {
			return n
		}
	}
}
