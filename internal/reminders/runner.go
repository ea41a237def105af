package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	jobmetrics "github.com/odyssey-erp/accountkit/internal/jobs"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// RunJob runs fn with logging, panic recovery and metrics. The returned error
// is informational; callers looping over jobs keep going.
func RunJob(ctx context.Context, logger *slog.Logger, metrics *jobmetrics.Metrics, name string, fn Job) (err error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", name))
	tracker := metrics.Track(name)
	start := time.Now()
	logger.Info("job started")

	defer func() {
		if r := recover(); r != nil {
			tracker.Panicked()
			err = fmt.Errorf("reminders: job %s panicked: %v", name, r)
			logger.Error("job panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
		err = tracker.End(err)
		if err != nil {
			logger.Error("job failed", slog.Any("error", err), slog.Duration("duration", time.Since(start)))
			return
		}
		logger.Info("job finished", slog.Duration("duration", time.Since(start)))
	}()

	return fn(ctx)
}

// Mode selects whether the runner repeats the job.
type Mode int

const (
	// ModeLoop reruns the job every Interval until the context ends.
	ModeLoop Mode = iota
	// ModeOnce runs the job a single time.
	ModeOnce
)

func (m Mode) String() string {
	if m == ModeOnce {
		return "once"
	}
	return "loop"
}

const defaultInterval = time.Hour

// RunnerConfig configures Runner.
type RunnerConfig struct {
	Mode     Mode
	Interval time.Duration
	Name     string
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Runner drives a Job on a fixed interval.
type Runner struct {
	job Job
	cfg RunnerConfig
}

// NewRunner constructs a Runner.
func NewRunner(job Job, cfg RunnerConfig) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Name == "" {
		cfg.Name = JobName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{job: job, cfg: cfg}
}

// Run executes the job until the mode or ctx stops it. In once mode the job
// error is returned; in loop mode Run returns nil after cancellation.
func (r *Runner) Run(ctx context.Context) error {
	for {
		err := RunJob(ctx, r.cfg.Logger, r.cfg.Metrics, r.cfg.Name, r.job)
		if r.cfg.Mode == ModeOnce {
			return err
		}

		r.cfg.Logger.Info("done sending reminder emails, sleeping", slog.Duration("interval", r.cfg.Interval))
		timer := time.NewTimer(r.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
