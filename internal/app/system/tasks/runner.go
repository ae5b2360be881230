// internal/app/system/tasks/runner.go
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnknownJob is returned by RunOnce for a name that was never registered.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobBusy is returned by RunOnce while the same job is already running.
	ErrJobBusy = errors.New("job already running")
)

// Job is a periodic maintenance sweep over the visadesk collections.
type Job struct {
	Name string
	// Interval between runs. Zero keeps the job for RunOnce only.
	Interval time.Duration
	// StartDelay postpones the first run so sweeps do not all hit MongoDB
	// while the server is still warming up.
	StartDelay time.Duration
	// Timeout bounds a single run. Zero means only shutdown cancels it.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Observer is told the outcome of every run, scheduled or manual.
type Observer func(job string, took time.Duration, err error)

// Runner schedules the jobs and makes sure no job overlaps itself.
type Runner struct {
	logger   *zap.Logger
	observer Observer
	jobs     []Job

	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]struct{}
}

func New(logger *zap.Logger) *Runner {
	return &Runner{logger: logger, active: map[string]struct{}{}}
}

// SetObserver installs o. Call before Start.
func (r *Runner) SetObserver(o Observer) {
	r.observer = o
}

// Register adds jobs in order.
func (r *Runner) Register(jobs ...Job) {
	r.jobs = append(r.jobs, jobs...)
}

// Names lists the registered jobs in registration order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, j := range r.jobs {
		names = append(names, j.Name)
	}
	return names
}

// Start schedules every job that has an interval. Call Stop to shut down.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	scheduled := 0
	for _, job := range r.jobs {
		if job.Interval <= 0 {
			continue
		}
		scheduled++
		r.wg.Add(1)
		go r.loop(ctx, job)
	}
	r.logger.Info("background task runner started", zap.Int("job_count", scheduled))
}

// Stop cancels every job and waits for running ones to return. When ctx
// ends first it returns ctx.Err() and names the jobs still running.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("background task runner stopped gracefully")
		return nil
	case <-ctx.Done():
		r.logger.Warn("background task runner shutdown timed out",
			zap.Strings("jobs_still_running", r.running()))
		return ctx.Err()
	}
}

func (r *Runner) running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.active))
	for name := range r.active {
		out = append(out, name)
	}
	return out
}

func (r *Runner) loop(ctx context.Context, job Job) {
	defer r.wg.Done()

	if job.StartDelay > 0 {
		t := time.NewTimer(job.StartDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	r.tick(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("job stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			r.tick(ctx, job)
		}
	}
}

// tick runs a scheduled job, skipping the tick while a manual run of the
// same job is still going.
func (r *Runner) tick(ctx context.Context, job Job) {
	if err := r.execute(ctx, job); err != nil {
		switch {
		case errors.Is(err, ErrJobBusy):
			r.logger.Info("job skipped, previous run still going", zap.String("job", job.Name))
		case ctx.Err() != nil:
			r.logger.Debug("job cancelled during shutdown", zap.String("job", job.Name))
		default:
			r.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
		}
	}
}

// execute runs job once under its timeout. A panic is turned into an
// error so one bad sweep cannot take the API down.
func (r *Runner) execute(ctx context.Context, job Job) (err error) {
	r.mu.Lock()
	if _, busy := r.active[job.Name]; busy {
		r.mu.Unlock()
		if r.observer != nil {
			r.observer(job.Name, 0, ErrJobBusy)
		}
		return ErrJobBusy
	}
	r.active[job.Name] = struct{}{}
	r.mu.Unlock()

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, p)
		}
		took := time.Since(start)
		r.mu.Lock()
		delete(r.active, job.Name)
		r.mu.Unlock()
		if r.observer != nil {
			r.observer(job.Name, took, err)
		}
		r.logger.Debug("job finished", zap.String("job", job.Name), zap.Duration("duration", took))
	}()

	return job.Run(ctx)
}

// RunOnce runs the named job now, outside its schedule. It returns
// ErrJobBusy rather than running the job twice at once.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	for _, job := range r.jobs {
		if job.Name == name {
			return r.execute(ctx, job)
		}
	}
	return ErrUnknownJob
}
