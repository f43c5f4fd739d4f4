package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"github.com/kursadbilgin/risk-alert-engine/internal/lock"
	"github.com/kursadbilgin/risk-alert-engine/internal/observability"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is one self-contained unit of scheduled work.
type JobFunc func(ctx context.Context) (RunSummary, error)

type Job struct {
	Name string
	Spec string
	Run  JobFunc
}

type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Scheduled bool       `json:"scheduled"`
	Running   bool       `json:"running"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

type SchedulerStatus struct {
	TotalJobs int         `json:"totalJobs"`
	Jobs      []JobStatus `json:"jobs"`
}

type registeredJob struct {
	name     string
	spec     string
	schedule cron.Schedule
	run      JobFunc

	// slot holds one token while the job executes.
	slot chan struct{}

	entryID   cron.EntryID
	scheduled bool
	running   bool
	lastRunAt *time.Time
	lastError string
}

// JobRegistry owns the named periodic jobs. The same job never runs twice
// at once; different jobs may overlap.
type JobRegistry struct {
	cron    *cron.Cron
	locker  lock.Locker
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	jobs    map[string]*registeredJob
	baseCtx context.Context
}

func NewJobRegistry(
	location *time.Location,
	locker lock.Locker,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*JobRegistry, error) {
	if location == nil {
		location = time.UTC
	}
	if locker == nil {
		locker = lock.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &JobRegistry{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(cronLogger{logger: logger.Sugar()}),
		),
		locker:  locker,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		jobs:    make(map[string]*registeredJob),
		baseCtx: context.Background(),
	}, nil
}

// Register adds a job without scheduling it.
func (r *JobRegistry) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("%w: job name and function are required", domain.ErrValidation)
	}
	schedule, err := cron.ParseStandard(job.Spec)
	if err != nil {
		return fmt.Errorf("%w: invalid schedule %q for job %s: %v", domain.ErrValidation, job.Spec, job.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Name]; exists {
		return fmt.Errorf("%w: job %s already registered", domain.ErrValidation, job.Name)
	}
	r.jobs[job.Name] = &registeredJob{
		name:     job.Name,
		spec:     job.Spec,
		schedule: schedule,
		run:      job.Run,
		slot:     make(chan struct{}, 1),
	}
	return nil
}

// Start puts a registered job on its calendar. Starting a scheduled job is
// a no-op.
func (r *JobRegistry) Start(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[name]
	if !ok {
		return jobNotFound(name)
	}
	if job.scheduled {
		return nil
	}

	job.entryID = r.cron.Schedule(job.schedule, cron.FuncJob(func() {
		r.tick(job)
	}))
	job.scheduled = true
	r.logger.Info("job scheduled", zap.String("job", name), zap.String("schedule", job.spec))
	return nil
}

// Stop takes a job off its calendar. A run in progress finishes normally.
func (r *JobRegistry) Stop(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[name]
	if !ok {
		return jobNotFound(name)
	}
	r.unschedule(job)
	return nil
}

// Destroy stops a job and forgets it.
func (r *JobRegistry) Destroy(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[name]
	if !ok {
		return jobNotFound(name)
	}
	r.unschedule(job)
	delete(r.jobs, name)
	r.logger.Info("job destroyed", zap.String("job", name))
	return nil
}

func (r *JobRegistry) StartAll() error {
	for _, name := range r.names() {
		if err := r.Start(name); err != nil {
			return err
		}
	}
	return nil
}

// RunNow executes a job immediately, waiting for an in-progress run of the
// same job to finish first.
func (r *JobRegistry) RunNow(ctx context.Context, name string) (RunSummary, error) {
	return r.RunWith(ctx, name, nil)
}

// RunWith executes run in place of the registered function of job name. It
// holds the same per-job slot and distributed lock as scheduled ticks, so a
// manual trigger with overrides never overlaps a scheduled run. A nil run
// uses the registered function.
func (r *JobRegistry) RunWith(ctx context.Context, name string, run JobFunc) (RunSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	job, err := r.lookup(name)
	if err != nil {
		return RunSummary{}, err
	}
	if run == nil {
		run = job.run
	}

	select {
	case job.slot <- struct{}{}:
	case <-ctx.Done():
		return RunSummary{}, ctx.Err()
	}
	defer func() { <-job.slot }()

	return r.execute(ctx, job, run)
}

func (r *JobRegistry) Status() SchedulerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := SchedulerStatus{
		TotalJobs: len(r.jobs),
		Jobs:      make([]JobStatus, 0, len(r.jobs)),
	}
	for _, job := range r.jobs {
		js := JobStatus{
			Name:      job.name,
			Schedule:  job.spec,
			Scheduled: job.scheduled,
			Running:   job.running,
			LastRunAt: job.lastRunAt,
			LastError: job.lastError,
		}
		if job.scheduled {
			if next := r.cron.Entry(job.entryID).Next; !next.IsZero() {
				js.NextRun = &next
			}
		}
		status.Jobs = append(status.Jobs, js)
	}
	sort.Slice(status.Jobs, func(i, j int) bool {
		return status.Jobs[i].Name < status.Jobs[j].Name
	})
	return status
}

// Run drives the calendar until ctx is done, then waits for scheduled runs
// in progress to finish.
func (r *JobRegistry) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	r.baseCtx = context.WithoutCancel(ctx)
	r.mu.Unlock()

	r.cron.Start()
	r.logger.Info("scheduler started", zap.Int("jobs", len(r.names())))

	<-ctx.Done()

	<-r.cron.Stop().Done()
	r.logger.Info("scheduler stopped")
	return nil
}

// tick is the calendar entry point. It skips when the previous run of the
// same job has not finished yet.
func (r *JobRegistry) tick(job *registeredJob) {
	select {
	case job.slot <- struct{}{}:
	default:
		r.logger.Warn("previous run still in progress, skipping tick", zap.String("job", job.name))
		r.metrics.ObserveJobRun(job.name, "busy", 0)
		return
	}
	defer func() { <-job.slot }()

	r.mu.Lock()
	ctx := r.baseCtx
	r.mu.Unlock()

	// Errors are already logged and recorded by execute.
	_, _ = r.execute(ctx, job, job.run)
}

func (r *JobRegistry) execute(ctx context.Context, job *registeredJob, run JobFunc) (summary RunSummary, err error) {
	ctx = observability.WithRunID(ctx, uuid.NewString())
	logger := observability.WithContextLogger(r.logger, ctx).With(zap.String("job", job.name))

	release, acquired, err := r.locker.TryAcquire(ctx, job.name)
	if err != nil {
		logger.Error("failed to acquire job lock", zap.Error(err))
		r.metrics.ObserveJobRun(job.name, "failed", 0)
		return RunSummary{}, fmt.Errorf("acquire lock for job %s: %w", job.name, err)
	}
	if !acquired {
		logger.Info("job is running on another instance, skipping")
		r.metrics.ObserveJobRun(job.name, "busy", 0)
		return RunSummary{}, fmt.Errorf("%w: %s", domain.ErrJobBusy, job.name)
	}
	defer func() {
		if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil {
			logger.Warn("failed to release job lock", zap.Error(releaseErr))
		}
	}()

	start := r.now()
	r.setRunning(job, true)
	r.metrics.SetJobRunning(job.name, true)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", job.name, p)
		}
		summary.Duration = r.now().Sub(start)

		r.finish(job, start, err)
		r.metrics.SetJobRunning(job.name, false)

		fields := []zap.Field{
			zap.Int("sent", summary.AlertsSent),
			zap.Int("skipped", summary.Skipped),
			zap.Int("errors", summary.Errors),
			zap.Duration("duration", summary.Duration),
		}
		if summary.Deleted > 0 {
			fields = append(fields, zap.Int64("deleted", summary.Deleted))
		}
		if err != nil {
			r.metrics.ObserveJobRun(job.name, "failed", summary.Duration)
			logger.Error("job failed", append(fields, zap.Error(err))...)
			return
		}
		r.metrics.ObserveJobRun(job.name, "ok", summary.Duration)
		logger.Info("job finished", fields...)
	}()

	return run(ctx)
}

func (r *JobRegistry) lookup(name string) (*registeredJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[name]
	if !ok {
		return nil, jobNotFound(name)
	}
	return job, nil
}

func (r *JobRegistry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *JobRegistry) unschedule(job *registeredJob) {
	if !job.scheduled {
		return
	}
	r.cron.Remove(job.entryID)
	job.scheduled = false
	r.logger.Info("job unscheduled", zap.String("job", job.name))
}

func (r *JobRegistry) setRunning(job *registeredJob, running bool) {
	r.mu.Lock()
	job.running = running
	r.mu.Unlock()
}

func (r *JobRegistry) finish(job *registeredJob, start time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job.running = false
	job.lastRunAt = &start
	job.lastError = ""
	if err != nil {
		job.lastError = err.Error()
	}
}

func jobNotFound(name string) error {
	return fmt.Errorf("%w: job %q", domain.ErrNotFound, name)
}

// cronLogger routes cron's own diagnostics through zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

var _ cron.Logger = cronLogger{}
