package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/vhvplatform/go-esign-delivery-service/internal/jobs"
	"github.com/vhvplatform/go-esign-delivery-service/internal/lock"
	"github.com/vhvplatform/go-esign-delivery-service/internal/metrics"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/config"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
)

// NameNotifications is the scheduler key of the notification queue drain
const NameNotifications = "notifications"

// Mode selects how queue-backed jobs are driven
type Mode string

const (
	ModeSQS  Mode = "sqs"
	ModeCron Mode = "cron"
)

var (
	// ErrUnknownJob is returned by RunNow for names the scheduler does not know
	ErrUnknownJob = errors.New("unknown job")
	// ErrAlreadyRunning is returned when another run holds the job's guard
	ErrAlreadyRunning = errors.New("job already running")
)

// Task runs one pass of a job and returns its summary
type Task func(ctx context.Context) (any, error)

// Worker is a long-running durable queue consumer
type Worker interface {
	Name() string
	Start(ctx context.Context)
	Stop()
	Running() bool
}

// Tasks bundles everything the scheduler drives. The workers are only
// required in SQS mode.
type Tasks struct {
	Expiry        Task
	Reminder      Task
	Retention     Task
	PDF           Task
	Notifications Task

	NotificationWorker Worker
	PDFWorker          Worker
}

// JobStatus describes one logical job
type JobStatus struct {
	Name      string     `json:"name"`
	Mechanism string     `json:"mechanism"`
	Running   bool       `json:"running"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Status is the scheduler snapshot reported to operators
type Status struct {
	Mode    Mode        `json:"mode"`
	Started bool        `json:"started"`
	Jobs    []JobStatus `json:"jobs"`
}

type jobState struct {
	running   bool
	lastRunAt *time.Time
	lastError string
}

// Scheduler runs the e-sign jobs on cron schedules or durable queue workers
type Scheduler struct {
	mode      Mode
	schedules config.SchedulesConfig
	tasks     map[string]Task
	queues    map[string]Worker
	locker    lock.Locker
	log       *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	workers []Worker
	state   map[string]*jobState
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New creates a scheduler. The mode is fixed here for the life of the process.
func New(useSQS bool, schedules config.SchedulesConfig, tasks Tasks, locker lock.Locker, log *logger.Logger) (*Scheduler, error) {
	mode := ModeCron
	if useSQS {
		mode = ModeSQS
		if tasks.NotificationWorker == nil || tasks.PDFWorker == nil {
			return nil, fmt.Errorf("sqs mode requires notification and pdf workers")
		}
	}
	if locker == nil {
		locker = lock.NewLocal()
	}

	s := &Scheduler{
		mode:      mode,
		schedules: schedules,
		tasks: map[string]Task{
			jobs.NameExpiry:    tasks.Expiry,
			jobs.NameReminder:  tasks.Reminder,
			jobs.NameRetention: tasks.Retention,
			jobs.NamePDF:       tasks.PDF,
			NameNotifications:  tasks.Notifications,
		},
		queues: map[string]Worker{
			NameNotifications: tasks.NotificationWorker,
			jobs.NamePDF:      tasks.PDFWorker,
		},
		locker: locker,
		log:    log.With("component", "scheduler"),
		state:  make(map[string]*jobState),
	}
	for name, task := range s.tasks {
		if task == nil {
			return nil, fmt.Errorf("no task configured for job %s", name)
		}
		s.state[name] = &jobState{}
	}
	return s, nil
}

// Mode returns the resolved mode
func (s *Scheduler) Mode() Mode {
	return s.mode
}

// Start registers the cron jobs and, in SQS mode, starts the queue workers
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.log.Info("Starting job scheduler", "mode", s.mode)

	c := cron.New(cron.WithLogger(cronLogger{s.log}), cron.WithChain(cron.Recover(cronLogger{s.log})))
	for name, spec := range s.cronSpecs() {
		if _, err := c.AddFunc(spec, s.tick(name)); err != nil {
			return fmt.Errorf("failed to schedule %s with %q: %w", name, spec, err)
		}
		s.log.Info("Registered job", "job", name, "schedule", spec)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = c
	c.Start()

	if s.mode == ModeSQS {
		for _, name := range []string{NameNotifications, jobs.NamePDF} {
			w := s.queues[name]
			w.Start(s.ctx)
			s.workers = append(s.workers, w)
		}
	}

	s.started = true
	s.log.Info("Job scheduler started", "mode", s.mode, "workers", len(s.workers))
	return nil
}

// Stop stops every tracked worker and the cron runner, waiting for in-flight
// runs to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	workers, c, cancel := s.workers, s.cron, s.cancel
	s.workers = nil
	s.cron = nil
	s.started = false
	s.mu.Unlock()

	s.log.Info("Stopping job scheduler")
	cancel()
	for _, w := range workers {
		w.Stop()
	}
	<-c.Stop().Done()
	s.log.Info("Job scheduler stopped")
}

// Status reports the mode and the mechanism backing each job
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Mode: s.mode, Started: s.started}
	specs := s.cronSpecs()
	for name := range s.tasks {
		st := s.state[name]
		js := JobStatus{
			Name:      name,
			Running:   st.running,
			LastRunAt: st.lastRunAt,
			LastError: st.lastError,
		}
		if spec, ok := specs[name]; ok {
			js.Mechanism = "cron " + spec
		} else {
			w := s.queues[name]
			js.Mechanism = "sqs worker " + w.Name()
			js.Running = js.Running || w.Running()
		}
		status.Jobs = append(status.Jobs, js)
	}
	sort.Slice(status.Jobs, func(i, j int) bool { return status.Jobs[i].Name < status.Jobs[j].Name })
	return status
}

// RunNow runs a job once through the same overlap guard as scheduled ticks
func (s *Scheduler) RunNow(ctx context.Context, name string) (any, error) {
	return s.run(ctx, name)
}

// cronSpecs returns the cron-driven jobs for the current mode. Queue-backed
// jobs get a cron equivalent only when no worker serves them.
func (s *Scheduler) cronSpecs() map[string]string {
	specs := map[string]string{
		jobs.NameExpiry:    s.schedules.Expiry,
		jobs.NameReminder:  s.schedules.Reminder,
		jobs.NameRetention: s.schedules.Retention,
	}
	if s.mode == ModeCron {
		specs[NameNotifications] = s.schedules.Notifications
		specs[jobs.NamePDF] = s.schedules.PDF
	}
	return specs
}

func (s *Scheduler) tick(name string) func() {
	return func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		if _, err := s.run(ctx, name); err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				s.log.Info("Skipping tick, previous run still active", "job", name)
				return
			}
			s.log.Error("Scheduled job failed", "job", name, "error", err)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, name string) (any, error) {
	task, ok := s.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	lease, acquired, err := s.locker.Acquire(ctx, name)
	if err != nil {
		metrics.JobSkipped.WithLabelValues(name).Inc()
		return nil, fmt.Errorf("failed to acquire guard for %s: %w", name, err)
	}
	if !acquired {
		metrics.JobSkipped.WithLabelValues(name).Inc()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("Failed to release job guard", "job", name, "error", err)
		}
	}()

	s.setRunning(name, true)
	start := time.Now()
	result, runErr := task(ctx)
	elapsed := time.Since(start)

	metrics.JobDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	status := "success"
	if runErr != nil {
		status = "failure"
	}
	metrics.JobRuns.WithLabelValues(name, status).Inc()
	s.finish(name, start, runErr)

	s.log.Debug("Job run finished", "job", name, "duration", elapsed, "status", status)
	return result, runErr
}

func (s *Scheduler) setRunning(name string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[name].running = running
}

func (s *Scheduler) finish(name string, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state[name]
	st.running = false
	st.lastRunAt = &at
	st.lastError = ""
	if err != nil {
		st.lastError = err.Error()
	}
}

// cronLogger adapts the service logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
