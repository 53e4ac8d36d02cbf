// Package scheduler runs periodic tasks on a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// MinWorkers keeps one long task from starving everything else.
const MinWorkers = 2

// ErrShutdown is returned when submitting to a scheduler that was shut down.
var ErrShutdown = errors.New("scheduler is shut down")

// Task is a unit of periodic work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Dependent is implemented by tasks that need another task scheduled first.
type Dependent interface {
	DependsOn() Task
}

// FixedDelay is a cron.Schedule whose next run is a fixed delay after the
// previous run ended.
type FixedDelay time.Duration

// Next returns end + delay.
func (d FixedDelay) Next(end time.Time) time.Time {
	return end.Add(time.Duration(d))
}

func (d FixedDelay) String() string {
	return "every " + time.Duration(d).String()
}

// Status describes a submitted task.
type Status struct {
	Name         string        `json:"name"`
	Schedule     string        `json:"schedule"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	Running      bool          `json:"running"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitempty"`
}

type entry struct {
	task      Task
	schedule  cron.Schedule
	immediate bool
	status    Status
}

// Scheduler runs each submitted task on its own schedule. Schedules are
// evaluated after a run completes, so a slow run delays the next one.
type Scheduler struct {
	workers int
	sem     *semaphore.Weighted
	log     zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a running scheduler with at least MinWorkers workers.
func New(workers int, log zerolog.Logger) *Scheduler {
	if workers < MinWorkers {
		workers = MinWorkers
	}
	s := &Scheduler{
		workers: workers,
		sem:     semaphore.NewWeighted(int64(workers)),
		log:     log.With().Str("component", "scheduler").Logger(),
	}
	s.reset()
	return s
}

func (s *Scheduler) reset() {
	s.entries = make(map[string]*entry)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
}

// Workers returns the pool size.
func (s *Scheduler) Workers() int {
	return s.workers
}

// Submit schedules task with a fixed delay between runs. The first run starts
// immediately. Dependencies are submitted first with the same delay.
func (s *Scheduler) Submit(task Task, period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("task %s: period must be positive", task.Name())
	}
	return s.submit(task, FixedDelay(period), FixedDelay(period).String(), true)
}

// SubmitCron schedules task on a standard five-field cron spec.
func (s *Scheduler) SubmitCron(task Task, spec string) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("task %s: invalid cron spec %q: %w", task.Name(), spec, err)
	}
	return s.submit(task, schedule, "cron "+spec, false)
}

// IsSubmitted reports whether a task with the same name is scheduled.
func (s *Scheduler) IsSubmitted(task Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[task.Name()]
	return ok
}

func (s *Scheduler) submit(task Task, schedule cron.Schedule, desc string, immediate bool) error {
	chain, err := dependencyOrder(task)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrShutdown
	}

	for _, t := range chain {
		if _, ok := s.entries[t.Name()]; ok {
			continue
		}
		e := &entry{
			task:      t,
			schedule:  schedule,
			immediate: immediate,
			status:    Status{Name: t.Name(), Schedule: desc},
		}
		s.entries[t.Name()] = e
		s.wg.Add(1)
		go s.loop(s.ctx, e)
		s.log.Info().Str("task", t.Name()).Str("schedule", e.status.Schedule).Msg("Task submitted")
	}
	return nil
}

// dependencyOrder walks the dependency chain and returns it dependency-first.
// A cycle is a contract violation.
func dependencyOrder(task Task) ([]Task, error) {
	var chain []Task
	seen := make(map[string]bool)
	for t := task; t != nil; {
		if seen[t.Name()] {
			names := make([]string, 0, len(chain)+1)
			for _, c := range chain {
				names = append(names, c.Name())
			}
			names = append(names, t.Name())
			return nil, fmt.Errorf("dependency cycle %s: %w", strings.Join(names, " -> "), domain.ErrInvariant)
		}
		seen[t.Name()] = true
		chain = append(chain, t)

		dep, ok := t.(Dependent)
		if !ok {
			break
		}
		t = dep.DependsOn()
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	next := time.Now()
	if !e.immediate {
		next = e.schedule.Next(next)
	}

	for {
		s.setNext(e, next)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		s.execute(ctx, e)
		s.sem.Release(1)

		next = e.schedule.Next(time.Now())
	}
}

func (s *Scheduler) execute(ctx context.Context, e *entry) {
	name := e.task.Name()
	start := time.Now()

	s.mu.Lock()
	e.status.Running = true
	s.mu.Unlock()

	err := runSafely(ctx, e.task)
	elapsed := time.Since(start)

	s.mu.Lock()
	e.status.Running = false
	e.status.Runs++
	e.status.LastRun = start
	e.status.LastDuration = elapsed
	if err != nil {
		e.status.Failures++
		e.status.LastError = err.Error()
	} else {
		e.status.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("task", name).Dur("duration", elapsed).Msg("Task failed")
		return
	}
	s.log.Debug().Str("task", name).Dur("duration", elapsed).Msg("Task completed")
}

func (s *Scheduler) setNext(e *entry, next time.Time) {
	s.mu.Lock()
	e.status.NextRun = next
	s.mu.Unlock()
}

func runSafely(ctx context.Context, task Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name(), p)
		}
	}()
	return task.Run(ctx)
}

// Submitted returns the status of every scheduled task, sorted by name.
func (s *Scheduler) Submitted() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Shutdown stops all future runs. In-flight runs see their context cancelled.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
	s.log.Info().Int("tasks", len(s.entries)).Msg("Scheduler shut down")
}

// IsRunning reports whether the scheduler accepts submissions.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// AwaitTermination waits for every task loop to exit. Returns false on timeout.
func (s *Scheduler) AwaitTermination(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Reinit makes a shut down scheduler usable again with nothing submitted.
// It fails while the scheduler is still running.
func (s *Scheduler) Reinit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Warn().Msg("Refusing to reinitialize a running scheduler")
		return false
	}
	s.reset()
	s.log.Info().Msg("Scheduler reinitialized")
	return true
}
