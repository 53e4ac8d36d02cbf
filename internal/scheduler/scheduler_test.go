package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	name  string
	dep   Task
	runs  int32
	fn    func(n int32) error
	block chan struct{}
}

func (t *countingTask) Name() string { return t.name }

func (t *countingTask) Run(ctx context.Context) error {
	n := atomic.AddInt32(&t.runs, 1)
	if t.block != nil {
		select {
		case <-t.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if t.fn != nil {
		return t.fn(n)
	}
	return nil
}

func (t *countingTask) Runs() int32 { return atomic.LoadInt32(&t.runs) }

type dependentTask struct {
	*countingTask
}

func (t dependentTask) DependsOn() Task { return t.dep }

func newScheduler(t *testing.T) *Scheduler {
	s := New(2, zerolog.Nop())
	t.Cleanup(func() {
		s.Shutdown()
		s.AwaitTermination(time.Second)
	})
	return s
}

func TestNew_ClampsWorkers(t *testing.T) {
	s := New(0, zerolog.Nop())
	defer s.Shutdown()
	assert.Equal(t, MinWorkers, s.Workers())
}

func TestSubmit_RunsRepeatedly(t *testing.T) {
	s := newScheduler(t)
	task := &countingTask{name: "tick"}

	require.NoError(t, s.Submit(task, 10*time.Millisecond))
	assert.True(t, s.IsSubmitted(task))

	assert.Eventually(t, func() bool { return task.Runs() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestSubmit_RejectsNonPositivePeriod(t *testing.T) {
	s := newScheduler(t)
	assert.Error(t, s.Submit(&countingTask{name: "x"}, 0))
}

func TestSubmit_DependencyFirst(t *testing.T) {
	s := newScheduler(t)
	dep := &countingTask{name: "portfolio:refresh"}
	task := dependentTask{&countingTask{name: "marketplace:poll", dep: dep}}

	require.NoError(t, s.Submit(task, time.Hour))

	assert.True(t, s.IsSubmitted(dep))
	assert.True(t, s.IsSubmitted(task))

	statuses := s.Submitted()
	require.Len(t, statuses, 2)
	assert.Equal(t, "every 1h0m0s", statuses[0].Schedule)
}

func TestSubmit_NeverTwice(t *testing.T) {
	s := newScheduler(t)
	dep := &countingTask{name: "dep"}
	a := dependentTask{&countingTask{name: "a", dep: dep}}
	b := dependentTask{&countingTask{name: "b", dep: dep}}

	require.NoError(t, s.Submit(a, time.Hour))
	require.NoError(t, s.Submit(b, time.Hour))
	require.NoError(t, s.Submit(a, time.Hour))

	assert.Len(t, s.Submitted(), 3)
	assert.Eventually(t, func() bool { return dep.Runs() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), dep.Runs(), "dependency scheduled once")
}

func TestSubmit_CycleRejected(t *testing.T) {
	s := newScheduler(t)
	a := &countingTask{name: "a"}
	b := &countingTask{name: "b"}
	da := dependentTask{a}
	db := dependentTask{b}
	a.dep = db
	b.dep = da

	err := s.Submit(da, time.Hour)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvariant))
	assert.Contains(t, err.Error(), "a -> b -> a")
	assert.Empty(t, s.Submitted(), "nothing is submitted")
}

func TestSubmit_SelfDependencyRejected(t *testing.T) {
	s := newScheduler(t)
	a := &countingTask{name: "a"}
	da := dependentTask{a}
	a.dep = da

	assert.ErrorIs(t, s.Submit(da, time.Hour), domain.ErrInvariant)
}

func TestFailingTaskKeepsRunning(t *testing.T) {
	s := newScheduler(t)
	failing := &countingTask{name: "failing", fn: func(int32) error { return errors.New("remote down") }}
	panicking := &countingTask{name: "panicking", fn: func(int32) error { panic("boom") }}

	require.NoError(t, s.Submit(failing, 5*time.Millisecond))
	require.NoError(t, s.Submit(panicking, 5*time.Millisecond))

	assert.Eventually(t, func() bool {
		return failing.Runs() >= 3 && panicking.Runs() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	for _, st := range s.Submitted() {
		assert.Greater(t, st.Failures, int64(0))
		assert.NotEmpty(t, st.LastError)
	}
}

func TestFixedDelay_SlowRunDelaysNext(t *testing.T) {
	var mu sync.Mutex
	var starts, ends []time.Time

	task := &countingTask{name: "slow"}
	task.fn = func(int32) error {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		ends = append(ends, time.Now())
		mu.Unlock()
		return nil
	}

	s := newScheduler(t)
	require.NoError(t, s.Submit(task, 20*time.Millisecond))
	assert.Eventually(t, func() bool { return task.Runs() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Shutdown()
	s.AwaitTermination(time.Second)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(starts) && i-1 < len(ends); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(ends[i-1]), 20*time.Millisecond)
	}
}

func TestFixedDelay_Next(t *testing.T) {
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, end.Add(time.Minute), FixedDelay(time.Minute).Next(end))
}

func TestSubmitCron(t *testing.T) {
	s := newScheduler(t)
	task := &countingTask{name: "backup"}

	require.NoError(t, s.SubmitCron(task, "0 3 * * *"))
	statuses := s.Submitted()
	require.Len(t, statuses, 1)
	assert.Equal(t, "cron 0 3 * * *", statuses[0].Schedule)
	assert.Equal(t, 3, statuses[0].NextRun.Hour(), "first run waits for the schedule")

	assert.Error(t, s.SubmitCron(&countingTask{name: "bad"}, "not a spec"))
}

func TestShutdownAndReinit(t *testing.T) {
	s := New(2, zerolog.Nop())
	block := make(chan struct{})
	task := &countingTask{name: "long", block: block}

	require.NoError(t, s.Submit(task, time.Millisecond))
	assert.Eventually(t, func() bool { return task.Runs() == 1 }, time.Second, time.Millisecond)

	assert.False(t, s.Reinit(), "cannot reinit while running")

	s.Shutdown()
	assert.True(t, s.AwaitTermination(time.Second), "in-flight run sees cancellation")
	assert.Equal(t, int32(1), task.Runs())
	assert.ErrorIs(t, s.Submit(task, time.Second), ErrShutdown)
	assert.False(t, s.IsRunning())

	require.True(t, s.Reinit())
	assert.False(t, s.IsSubmitted(task))
	assert.True(t, s.IsRunning())

	close(block)
	require.NoError(t, s.Submit(task, time.Hour))
	assert.Eventually(t, func() bool { return task.Runs() == 2 }, time.Second, time.Millisecond)
	s.Shutdown()
	assert.True(t, s.AwaitTermination(time.Second))
}

func TestWorkerPoolBound(t *testing.T) {
	s := newScheduler(t)
	var active, peak int32
	block := make(chan struct{})

	for _, name := range []string{"a", "b", "c", "d"} {
		task := &countingTask{name: name}
		task.fn = func(int32) error {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-block
			atomic.AddInt32(&active, -1)
			return nil
		}
		require.NoError(t, s.Submit(task, time.Hour))
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
	close(block)
}
