package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

type observation struct {
	name string
	err  error
}

type recordingObserver struct {
	mu  sync.Mutex
	got []observation
}

func (o *recordingObserver) ObserveJob(name string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, observation{name, err})
}

func TestRunNowReportsOutcome(t *testing.T) {
	obs := &recordingObserver{}
	s := New(obs, nil)
	boom := errors.New("boom")

	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: boom}

	require.NoError(t, s.RunNow(context.Background(), ok))
	require.ErrorIs(t, s.RunNow(context.Background(), bad), boom)

	assert.Equal(t, int32(1), ok.runs.Load())
	assert.Equal(t, []observation{{"ok", nil}, {"bad", boom}}, obs.got)
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(nil, nil)
	assert.Error(t, s.AddJob("not a schedule", &countingJob{name: "x"}))
	// Five-field specs are rejected; the seconds field is required.
	assert.Error(t, s.AddJob("0 3 1 * *", &countingJob{name: "x"}))
	assert.NoError(t, s.AddJob("0 0 3 1 * *", &countingJob{name: "x"}))
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(nil, nil)
	job := &countingJob{name: "tick"}
	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

type blockingJob struct{ stopped chan struct{} }

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context) error {
	<-ctx.Done()
	close(j.stopped)
	return ctx.Err()
}

func TestStopCancelsRunningJobs(t *testing.T) {
	s := New(nil, nil)
	job := &blockingJob{stopped: make(chan struct{})}
	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()

	time.Sleep(1500 * time.Millisecond)
	s.Stop()

	select {
	case <-job.stopped:
	case <-time.After(time.Second):
		t.Fatal("job was not cancelled by Stop")
	}
}
