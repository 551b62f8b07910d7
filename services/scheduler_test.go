package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResetter struct {
	calls atomic.Int32
	err   error
}

func (c *countingResetter) ResetAll(context.Context) (ResetReport, error) {
	c.calls.Add(1)
	return ResetReport{Users: 3, Tracker: true}, c.err
}

func newScheduler(t *testing.T, job Resetter, loc *time.Location) *ResetScheduler {
	t.Helper()
	s, err := NewResetScheduler(job, 2, 0, loc)
	require.NoError(t, err)
	return s
}

func TestNextRun(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	cases := []struct {
		name string
		now  time.Time
		loc  *time.Location
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC),
			loc:  time.UTC,
			want: time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "already passed",
			now:  time.Date(2026, 3, 1, 2, 0, 1, 0, time.UTC),
			loc:  time.UTC,
			want: time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at run time",
			now:  time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
			loc:  time.UTC,
			want: time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "month rollover",
			now:  time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC),
			loc:  time.UTC,
			want: time.Date(2026, 2, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "other zone",
			now:  time.Date(2026, 6, 10, 5, 0, 0, 0, time.UTC), // 01:00 EDT
			loc:  ny,
			want: time.Date(2026, 6, 10, 2, 0, 0, 0, ny),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := newScheduler(t, &countingResetter{}, tc.loc).NextRun(tc.now)
			assert.True(t, tc.want.Equal(got), "want %s got %s", tc.want, got)
			assert.True(t, got.After(tc.now))
		})
	}
}

func TestNewResetScheduler_RejectsBadTime(t *testing.T) {
	_, err := NewResetScheduler(&countingResetter{}, 25, 0, time.UTC)
	assert.Error(t, err)
	_, err = NewResetScheduler(&countingResetter{}, 2, 61, time.UTC)
	assert.Error(t, err)
}

func TestResetScheduler_StartStop(t *testing.T) {
	job := &countingResetter{}
	s := newScheduler(t, job, time.UTC)
	s.Start(context.Background())
	s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Zero(t, job.calls.Load())
}

func TestResetScheduler_StopBeforeStart(t *testing.T) {
	s := newScheduler(t, &countingResetter{}, nil)
	assert.NotPanics(t, s.Stop)
	assert.NotPanics(t, func() { s.Start(context.Background()) })
	assert.NotPanics(t, s.Stop)
}

func TestResetScheduler_FiresOnSchedule(t *testing.T) {
	job := &countingResetter{}
	s := newScheduler(t, job, time.UTC)
	s.schedule = cron.Every(time.Second)

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestResetScheduler_CancelledContextSkipsRun(t *testing.T) {
	job := &countingResetter{}
	s := newScheduler(t, job, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.run(ctx)
	assert.Zero(t, job.calls.Load())
}

func TestResetScheduler_RunCallsJob(t *testing.T) {
	job := &countingResetter{}
	s := newScheduler(t, job, time.UTC)

	s.run(context.Background())
	job.err = errInjected
	s.run(context.Background())

	assert.EqualValues(t, 2, job.calls.Load())
}
