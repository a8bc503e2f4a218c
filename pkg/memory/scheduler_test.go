package memory

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler() *Scheduler {
	return NewScheduler(zerolog.New(os.Stdout).Level(zerolog.Disabled))
}

func TestSchedulerRunsSyncJob(t *testing.T) {
	s := newTestScheduler()

	var fired atomic.Int32
	require.NoError(t, s.AddSyncJob(time.Second, func() {
		fired.Add(1)
	}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return fired.Load() >= 1 },
		3*time.Second, 50*time.Millisecond)
}

func TestSchedulerRejectsNonPositiveInterval(t *testing.T) {
	s := newTestScheduler()

	err := s.AddSyncJob(0, func() {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")

	err = s.AddSyncJob(-time.Minute, func() {})
	assert.Error(t, err)
}

func TestSchedulerCompactionExpressions(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"daily at 3am", "0 3 * * *", false},
		{"every minute", "* * * * *", false},
		{"weekly", "0 4 * * 0", false},
		{"garbage", "not-a-cron", true},
		{"six fields", "0 0 3 * * *", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScheduler()
			err := s.AddCompactionJob(tt.expr, func() {})
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid compaction schedule")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchedulerStopWaitsForRunningJob(t *testing.T) {
	s := newTestScheduler()

	started := make(chan struct{})
	var startedOnce sync.Once
	var finished atomic.Bool

	require.NoError(t, s.AddSyncJob(time.Second, func() {
		startedOnce.Do(func() { close(started) })
		time.Sleep(500 * time.Millisecond)
		finished.Store(true)
	}))

	s.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("sync job never started")
	}

	s.Stop()
	assert.True(t, finished.Load(), "Stop must wait for the in-flight job")
}

func TestSchedulerStopWithoutJobs(t *testing.T) {
	s := newTestScheduler()
	s.Start()
	s.Stop()
}
