package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/pulse/pkg/telemetry/logging"
)

func noop(ctx context.Context) error { return nil }

func TestScheduler_Add(t *testing.T) {
	tests := []struct {
		name      string
		job       Job
		wantError bool
	}{
		{
			name: "interval",
			job:  Job{Name: "failover.probe", Every: 5 * time.Second, Run: noop},
		},
		{
			name: "cron expression",
			job:  Job{Name: "report", Spec: "0 3 * * *", Run: noop},
		},
		{
			name:      "invalid cron expression",
			job:       Job{Name: "bad", Spec: "invalid cron", Run: noop},
			wantError: true,
		},
		{
			name:      "missing schedule",
			job:       Job{Name: "idle", Run: noop},
			wantError: true,
		},
		{
			name:      "missing name",
			job:       Job{Every: time.Second, Run: noop},
			wantError: true,
		},
		{
			name:      "missing run function",
			job:       Job{Name: "empty", Every: time.Second},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil)
			err := s.Add(tt.job)
			if (err != nil) != tt.wantError {
				t.Fatalf("Add() error = %v, wantError %v", err, tt.wantError)
			}
			if !tt.wantError && len(s.Jobs()) != 1 {
				t.Errorf("expected 1 job, got %v", s.Jobs())
			}
		})
	}
}

func TestScheduler_DuplicateName(t *testing.T) {
	s := New(nil)
	if err := s.Add(Job{Name: "writer.flush", Every: time.Second, Run: noop}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(Job{Name: "writer.flush", Every: time.Second, Run: noop}); err == nil {
		t.Error("expected error for duplicate job name")
	}
}

func TestScheduler_Trigger(t *testing.T) {
	s := New(nil)

	var job string
	failure := errors.New("store unavailable")
	_ = s.Add(Job{Name: "failover.drain", Every: time.Minute, Run: func(ctx context.Context) error {
		job = logging.Get(ctx, logging.JobKey)
		return failure
	}})

	if err := s.Trigger(context.Background(), "failover.drain"); !errors.Is(err, failure) {
		t.Errorf("expected job error, got %v", err)
	}
	if job != "failover.drain" {
		t.Errorf("expected job name in context, got %q", job)
	}
	if err := s.Trigger(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob, got %v", err)
	}
}

func TestScheduler_RunsAndStops(t *testing.T) {
	s := New(nil)

	var runs atomic.Int32
	done := make(chan struct{}, 1)
	_ = s.Add(Job{Name: "sampler.publish_qps", Every: time.Second, Run: func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			done <- struct{}{}
		}
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	if !s.IsRunning() {
		t.Fatal("expected scheduler to be running")
	}
	if s.NextRun("sampler.publish_qps") == nil {
		t.Error("expected a next run time")
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.IsRunning() {
		t.Error("expected scheduler to stop after context cancellation")
	}
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := New(nil)

	var active, maxActive atomic.Int32
	release := make(chan struct{})
	_ = s.Add(Job{Name: "writer.flush", Every: time.Second, Run: func(ctx context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		<-release
		return nil
	}})

	s.Start(context.Background())
	time.Sleep(2500 * time.Millisecond)
	close(release)
	s.Stop()

	if maxActive.Load() > 1 {
		t.Errorf("expected no overlapping runs, saw %d concurrent", maxActive.Load())
	}
}
