package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
)

func TestJob_EventsAndResult(t *testing.T) {
	job := Start(context.Background(), func(ctx context.Context, r *Reporter) (int, error) {
		r.File(0, 1, "a.ts")
		for i := 1; i <= 3; i++ {
			r.Message(i, 3)
		}
		return 42, nil
	})
	if job.ID == uuid.Nil {
		t.Fatal("job has no ID")
	}

	var types []EventType
	for ev := range job.Events() {
		if ev.Job != job.ID {
			t.Fatalf("event for job %v, want %v", ev.Job, job.ID)
		}
		types = append(types, ev.Type)
	}
	if types[0] != EventStarted || types[len(types)-1] != EventFinished {
		t.Fatalf("events = %v, want started first and finished last", types)
	}
	if len(types) != 6 {
		t.Fatalf("got %d events, want 6: %v", len(types), types)
	}

	got, err := job.Wait()
	if err != nil || got != 42 {
		t.Fatalf("Wait() = %d, %v; want 42, nil", got, err)
	}
}

func TestJob_Cancel(t *testing.T) {
	started := make(chan struct{})
	job := Start(context.Background(), func(ctx context.Context, r *Reporter) (string, error) {
		close(started)
		<-ctx.Done()
		return "partial", ctx.Err()
	})

	<-started
	job.Cancel()

	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not stop after Cancel")
	}
	got, err := job.Wait()
	if !errors.Is(err, context.Canceled) || got != "partial" {
		t.Fatalf("Wait() = %q, %v; want partial, context.Canceled", got, err)
	}
}

func TestJob_SlowReaderNeverBlocks(t *testing.T) {
	job := Start(context.Background(), func(ctx context.Context, r *Reporter) (int, error) {
		for i := 0; i < 10*eventBuffer; i++ {
			r.Message(i, 10*eventBuffer)
		}
		return 1, nil
	})

	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job blocked on an unread event stream")
	}

	var last Event
	for ev := range job.Events() {
		last = ev
	}
	if last.Type != EventFinished {
		t.Fatalf("last event = %v, want %v", last.Type, EventFinished)
	}
}

func TestJob_ErrorInFinishedEvent(t *testing.T) {
	boom := errors.New("boom")
	job := Start(context.Background(), func(ctx context.Context, r *Reporter) (int, error) {
		return 0, boom
	})
	var finished Event
	for ev := range job.Events() {
		if ev.Type == EventFinished {
			finished = ev
		}
	}
	if !errors.Is(finished.Err, boom) {
		t.Fatalf("finished.Err = %v, want boom", finished.Err)
	}
}
