// Package worker runs a translation job on its own goroutine so that the
// caller (a CLI progress display, a GUI event loop) stays responsive.
//
// A job talks to its owner only through messages: progress events flow out
// on Events, and cancellation flows in through Cancel. The final result is
// collected with Wait.
package worker

import (
	"context"
	"sync"

	"github.com/gofrs/uuid"
)

// EventType identifies an Event.
type EventType string

const (
	EventStarted  EventType = "job.started"
	EventFile     EventType = "job.file"
	EventProgress EventType = "job.progress"
	EventFinished EventType = "job.finished"
)

// Event is a progress notification from a running job.
type Event struct {
	Job  uuid.UUID
	Type EventType

	// EventFile: the file about to be processed.
	File      string
	FileIndex int
	FileCount int

	// EventProgress: messages handled so far in the current file.
	Done  int
	Total int

	// EventFinished: the job's error, if any.
	Err error
}

const eventBuffer = 64

// Reporter is handed to the job function for emitting progress.
// It must only be used from the job's goroutine.
type Reporter struct {
	id     uuid.UUID
	events chan Event
}

// File reports that file index of count is starting.
func (r *Reporter) File(index, count int, path string) {
	r.emit(Event{Type: EventFile, File: path, FileIndex: index, FileCount: count})
}

// Message reports message progress within the current file.
func (r *Reporter) Message(done, total int) {
	r.emit(Event{Type: EventProgress, Done: done, Total: total})
}

// emit drops intermediate events when the owner falls behind, always
// leaving one slot for EventFinished.
func (r *Reporter) emit(ev Event) {
	ev.Job = r.id
	if len(r.events) < cap(r.events)-1 {
		r.events <- ev
	}
}

// Job is a running or finished unit of work producing a T.
type Job[T any] struct {
	ID uuid.UUID

	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result T
	err    error
}

// Start runs fn on a new goroutine. The job's context derives from parent
// and is cancelled by Cancel.
func Start[T any](parent context.Context, fn func(ctx context.Context, r *Reporter) (T, error)) *Job[T] {
	ctx, cancel := context.WithCancel(parent)
	j := &Job[T]{
		ID:     uuid.Must(uuid.NewV4()),
		events: make(chan Event, eventBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r := &Reporter{id: j.ID, events: j.events}
	r.emit(Event{Type: EventStarted})

	go func() {
		defer close(j.done)
		defer close(j.events)
		defer cancel()

		res, err := fn(ctx, r)
		j.mu.Lock()
		j.result, j.err = res, err
		j.mu.Unlock()
		j.events <- Event{Job: j.ID, Type: EventFinished, Err: err}
	}()
	return j
}

// Events returns the job's event stream. It is closed after EventFinished.
// Intermediate events may be dropped when the reader is slow.
func (j *Job[T]) Events() <-chan Event { return j.events }

// Cancel asks the job to stop. Translation jobs stop between messages.
func (j *Job[T]) Cancel() { j.cancel() }

// Done is closed when the job has finished.
func (j *Job[T]) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes and returns its result.
func (j *Job[T]) Wait() (T, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}
