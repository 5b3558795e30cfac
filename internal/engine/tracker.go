package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dlbridge/putioarr/internal/log"
)

// taskTracker keeps track of the import-watchers and seed-watchers the
// orchestrator spawns for each Transfer, and of the per-target goroutines
// that await each download result. Watchers run detached from the
// goroutine that spawns them, so the tracker is what keeps the engine from
// leaking goroutines or losing an error that a watcher returns after
// nobody is left listening: every watcher's completion is observed here,
// never dropped on the floor.
//
// Before every insert the tracker sweeps entries whose done channel is
// already closed, so the live set stays bounded by the number of tasks
// actually in flight (watchers plus pending download results) rather than
// growing for the life of the process.
type taskTracker struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*trackedTask
}

type trackedTask struct {
	label string
	done  chan struct{}
	err   error
}

func newTaskTracker() *taskTracker {
	return &taskTracker{entries: make(map[uuid.UUID]*trackedTask)}
}

// Spawn runs fn in a new goroutine, tracking it under label until fn
// returns. Any error fn returns is logged when observed; it is never
// silently discarded even though nothing waits on Spawn's return value.
func (t *taskTracker) Spawn(label string, fn func() error) {
	t.sweep()

	id := uuid.New()
	task := &trackedTask{label: label, done: make(chan struct{})}

	t.mu.Lock()
	t.entries[id] = task
	t.mu.Unlock()

	go func() {
		defer close(task.done)
		if err := fn(); err != nil {
			task.err = err
			log.Warn("tracker").Str("task", label).Str("task_id", id.String()).Err(err).Msg("background task finished with error")
		}
	}()
}

// sweep removes entries whose goroutine has already completed.
func (t *taskTracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, task := range t.entries {
		select {
		case <-task.done:
			delete(t.entries, id)
		default:
		}
	}
}

// Len reports the number of tasks currently tracked as in flight. Used by
// tests and the health endpoint; it sweeps first so it reflects reality
// rather than a stale high-water mark.
func (t *taskTracker) Len() int {
	t.sweep()
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Wait blocks until every currently tracked task has completed. New tasks
// spawned concurrently are not waited on; this is meant for shutdown, after
// no further Spawn calls are expected.
func (t *taskTracker) Wait() {
	t.mu.Lock()
	dones := make([]chan struct{}, 0, len(t.entries))
	for _, task := range t.entries {
		dones = append(dones, task.done)
	}
	t.mu.Unlock()

	for _, d := range dones {
		<-d
	}
}
