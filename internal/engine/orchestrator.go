package engine

import (
	"context"
	"sync"

	"github.com/dlbridge/putioarr/internal/log"
)

// Orchestrator owns the pool of workers that dispatch on TransferEvent.Kind:
// QueuedForDownload triggers planning and fans the plan out as
// DownloadTasks; Downloaded spawns a tracked import-watcher; Imported
// spawns a tracked seed-watcher. It is the consumer side of the
// transfer-events channel the Poller and Reconciler produce into.
type Orchestrator struct {
	planner   *Planner
	remote    RemoteClient
	importer  ImportChecker
	tracker   *taskTracker
	workers   int

	events  <-chan TransferEvent
	tasks   chan<- DownloadTask
	emit    chan<- TransferEvent

	seedPollInterval int64 // seconds, see Seed-watcher
}

// NewOrchestrator builds an Orchestrator. emit is the same channel events
// is read from; workers re-enqueue Downloaded/Imported events onto it once
// their own processing completes a step, so the pipeline stays entirely
// message-driven rather than calling itself recursively.
func NewOrchestrator(planner *Planner, remote RemoteClient, importer ImportChecker, tracker *taskTracker, workers int, events <-chan TransferEvent, emit chan<- TransferEvent, tasks chan<- DownloadTask) *Orchestrator {
	return &Orchestrator{
		planner:  planner,
		remote:   remote,
		importer: importer,
		tracker:  tracker,
		workers:  workers,
		events:   events,
		emit:     emit,
		tasks:    tasks,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and every
// worker has drained.
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.worker(ctx)
		}()
	}
	wg.Wait()
}

func (o *Orchestrator) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.events:
			if !ok {
				return
			}
			o.dispatch(ctx, ev)
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, ev TransferEvent) {
	switch ev.Kind {
	case EventQueuedForDownload:
		o.handleQueuedForDownload(ctx, ev.Transfer)
	case EventDownloaded:
		o.handleDownloaded(ctx, ev.Transfer)
	case EventImported:
		o.handleImported(ctx, ev.Transfer)
	}
}

func (o *Orchestrator) handleQueuedForDownload(ctx context.Context, t *Transfer) {
	plan, err := o.planner.Plan(ctx, t)
	if err != nil {
		log.Warn("orchestrator").Int64("transfer_id", t.ID).Err(err).Msg("planning failed")
		t.Fail(err)
		return
	}
	if len(plan) == 0 {
		// Skip-root or all-suppressed folder: nothing to fetch, so the
		// transfer is dropped here rather than advanced. It stays in
		// the seen set and is never reconsidered unless put.io removes
		// and re-adds it.
		log.Info("orchestrator").Int64("transfer_id", t.ID).Msg("empty plan, dropping transfer")
		return
	}

	t.SetTargets(plan)
	t.SetPhase(PhaseDownloading)

	for _, target := range plan {
		if target.Kind == KindFolder {
			continue
		}
		result := make(chan DownloadStatus, 1)
		task := DownloadTask{Transfer: t, Target: target, Result: result}
		select {
		case o.tasks <- task:
		case <-ctx.Done():
			return
		}
		o.tracker.Spawn("download-result", func() error {
			return o.awaitResult(ctx, t, target, result)
		})
	}
}

func (o *Orchestrator) awaitResult(ctx context.Context, t *Transfer, target *DownloadTarget, result <-chan DownloadStatus) error {
	select {
	case status := <-result:
		if status == DownloadFailed {
			t.MarkTargetResult(target, &FetchError{Target: target, Err: errFetchFailed})
			log.Warn("orchestrator").Str("path", target.LocalPath).Int64("transfer_id", t.ID).Msg("download failed")
			return nil
		}
		t.MarkTargetResult(target, nil)
		o.advanceIfDownloaded(ctx, t)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) advanceIfDownloaded(ctx context.Context, t *Transfer) {
	if !t.AllTargetsDone() {
		return
	}
	t.SetPhase(PhaseDownloaded)
	select {
	case o.emit <- TransferEvent{Kind: EventDownloaded, Transfer: t}:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) handleDownloaded(ctx context.Context, t *Transfer) {
	watcher := NewImportWatcher(o.importer, t, o.emit)
	o.tracker.Spawn("import-watcher", func() error {
		return watcher.Run(ctx)
	})
}

func (o *Orchestrator) handleImported(ctx context.Context, t *Transfer) {
	t.SetPhase(PhaseImported)
	watcher := NewSeedWatcher(o.remote, t)
	o.tracker.Spawn("seed-watcher", func() error {
		return watcher.Run(ctx)
	})
}
