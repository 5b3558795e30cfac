package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dlbridge/putioarr/internal/log"
)

const eventBufferSize = 100

// Config carries the engine's runtime parameters, a subset of the
// application-wide configuration relevant to orchestration.
type Config struct {
	DownloadDirectory    string
	PollingInterval      time.Duration
	OrchestrationWorkers int
	DownloadWorkers      int
	SkipDirectories      []string
	InstanceName         string
	InstanceFolderID     int64

	GrabIdleConnTimeout time.Duration
	GrabHeaderTimeout   time.Duration
}

// DefaultConfig returns the engine defaults described in the configuration
// reference: a 10s poll, 10 orchestration workers, 4 download workers.
func DefaultConfig() Config {
	return Config{
		PollingInterval:      10 * time.Second,
		OrchestrationWorkers: 10,
		DownloadWorkers:      4,
		GrabIdleConnTimeout:  90 * time.Second,
		GrabHeaderTimeout:    30 * time.Second,
	}
}

// Engine wires together the Poller, Reconciler, Orchestrator, and download
// worker pool described by the orchestration design. All state lives in
// memory; Engine keeps nothing on disk and a restart rediscovers the world
// from put.io via the Reconciler and Poller.
type Engine struct {
	cfg      Config
	remote   RemoteClient
	importer ImportChecker
	fetcher  Fetcher

	seen      *seenSet
	transfers *transferTable
	tracker   *taskTracker

	events chan TransferEvent
	tasks  chan DownloadTask

	planner      *Planner
	orchestrator *Orchestrator

	wg sync.WaitGroup
}

// New builds an Engine. remote and importer are the external
// collaborators; fetcher performs the actual file transfer and may be
// swapped for a fake in tests.
func New(cfg Config, remote RemoteClient, importer ImportChecker, fetcher Fetcher) *Engine {
	seen := newSeenSet()
	transfers := newTransferTable()
	tracker := newTaskTracker()
	events := make(chan TransferEvent, eventBufferSize)
	tasks := make(chan DownloadTask, eventBufferSize)
	planner := NewPlanner(remote, cfg.DownloadDirectory, cfg.SkipDirectories)

	orchestrator := NewOrchestrator(planner, remote, importer, tracker, cfg.OrchestrationWorkers, events, events, tasks)

	return &Engine{
		cfg:          cfg,
		remote:       remote,
		importer:     importer,
		fetcher:      fetcher,
		seen:         seen,
		transfers:    transfers,
		tracker:      tracker,
		events:       events,
		tasks:        tasks,
		planner:      planner,
		orchestrator: orchestrator,
	}
}

func (e *Engine) inScope(rt RemoteTransfer) bool {
	if e.cfg.InstanceFolderID != 0 {
		return rt.SaveParentID == e.cfg.InstanceFolderID
	}
	if e.cfg.InstanceName == "" {
		return true
	}
	return strings.Contains(strings.ToLower(rt.Name), strings.ToLower(e.cfg.InstanceName))
}

// Start performs startup reconciliation and then launches the Poller,
// Orchestrator worker pool, and download worker pool, all bound to ctx.
// Start blocks until ctx is cancelled, then waits for every launched
// goroutine (including tracked background watchers) to finish.
func (e *Engine) Start(ctx context.Context) error {
	reconciler := NewReconciler(e.remote, e.importer, e.planner, e.seen, e.transfers, e.inScope, e.events)
	if err := reconciler.Run(ctx); err != nil {
		log.Warn("engine").Err(err).Msg("startup reconciliation failed, continuing with poller only")
	}

	poller := NewPoller(e.remote, e.cfg.PollingInterval, e.cfg.InstanceName, e.cfg.InstanceFolderID, e.seen, e.transfers, e.events)

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.orchestrator.Run(ctx)
	}()

	for i := 0; i < e.cfg.DownloadWorkers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.downloadWorker(ctx)
		}()
	}

	<-ctx.Done()
	e.wg.Wait()
	e.tracker.Wait()
	return ctx.Err()
}

func (e *Engine) downloadWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-e.tasks:
			if !ok {
				return
			}
			e.runTask(ctx, task)
		}
	}
}

func (e *Engine) runTask(ctx context.Context, task DownloadTask) {
	url, err := e.remote.FileURL(ctx, task.Target.RemoteFileID)
	if err != nil {
		log.Warn("engine").Int64("file_id", task.Target.RemoteFileID).Err(err).Msg("failed to resolve download url")
		task.Result <- DownloadFailed
		return
	}

	if err := e.fetcher.Fetch(ctx, task.Target.RemoteFileID, url, task.Target.LocalPath, task.Target.Size); err != nil {
		log.Warn("engine").Str("path", task.Target.LocalPath).Err(err).Msg("fetch failed")
		task.Result <- DownloadFailed
		return
	}

	task.Result <- DownloadSuccess
}

// Transfers returns a snapshot of every transfer the engine currently
// knows about, for the health endpoint and the Transmission façade's
// torrent-get translation.
func (e *Engine) Transfers() []*Transfer {
	return e.transfers.All()
}

// ActiveWatchers reports how many background watchers are currently
// tracked, for the health endpoint.
func (e *Engine) ActiveWatchers() int {
	return e.tracker.Len()
}
