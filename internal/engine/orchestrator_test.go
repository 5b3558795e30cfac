package engine

import (
	"context"
	"testing"
	"time"
)

type fakeImporter struct {
	imported map[string]bool
}

func newFakeImporter() *fakeImporter {
	return &fakeImporter{imported: make(map[string]bool)}
}

func (f *fakeImporter) CheckImported(ctx context.Context, path string) (bool, string, error) {
	return f.imported[path], "TestArr", nil
}

func TestOrchestratorDownloadsThenEmitsDownloaded(t *testing.T) {
	remote := newFakeRemote()
	remote.addDir(1, 0, "Movie")
	remote.addFile(2, 1, "Movie.mkv", 4)
	remote.urls[2] = "file://movie"

	transfer := NewTransfer(100, "hash", "Movie", 0, 1)
	planner := NewPlanner(remote, t.TempDir(), nil)
	tracker := newTaskTracker()

	events := make(chan TransferEvent, 10)
	tasks := make(chan DownloadTask, 10)

	orch := NewOrchestrator(planner, remote, newFakeImporter(), tracker, 2, events, events, tasks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go orch.Run(ctx)

	events <- TransferEvent{Kind: EventQueuedForDownload, Transfer: transfer}

	// Serve the one download task ourselves, simulating a fetch worker.
	select {
	case task := <-tasks:
		task.Result <- DownloadSuccess
	case <-time.After(2 * time.Second):
		t.Fatal("expected a download task to be dispatched")
	}

	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if transfer.Phase() == PhaseDownloaded {
				return
			}
		case <-deadline:
			t.Fatalf("transfer never reached PhaseDownloaded, got %s", transfer.Phase())
		}
	}
}

// TestOrchestratorDropsEmptyPlanWithoutAdvancing covers the skip-root
// boundary case: a root folder matching the skip list yields an empty
// plan, which must be logged and dropped, not treated as downloaded.
func TestOrchestratorDropsEmptyPlanWithoutAdvancing(t *testing.T) {
	remote := newFakeRemote()
	remote.addDir(1, 0, "Sample")
	remote.addFile(2, 1, "whatever.mkv", 4)

	transfer := NewTransfer(100, "hash", "Sample", 0, 1)
	planner := NewPlanner(remote, t.TempDir(), []string{"sample"})
	tracker := newTaskTracker()

	events := make(chan TransferEvent, 10)
	tasks := make(chan DownloadTask, 10)

	orch := NewOrchestrator(planner, remote, newFakeImporter(), tracker, 2, events, events, tasks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go orch.Run(ctx)

	events <- TransferEvent{Kind: EventQueuedForDownload, Transfer: transfer}

	select {
	case <-tasks:
		t.Fatal("expected no download task for an empty plan")
	case <-time.After(200 * time.Millisecond):
	}

	if phase := transfer.Phase(); phase != PhaseDiscovered {
		t.Fatalf("transfer phase = %s, want %s (dropped, never advanced)", phase, PhaseDiscovered)
	}
}
