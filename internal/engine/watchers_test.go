package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func init() {
	importPollInterval = 10 * time.Millisecond
	seedPollInterval = 10 * time.Millisecond
}

func TestImportWatcherEmitsImportedOnceAllTargetsMatch(t *testing.T) {
	dir := t.TempDir()
	moviePath := filepath.Join(dir, "Movie")
	if err := os.MkdirAll(moviePath, 0o755); err != nil {
		t.Fatal(err)
	}
	filePath := filepath.Join(moviePath, "Movie.mkv")
	if err := os.WriteFile(filePath, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	transfer := NewTransfer(1, "hash", "Movie", 0, 1)
	transfer.SetTargets([]*DownloadTarget{
		{RemoteName: "Movie", LocalPath: moviePath, Kind: KindFolder, TopLevel: true},
		{RemoteName: "Movie.mkv", LocalPath: filePath, Kind: KindVideo},
	})

	importer := newFakeImporter()
	events := make(chan TransferEvent, 1)
	watcher := NewImportWatcher(importer, transfer, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		watcher.Run(ctx)
		close(done)
	}()

	// Not yet imported: watcher must not emit anything.
	select {
	case ev := <-events:
		t.Fatalf("unexpected early event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	importer.imported[filePath] = true

	select {
	case ev := <-events:
		if ev.Kind != EventImported {
			t.Fatalf("Kind = %v, want EventImported", ev.Kind)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected an Imported event once target is marked imported")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher should return after emitting Imported")
	}

	if _, err := os.Stat(moviePath); !os.IsNotExist(err) {
		t.Fatalf("expected top-level artifact %s to be deleted after import, stat err = %v", moviePath, err)
	}
}

func TestSeedWatcherCleansUpAfterSeedingEnds(t *testing.T) {
	remote := newFakeRemote()
	remote.transfers[1] = RemoteTransfer{ID: 1, Status: StatusSeeding}

	transfer := NewTransfer(1, "hash", "Movie", 0, 42)
	watcher := NewSeedWatcher(remote, transfer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		watcher.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	remote.transfers[1] = RemoteTransfer{ID: 1, Status: StatusCompleted}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("seed watcher never finished after transfer left SEEDING")
	}

	if len(remote.deletedTransfers) != 1 || remote.deletedTransfers[0] != 1 {
		t.Errorf("deletedTransfers = %v, want [1]", remote.deletedTransfers)
	}
	if len(remote.deletedFiles) != 1 || remote.deletedFiles[0] != 42 {
		t.Errorf("deletedFiles = %v, want [42]", remote.deletedFiles)
	}
	if transfer.Phase() != PhaseDone {
		t.Errorf("Phase() = %v, want PhaseDone", transfer.Phase())
	}
}
