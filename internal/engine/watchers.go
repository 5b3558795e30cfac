package engine

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/dlbridge/putioarr/internal/log"
)

// Polling intervals for the spawned watchers. Declared as vars rather than
// consts so tests can shrink them instead of sleeping real-world seconds.
var (
	importPollInterval = 15 * time.Second
	seedPollInterval   = 30 * time.Second
)

// ImportWatcher polls the configured Arr services until every non-folder
// target of a downloaded Transfer is reported imported, then emits an
// Imported event. It has no age-out ceiling: a transfer an Arr service
// never imports is watched for the life of the process.
type ImportWatcher struct {
	importer ImportChecker
	transfer *Transfer
	emit     chan<- TransferEvent
}

// NewImportWatcher builds an ImportWatcher for t.
func NewImportWatcher(importer ImportChecker, t *Transfer, emit chan<- TransferEvent) *ImportWatcher {
	return &ImportWatcher{importer: importer, transfer: t, emit: emit}
}

// Run blocks until every target is imported or ctx is cancelled. An
// import check that fails for any other reason is logged at error level
// and ends the watch; the watcher does not restart itself.
func (w *ImportWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(importPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("import-watcher").Int64("transfer_id", w.transfer.ID).Msg("cancelled")
			return nil
		case <-ticker.C:
			done, err := w.checkAll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					log.Debug("import-watcher").Int64("transfer_id", w.transfer.ID).Msg("cancelled")
					return nil
				}
				log.Error("import-watcher").Int64("transfer_id", w.transfer.ID).Err(err).Msg("import check failed, abandoning watch")
				return nil
			}
			if done {
				w.deleteTopLevelArtifact()
				select {
				case w.emit <- TransferEvent{Kind: EventImported, Transfer: w.transfer}:
				case <-ctx.Done():
				}
				return nil
			}
		}
	}
}

// deleteTopLevelArtifact removes the transfer's single top-level local
// entry once every target is confirmed imported: the whole directory tree
// if the plan's top-level target was a folder, or the lone file otherwise.
// A path that is already gone is not an error — cleanup is best-effort and
// idempotent against a replayed or partially-completed prior run.
func (w *ImportWatcher) deleteTopLevelArtifact() {
	for _, target := range w.transfer.Targets() {
		if !target.TopLevel {
			continue
		}
		var err error
		if target.Kind == KindFolder {
			err = os.RemoveAll(target.LocalPath)
		} else {
			err = os.Remove(target.LocalPath)
			if os.IsNotExist(err) {
				err = nil
			}
		}
		if err != nil {
			log.Warn("import-watcher").Int64("transfer_id", w.transfer.ID).Str("path", target.LocalPath).Err(err).Msg("failed to delete local artifact")
		}
		return
	}
}

func (w *ImportWatcher) checkAll(ctx context.Context) (bool, error) {
	for _, target := range w.transfer.Targets() {
		if target.Kind == KindFolder {
			continue
		}
		ok, _, err := w.importer.CheckImported(ctx, target.LocalPath)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// SeedWatcher polls put.io until a transfer leaves SEEDING status, then
// performs best-effort remote cleanup: remove the transfer and delete its
// root file. Either call failing with a 404-equivalent is treated as
// success, since the outcome the cleanup wants (the remote object being
// gone) already holds.
type SeedWatcher struct {
	remote   RemoteClient
	transfer *Transfer
}

// NewSeedWatcher builds a SeedWatcher for t.
func NewSeedWatcher(remote RemoteClient, t *Transfer) *SeedWatcher {
	return &SeedWatcher{remote: remote, transfer: t}
}

// Run blocks until the transfer is no longer SEEDING (or ctx is
// cancelled), then cleans it up remotely.
func (w *SeedWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(seedPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("seed-watcher").Int64("transfer_id", w.transfer.ID).Msg("cancelled")
			return nil
		case <-ticker.C:
			rt, err := w.remote.GetTransfer(ctx, w.transfer.ID)
			if err != nil {
				if isNotFound(err) {
					w.transfer.SetPhase(PhaseDone)
					return nil
				}
				log.Warn("seed-watcher").Int64("transfer_id", w.transfer.ID).Err(err).Msg("failed to poll transfer status")
				continue
			}
			if rt.Status == StatusSeeding {
				continue
			}
			w.cleanup(ctx)
			return nil
		}
	}
}

func (w *SeedWatcher) cleanup(ctx context.Context) {
	if err := w.remote.DeleteTransfer(ctx, w.transfer.ID); err != nil && !isNotFound(err) {
		log.Warn("seed-watcher").Int64("transfer_id", w.transfer.ID).Err(err).Msg("failed to remove remote transfer")
	}
	if err := w.remote.DeleteFile(ctx, w.transfer.RootFileID); err != nil && !isNotFound(err) {
		log.Warn("seed-watcher").Int64("transfer_id", w.transfer.ID).Err(err).Msg("failed to delete remote file")
	}
	w.transfer.SetPhase(PhaseDone)
	log.Info("seed-watcher").Int64("transfer_id", w.transfer.ID).Msg("remote cleanup complete")
}

// isNotFound reports whether err represents a put.io 404, which the
// cleanup paths treat as an already-satisfied precondition rather than a
// failure: at-most-once delivery of a delete is indistinguishable from the
// object already being gone.
func isNotFound(err error) bool {
	var nf interface{ NotFound() bool }
	if errors.As(err, &nf) {
		return nf.NotFound()
	}
	return false
}
