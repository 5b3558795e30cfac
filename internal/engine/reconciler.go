package engine

import (
	"context"

	"github.com/dlbridge/putioarr/internal/log"
)

// Reconciler runs once at startup, before the Poller begins, to classify
// every in-scope put.io transfer that already existed when the process
// started. Transfers whose remote files have already been imported by an
// Arr service are marked seen and PhaseImported so they are never
// replanned or re-fetched; everything else is left untouched so the
// Poller's first tick discovers it exactly as it would discover a newly
// created transfer.
type Reconciler struct {
	remote    RemoteClient
	importer  ImportChecker
	planner   *Planner
	seen      *seenSet
	transfers *transferTable
	inScope   func(RemoteTransfer) bool
	emit      chan<- TransferEvent
}

// NewReconciler builds a Reconciler. inScope must apply the same scoping
// rule the Poller uses so the two agree on which transfers belong to this
// instance. emit is the same transfer-events channel the Orchestrator
// consumes: an already-imported transfer is re-entered into the state
// machine by posting EventImported onto it, exactly as the Orchestrator
// would after a live import, so the Orchestrator's own handler spawns the
// Seed-watcher instead of the reconciler duplicating that logic.
func NewReconciler(remote RemoteClient, importer ImportChecker, planner *Planner, seen *seenSet, transfers *transferTable, inScope func(RemoteTransfer) bool, emit chan<- TransferEvent) *Reconciler {
	return &Reconciler{remote: remote, importer: importer, planner: planner, seen: seen, transfers: transfers, inScope: inScope, emit: emit}
}

// Run performs the one-shot classification pass.
func (r *Reconciler) Run(ctx context.Context) error {
	remoteTransfers, err := r.remote.ListTransfers(ctx)
	if err != nil {
		return err
	}

	for _, rt := range remoteTransfers {
		if !r.inScope(rt) {
			continue
		}
		if rt.FileID == 0 {
			// Not yet downloadable: leave it unseen so the Poller picks
			// it up once put.io assigns a file_id, exactly as it would
			// for a transfer discovered after startup.
			continue
		}

		t := NewTransfer(rt.ID, rt.Hash, rt.Name, rt.SaveParentID, rt.FileID)

		plan, err := r.planner.Plan(ctx, t)
		if err != nil {
			log.Warn("reconciler").Int64("transfer_id", rt.ID).Err(err).Msg("failed to plan during reconciliation, leaving for the poller to retry")
			continue
		}
		t.SetTargets(plan)

		imported, matchedAt, err := r.allImported(ctx, plan)
		if err != nil {
			log.Debug("reconciler").Int64("transfer_id", rt.ID).Err(err).Msg("import check failed during reconciliation, leaving for the poller to retry")
			continue
		}

		if imported {
			r.transfers.Store(t)
			r.seen.Insert(rt.ID)
			log.Info("reconciler").Int64("transfer_id", rt.ID).Str("path", matchedAt).Msg("transfer already imported, skipping re-download")
			select {
			case r.emit <- TransferEvent{Kind: EventImported, Transfer: t}:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		// Not yet imported: leave it out of the seen-set entirely so
		// the Poller's first tick discovers it exactly as it would
		// discover any other in-progress transfer, driving it through
		// the ordinary QueuedForDownload pipeline (the fetcher's
		// idempotent replay means any bytes already on disk are not
		// re-fetched).
	}

	return nil
}

func (r *Reconciler) allImported(ctx context.Context, plan []*DownloadTarget) (bool, string, error) {
	for _, target := range plan {
		if target.Kind == KindFolder {
			continue
		}
		ok, _, err := r.importer.CheckImported(ctx, target.LocalPath)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, "", nil
		}
	}
	if len(plan) == 0 {
		return false, "", nil
	}
	return true, plan[0].LocalPath, nil
}
