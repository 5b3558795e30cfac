package engine

import (
	"context"
	"strings"
	"time"

	"github.com/dlbridge/putioarr/internal/log"
)

// Poller periodically lists put.io transfers scoped to this instance
// (either by save_parent_id, or by a name tag when the instance does not
// own a dedicated folder) and emits a QueuedForDownload event the first
// time it sees a transfer that has a file_id, i.e. one put.io has
// materialized into a file tree that can be planned. The remote status is
// not consulted.
type Poller struct {
	remote       RemoteClient
	interval     time.Duration
	instanceTag  string
	instanceDir  int64
	seen         *seenSet
	transfers    *transferTable
	events       chan<- TransferEvent

	lastSummary time.Time
}

// NewPoller builds a Poller. instanceDir scopes listing to transfers saved
// under that put.io folder; when instanceDir is 0, transfers are scoped by
// instanceTag appearing in the transfer name instead, matching a
// multi-instance deployment that shares a single put.io account without a
// dedicated folder per instance.
func NewPoller(remote RemoteClient, interval time.Duration, instanceTag string, instanceDir int64, seen *seenSet, transfers *transferTable, events chan<- TransferEvent) *Poller {
	return &Poller{
		remote:      remote,
		interval:    interval,
		instanceTag: instanceTag,
		instanceDir: instanceDir,
		seen:        seen,
		transfers:   transfers,
		events:      events,
	}
}

// Run blocks, polling every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) inScope(rt RemoteTransfer) bool {
	if p.instanceDir != 0 {
		return rt.SaveParentID == p.instanceDir
	}
	return p.instanceTag == "" || strings.Contains(strings.ToLower(rt.Name), strings.ToLower(p.instanceTag))
}

func (p *Poller) tick(ctx context.Context) {
	remoteTransfers, err := p.remote.ListTransfers(ctx)
	if err != nil {
		log.Warn("poller").Err(err).Msg("failed to list transfers")
		return
	}

	live := make(map[int64]struct{}, len(remoteTransfers))
	active := 0

	for _, rt := range remoteTransfers {
		if !p.inScope(rt) {
			continue
		}
		live[rt.ID] = struct{}{}
		active++

		if p.seen.Contains(rt.ID) {
			continue
		}
		if rt.FileID == 0 {
			// Not yet downloadable: leave it unseen so a later tick, once
			// put.io assigns a file_id, dispatches it normally.
			continue
		}
		p.seen.Insert(rt.ID)

		t := NewTransfer(rt.ID, rt.Hash, rt.Name, rt.SaveParentID, rt.FileID)
		p.transfers.Store(t)

		select {
		case p.events <- TransferEvent{Kind: EventQueuedForDownload, Transfer: t}:
		case <-ctx.Done():
			return
		}
	}

	p.seen.Prune(live)

	if time.Since(p.lastSummary) >= time.Minute {
		log.Info("poller").Int("active_transfers", active).Msg("Active transfers")
		p.lastSummary = time.Now()
	}
}
