package facade

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dlbridge/putioarr/internal/engine"
	"github.com/dlbridge/putioarr/internal/log"
)

type torrentAddArgs struct {
	Filename    string `json:"filename"`
	Metainfo    string `json:"metainfo"`
	DownloadDir string `json:"download-dir"`
}

// handleTorrentAdd implements Transmission's torrent-add: either a
// magnet/URL (filename) or a base64-encoded .torrent file (metainfo) is
// handed straight to put.io, which does its own fetching; putioarr never
// downloads the .torrent's pieces itself. The category implied by
// download-dir, if present, is remembered so torrent-get can echo it back.
func (s *Server) handleTorrentAdd(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args torrentAddArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode torrent-add arguments: %w", err)
	}

	var hash string
	var err error
	switch {
	case args.Metainfo != "":
		data, decodeErr := base64.StdEncoding.DecodeString(args.Metainfo)
		if decodeErr != nil {
			return nil, fmt.Errorf("decode metainfo: %w", decodeErr)
		}
		hash, err = s.client.UploadFile(ctx, data, "upload.torrent", s.folderID)
	case args.Filename != "":
		hash, err = s.client.AddTransfer(ctx, args.Filename, s.folderID)
	default:
		return nil, fmt.Errorf("torrent-add requires filename or metainfo")
	}
	if err != nil {
		return nil, fmt.Errorf("add transfer: %w", err)
	}

	if args.DownloadDir != "" {
		s.categories.Set(hash, args.DownloadDir)
	}

	log.Info("facade").Str("hash", hash).Msg("torrent-add accepted")

	return map[string]interface{}{
		"torrent-added": map[string]interface{}{
			"hashString": hash,
			"name":       args.Filename,
			"id":         hashToID(hash),
		},
	}, nil
}

type torrentGetArgs struct {
	Fields []string      `json:"fields"`
	IDs    []interface{} `json:"ids"`
}

// handleTorrentGet projects the engine's in-memory Transfers into
// Transmission's torrent-get shape. Percent-complete is derived from the
// engine phase alone (see progressFor): 0% when discovered, 50% while
// targets are being fetched to local disk, 100% from the moment every
// target has landed, before the Arr import. put.io's own transfer
// progress is not read.
func (s *Server) handleTorrentGet(raw json.RawMessage) (interface{}, error) {
	var args torrentGetArgs
	_ = json.Unmarshal(raw, &args)

	var torrents []map[string]interface{}
	for _, t := range s.engine.Transfers() {
		torrents = append(torrents, s.projectTorrent(t))
	}

	return map[string]interface{}{"torrents": torrents}, nil
}

func (s *Server) projectTorrent(t *engine.Transfer) map[string]interface{} {
	percent, status := progressFor(t.Phase())
	category := s.categories.Get(t.Hash)

	downloadDir := s.cfg.DownloadDirectory
	if category != "" {
		downloadDir = category
	}

	return map[string]interface{}{
		"id":              hashToID(t.Hash),
		"hashString":      t.Hash,
		"name":            t.Name,
		"status":          status,
		"percentDone":     percent,
		"isFinished":      t.Phase() == engine.PhaseDone || t.Phase() == engine.PhaseSeeded,
		"downloadDir":     downloadDir,
		"errorString":     errorString(t),
		"rateDownload":    0,
		"uploadRatio":     0,
	}
}

func errorString(t *engine.Transfer) string {
	if t.Phase() == engine.PhaseFailed {
		if err := t.Err(); err != nil {
			return err.Error()
		}
	}
	return ""
}

// progressFor maps an engine.Phase to a Transmission status code (4 =
// downloading, 6 = seeding, per the Transmission RPC spec) and a
// percent-complete estimate.
func progressFor(phase engine.Phase) (float64, int) {
	switch phase {
	case engine.PhaseDiscovered:
		return 0.0, 4
	case engine.PhaseDownloading:
		return 0.5, 4
	case engine.PhaseDownloaded, engine.PhaseImported:
		return 1.0, 4
	case engine.PhaseSeeded:
		return 1.0, 6
	case engine.PhaseDone:
		return 1.0, 6
	case engine.PhaseFailed:
		return 0.0, 0
	default:
		return 0.0, 4
	}
}

type torrentRemoveArgs struct {
	IDs             []interface{} `json:"ids"`
	DeleteLocalData bool          `json:"delete-local-data"`
}

// handleTorrentRemove satisfies Sonarr/Radarr's post-import cleanup call.
// The engine already removes the remote transfer itself once seeding
// ends (the seed-watcher); this handler only needs to drop the façade's
// own category bookkeeping so it does not leak forever.
func (s *Server) handleTorrentRemove(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args torrentRemoveArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode torrent-remove arguments: %w", err)
	}

	for _, t := range s.engine.Transfers() {
		for _, id := range args.IDs {
			if matchesID(id, t) {
				s.categories.Remove(t.Hash)
			}
		}
	}

	return struct{}{}, nil
}

func matchesID(id interface{}, t *engine.Transfer) bool {
	switch v := id.(type) {
	case string:
		return v == t.Hash
	case float64:
		return int64(v) == hashToID(t.Hash)
	default:
		return false
	}
}

// hashToID derives a stable numeric id from a transfer hash for the
// fields of the Transmission RPC schema that expect an integer id,
// without needing a second id allocator anywhere in the engine.
func hashToID(hash string) int64 {
	var id int64
	for i := 0; i < len(hash); i++ {
		id = id*131 + int64(hash[i])
	}
	if id < 0 {
		id = -id
	}
	return id
}
