package engine

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	grab "github.com/cavaliergopher/grab/v3"

	"github.com/dlbridge/putioarr/internal/log"
)

const downloadingSuffix = ".downloading"

// GrabFetcher fetches remote files to local disk using grab, following the
// temp-sibling-then-rename discipline: a file is streamed to
// "<name>.downloading" next to its final path and renamed into place only
// once the transfer completes successfully, so a fetch that dies mid-way
// never leaves a partial file under its final name.
type GrabFetcher struct {
	client          *grab.Client
	progressTicker  time.Duration
}

// NewGrabFetcher builds a Fetcher configured the way the put.io bridge's
// own download client has always been configured: compression disabled
// (most payloads are already-compressed media), keep-alives on, and
// generous idle/header timeouts so a slow-to-respond put.io edge node
// doesn't trip a false failure.
func NewGrabFetcher(idleConnTimeout, headerTimeout time.Duration) *GrabFetcher {
	client := grab.NewClient()
	client.HTTPClient = &http.Client{
		Timeout: 0,
		Transport: &http.Transport{
			DisableCompression:    true,
			DisableKeepAlives:     false,
			IdleConnTimeout:       idleConnTimeout,
			ResponseHeaderTimeout: headerTimeout,
		},
	}
	return &GrabFetcher{client: client, progressTicker: 5 * time.Second}
}

// Fetch downloads url to localPath. If localPath already exists and its
// size matches size, Fetch returns immediately without any network I/O —
// the replay is idempotent so a crashed-and-restarted engine doesn't
// re-download files it already has.
func (f *GrabFetcher) Fetch(ctx context.Context, fileID int64, url string, localPath string, size int64) error {
	if fi, err := os.Stat(localPath); err == nil && !fi.IsDir() {
		if size <= 0 || fi.Size() == size {
			log.Debug("fetcher").Str("path", localPath).Msg("already present, skipping fetch")
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	tmpPath := localPath + downloadingSuffix

	req, err := grab.NewRequest(tmpPath, url)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	req = req.WithContext(ctx)
	req.NoResume = true
	req.SkipExisting = false

	log.Info("fetcher").Str("path", localPath).Int64("size", size).Msg("starting download")

	resp := f.client.Do(req)

	ticker := time.NewTicker(f.progressTicker)
	defer ticker.Stop()

progress:
	for {
		select {
		case <-ticker.C:
			log.Debug("fetcher").
				Str("path", localPath).
				Float64("progress", resp.Progress()).
				Int64("bytes", resp.BytesComplete()).
				Msg("download progress")
		case <-resp.Done:
			break progress
		}
	}

	if err := resp.Err(); err != nil {
		_ = os.Remove(tmpPath)
		return &FetchError{Target: &DownloadTarget{RemoteFileID: fileID, RemoteName: filepath.Base(localPath)}, Err: err}
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		return fmt.Errorf("finalize download %s: %w", localPath, err)
	}

	log.Info("fetcher").Str("path", localPath).Msg("download complete")
	return nil
}
