// Package facade implements the inbound Transmission-RPC-compatible HTTP
// front door that lets Sonarr/Radarr/Whisparr drive putioarr as if it were
// a local Transmission daemon, translating torrent-add/-get/-remove calls
// onto the put.io client and the orchestration engine.
package facade

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/elsbrock/go-putio"

	"github.com/dlbridge/putioarr/internal/config"
	"github.com/dlbridge/putioarr/internal/engine"
	"github.com/dlbridge/putioarr/internal/log"
)

// PutioClient abstracts the put.io calls the façade makes directly,
// independent of the engine's own RemoteClient capability.
type PutioClient interface {
	AccountInfo(ctx context.Context) (putio.AccountInfo, error)
	EnsureFolder(ctx context.Context, name string) (int64, error)
	AddTransfer(ctx context.Context, magnetLink string, folderID int64) (string, error)
	UploadFile(ctx context.Context, data []byte, filename string, folderID int64) (string, error)
}

// EngineView is the subset of the orchestration engine the façade reads
// from to answer torrent-get.
type EngineView interface {
	Transfers() []*engine.Transfer
	ActiveWatchers() int
}

// Server serves the Transmission-RPC surface on cfg.ListenAddr.
type Server struct {
	cfg        *config.Config
	client     PutioClient
	engine     EngineView
	categories *categoryStore
	folderID   int64

	srv          *http.Server
	quotaTicker  *time.Ticker
	stopChan     chan struct{}
	quotaWarning atomic.Bool
	startedAt    time.Time
}

// New builds a Server. folderID is the put.io folder new transfers are
// added under.
func New(cfg *config.Config, client PutioClient, eng EngineView, folderID int64) *Server {
	categories := newCategoryStore(cfg.DownloadDirectory)
	categories.Load()

	return &Server{
		cfg:         cfg,
		client:      client,
		engine:      eng,
		categories:  categories,
		folderID:    folderID,
		stopChan:    make(chan struct{}),
		quotaTicker: time.NewTicker(15 * time.Minute),
	}
}

// Start begins listening. It blocks until the server stops.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/transmission/rpc", s.withBasicAuth(s.handleRPC))
	mux.HandleFunc("/healthz", s.handleHealth)

	s.srv = &http.Server{Addr: s.cfg.ListenAddr, Handler: mux}

	if account, err := s.client.AccountInfo(context.Background()); err != nil {
		log.Warn("facade").Err(err).Msg("failed to get account info")
	} else {
		log.Info("facade").
			Str("username", account.Username).
			Int64("storage_used_mb", account.Disk.Used/1024/1024).
			Int64("storage_total_mb", account.Disk.Size/1024/1024).
			Msg("put.io account status")
	}

	if overQuota, err := s.checkDiskQuota(); err != nil {
		log.Warn("facade").Err(err).Msg("failed to check initial disk quota")
	} else if overQuota {
		log.Warn("facade").Msg("put.io account is over quota on startup")
	}

	go func() {
		for {
			select {
			case <-s.quotaTicker.C:
				if _, err := s.checkDiskQuota(); err != nil {
					log.Error("facade").Err(err).Msg("failed to check disk quota")
				}
			case <-s.stopChan:
				return
			}
		}
	}()

	log.Info("facade").Str("addr", s.cfg.ListenAddr).Msg("starting transmission-rpc server")
	return s.srv.ListenAndServe()
}

// Stop halts the quota monitor and closes the server immediately; in-flight
// requests are not waited for.
func (s *Server) Stop() error {
	s.quotaTicker.Stop()
	close(s.stopChan)
	if s.srv != nil {
		return s.srv.Close()
	}
	return nil
}

// withBasicAuth enforces cfg.Username/cfg.Password over the RPC endpoint
// when either is configured (an unset one must then be sent empty), matching the credentials an Arr service is
// given in its Download Client settings. With neither set, the endpoint
// is left open, as most single-user deployments run it.
func (s *Server) withBasicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Username == "" && s.cfg.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.cfg.Username || pass != s.cfg.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="putioarr"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) checkDiskQuota() (bool, error) {
	account, err := s.client.AccountInfo(context.Background())
	if err != nil {
		return false, err
	}
	if account.Disk.Size == 0 {
		return false, nil
	}
	usagePercent := float64(account.Disk.Used) / float64(account.Disk.Size) * 100
	overQuota := usagePercent >= 95

	if overQuota && !s.quotaWarning.Load() {
		log.Warn("facade").Msgf("put.io account is over quota (%.1f%% used)", usagePercent)
		s.quotaWarning.Store(true)
	} else if !overQuota && s.quotaWarning.Load() {
		s.quotaWarning.Store(false)
	}
	return overQuota, nil
}
