package facade

import (
	"encoding/json"
	"net/http"

	"github.com/dlbridge/putioarr/internal/log"
)

// handleRPC dispatches a transmission-rpc request the way a real
// Transmission daemon would: a bare GET is treated as session-get (the
// Arr apps probe this before their first real call), a POST carries the
// method/arguments envelope.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method    string          `json:"method"`
		Arguments json.RawMessage `json:"arguments"`
		Tag       interface{}     `json:"tag,omitempty"`
	}

	switch r.Method {
	case http.MethodGet:
		req.Method = "session-get"
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Warn("facade").Str("remote", r.RemoteAddr).Err(err).Msg("failed to decode rpc request")
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		result interface{}
		err    error
	)

	switch req.Method {
	case "torrent-add":
		result, err = s.handleTorrentAdd(r.Context(), req.Arguments)
	case "torrent-get":
		result, err = s.handleTorrentGet(req.Arguments)
	case "torrent-remove":
		result, err = s.handleTorrentRemove(r.Context(), req.Arguments)
	case "session-get":
		result = map[string]interface{}{
			"download-dir":        s.cfg.DownloadDirectory,
			"version":             "2.94",
			"rpc-version":         15,
			"rpc-version-minimum": 1,
		}
	default:
		result = struct{}{}
	}

	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendResponse(w, req.Tag, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"status":          "ok",
		"uptime_seconds":  int(timeSinceStart(s.startedAt)),
		"active_watchers": s.engine.ActiveWatchers(),
		"transfers":       len(s.engine.Transfers()),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
