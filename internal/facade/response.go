package facade

import (
	"encoding/json"
	"net/http"

	"github.com/dlbridge/putioarr/internal/log"
)

func (s *Server) sendError(w http.ResponseWriter, err error) {
	log.Warn("facade").Err(err).Msg("error processing rpc request")

	resp := struct {
		Result  string `json:"result"`
		Message string `json:"message,omitempty"`
	}{Result: "error", Message: err.Error()}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendResponse(w http.ResponseWriter, tag interface{}, result interface{}) {
	resp := struct {
		Tag       interface{} `json:"tag,omitempty"`
		Result    string      `json:"result"`
		Arguments interface{} `json:"arguments"`
	}{Tag: tag, Result: "success", Arguments: result}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Transmission-Session-Id", "putioarr")
	json.NewEncoder(w).Encode(resp)
}
