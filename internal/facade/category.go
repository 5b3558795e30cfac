package facade

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/dlbridge/putioarr/internal/log"
)

const stateFileName = ".putioarr-categories.json"

// categoryStore persists a hash → category mapping so torrent-get's
// reported downloadDir can reflect the category Sonarr/Radarr/Whisparr
// attached to the request, even across a façade restart. This is UI
// bookkeeping local to the façade, not engine state: the engine itself
// rediscovers everything from put.io on every restart and never reads
// this file.
type categoryStore struct {
	mu        sync.RWMutex
	mapping   map[string]string
	stateFile string
}

func newCategoryStore(downloadDir string) *categoryStore {
	return &categoryStore{
		mapping:   make(map[string]string),
		stateFile: filepath.Join(downloadDir, stateFileName),
	}
}

func (cs *categoryStore) Load() {
	data, err := os.ReadFile(cs.stateFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error("facade").Err(err).Msg("failed to load category state")
		}
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if err := json.Unmarshal(data, &cs.mapping); err != nil {
		log.Error("facade").Err(err).Msg("failed to parse category state")
	}
}

func (cs *categoryStore) Set(hash, category string) {
	if hash == "" || category == "" {
		return
	}
	cs.mu.Lock()
	cs.mapping[hash] = category
	cs.mu.Unlock()
	cs.save()
}

func (cs *categoryStore) Get(hash string) string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.mapping[hash]
}

func (cs *categoryStore) Remove(hash string) {
	cs.mu.Lock()
	delete(cs.mapping, hash)
	cs.mu.Unlock()
	cs.save()
}

func (cs *categoryStore) save() {
	cs.mu.RLock()
	data, err := json.Marshal(cs.mapping)
	cs.mu.RUnlock()
	if err != nil {
		log.Error("facade").Err(err).Msg("failed to marshal category state")
		return
	}
	if err := os.WriteFile(cs.stateFile, data, 0o644); err != nil {
		log.Error("facade").Err(err).Msg("failed to save category state")
	}
}
