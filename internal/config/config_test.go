package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
)

const sampleConfig = `
download_directory = %q
polling_interval = 15
orchestration_workers = 5
download_workers = 2

[sonarr]
url = "http://sonarr.local:8989"
api_key = "sonarr-key"
`

func TestLoadAppliesFileValuesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(sprintfSample(dir)), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.PollingInterval != 15 {
		t.Errorf("PollingInterval = %d, want 15", cfg.PollingInterval)
	}
	if cfg.OrchestrationWorkers != 5 {
		t.Errorf("OrchestrationWorkers = %d, want 5", cfg.OrchestrationWorkers)
	}
	if cfg.Sonarr == nil || cfg.Sonarr.URL != "http://sonarr.local:8989" {
		t.Errorf("Sonarr = %+v, want configured", cfg.Sonarr)
	}
}

// TestSampleConfigRoundTripsThroughToml guards against this file's
// sampleConfig (the text Load reads in the test above) drifting from valid
// TOML, by decoding it with a second, independent TOML implementation.
func TestSampleConfigRoundTripsThroughToml(t *testing.T) {
	dir := t.TempDir()
	raw := sprintfSample(dir)

	var generic map[string]interface{}
	if _, err := toml.Decode(raw, &generic); err != nil {
		t.Fatalf("decode sample config: %v", err)
	}
	if generic["polling_interval"] != int64(15) {
		t.Errorf("polling_interval = %v, want 15", generic["polling_interval"])
	}
}

func TestValidateRequiresArrService(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.DownloadDirectory = dir
	cfg.OAuthToken = "token"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when no Arr service is configured")
	}
}

func sprintfSample(dir string) string {
	return fmt.Sprintf(sampleConfig, dir)
}
