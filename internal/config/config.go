// Package config loads and validates putioarr's configuration, sourced
// from a TOML file with environment-variable overrides under the PLDR_
// prefix, following the pattern the teacher's cmd/plundrio/main.go set up
// around viper.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	MinPollingInterval      = 1
	MaxPollingInterval      = 3600
	MinDownloadWorkers      = 1
	MaxDownloadWorkers      = 100
	MinOrchestrationWorkers = 1
	MaxOrchestrationWorkers = 100
)

// ArrService holds the URL and API key for one Sonarr/Radarr/Whisparr
// instance.
type ArrService struct {
	URL    string
	APIKey string
}

// Config is putioarr's full runtime configuration: the engine's
// orchestration parameters plus the façade's listen/auth settings.
type Config struct {
	// Core orchestration settings (spec configuration table).
	DownloadDirectory    string
	PollingInterval      int
	OrchestrationWorkers int
	DownloadWorkers      int
	SkipDirectories      []string
	InstanceName         string
	InstanceFolderID     int64

	Sonarr   *ArrService
	Radarr   *ArrService
	Whisparr *ArrService

	// put.io credentials.
	OAuthToken string

	// Façade settings (the Transmission-RPC front door and its auth).
	ListenAddr string
	Username   string
	Password   string

	LogLevel string
}

// Default returns a Config with the defaults from spec.md's configuration
// table.
func Default() *Config {
	return &Config{
		DownloadDirectory:    "/downloads",
		PollingInterval:      10,
		OrchestrationWorkers: 10,
		DownloadWorkers:      4,
		SkipDirectories:      []string{"sample", "extras"},
		ListenAddr:           "0.0.0.0:9091",
		LogLevel:             "info",
	}
}

// DefaultConfigPath returns the conventional location generate-config
// writes to and run reads from by default.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "putioarr", "config.toml"), nil
}

// Load reads configPath (TOML) layered over Default, then applies PLDR_
// environment overrides via viper.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	v.SetEnvPrefix("PLDR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("download_directory", def.DownloadDirectory)
	v.SetDefault("polling_interval", def.PollingInterval)
	v.SetDefault("orchestration_workers", def.OrchestrationWorkers)
	v.SetDefault("download_workers", def.DownloadWorkers)
	v.SetDefault("skip_directories", def.SkipDirectories)
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("loglevel", def.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{
		DownloadDirectory:    v.GetString("download_directory"),
		PollingInterval:      v.GetInt("polling_interval"),
		OrchestrationWorkers: v.GetInt("orchestration_workers"),
		DownloadWorkers:      v.GetInt("download_workers"),
		SkipDirectories:      v.GetStringSlice("skip_directories"),
		InstanceName:         v.GetString("instance_name"),
		InstanceFolderID:     v.GetInt64("instance_folder_id"),
		OAuthToken:           v.GetString("putio_oauth_token"),
		ListenAddr:           v.GetString("listen_addr"),
		Username:             v.GetString("username"),
		Password:             v.GetString("password"),
		LogLevel:             v.GetString("loglevel"),
	}

	if v.IsSet("sonarr.url") {
		cfg.Sonarr = &ArrService{URL: v.GetString("sonarr.url"), APIKey: v.GetString("sonarr.api_key")}
	}
	if v.IsSet("radarr.url") {
		cfg.Radarr = &ArrService{URL: v.GetString("radarr.url"), APIKey: v.GetString("radarr.api_key")}
	}
	if v.IsSet("whisparr.url") {
		cfg.Whisparr = &ArrService{URL: v.GetString("whisparr.url"), APIKey: v.GetString("whisparr.api_key")}
	}

	return cfg, nil
}

// ArrServices returns every configured Arr instance with its display name.
func (c *Config) ArrServices() []struct {
	Name    string
	Service ArrService
} {
	var out []struct {
		Name    string
		Service ArrService
	}
	if c.Sonarr != nil {
		out = append(out, struct {
			Name    string
			Service ArrService
		}{"Sonarr", *c.Sonarr})
	}
	if c.Radarr != nil {
		out = append(out, struct {
			Name    string
			Service ArrService
		}{"Radarr", *c.Radarr})
	}
	if c.Whisparr != nil {
		out = append(out, struct {
			Name    string
			Service ArrService
		}{"Whisparr", *c.Whisparr})
	}
	return out
}

// Validate checks the configuration against spec.md's invariants: a
// writable download directory, at least one Arr service, and every
// numeric field within its documented bound.
func (c *Config) Validate() error {
	if c.DownloadDirectory == "" {
		return fmt.Errorf("download_directory is required")
	}
	info, err := os.Stat(c.DownloadDirectory)
	if err != nil {
		return fmt.Errorf("download_directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("download_directory is not a directory: %s", c.DownloadDirectory)
	}
	tmp, err := os.CreateTemp(c.DownloadDirectory, ".putioarr-perm-*")
	if err != nil {
		return fmt.Errorf("download_directory is not writable: %w", err)
	}
	tmp.Close()
	os.Remove(tmp.Name())

	if c.OAuthToken == "" {
		return fmt.Errorf("putio oauth token is required")
	}

	if c.Sonarr == nil && c.Radarr == nil && c.Whisparr == nil {
		return fmt.Errorf("at least one of sonarr, radarr, or whisparr must be configured")
	}
	for _, svc := range c.ArrServices() {
		if err := validateArr(svc.Name, svc.Service); err != nil {
			return err
		}
	}

	if c.PollingInterval < MinPollingInterval || c.PollingInterval > MaxPollingInterval {
		return fmt.Errorf("polling_interval must be between %d and %d seconds", MinPollingInterval, MaxPollingInterval)
	}
	if c.DownloadWorkers < MinDownloadWorkers || c.DownloadWorkers > MaxDownloadWorkers {
		return fmt.Errorf("download_workers must be between %d and %d", MinDownloadWorkers, MaxDownloadWorkers)
	}
	if c.OrchestrationWorkers < MinOrchestrationWorkers || c.OrchestrationWorkers > MaxOrchestrationWorkers {
		return fmt.Errorf("orchestration_workers must be between %d and %d", MinOrchestrationWorkers, MaxOrchestrationWorkers)
	}

	return nil
}

func validateArr(name string, svc ArrService) error {
	if svc.URL == "" {
		return fmt.Errorf("%s.url is required", name)
	}
	if _, err := url.ParseRequestURI(svc.URL); err != nil {
		return fmt.Errorf("%s.url is invalid: %w", name, err)
	}
	if svc.APIKey == "" {
		return fmt.Errorf("%s.api_key is required", name)
	}
	return nil
}
