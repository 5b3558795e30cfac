package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dlbridge/putioarr/internal/arr"
	"github.com/dlbridge/putioarr/internal/config"
	"github.com/dlbridge/putioarr/internal/engine"
	"github.com/dlbridge/putioarr/internal/facade"
	"github.com/dlbridge/putioarr/internal/log"
	"github.com/dlbridge/putioarr/internal/putio"
)

var rootCmd = &cobra.Command{
	Use:   "putioarr",
	Short: "put.io to Transmission-RPC bridge for Sonarr/Radarr/Whisparr",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestration engine and the Transmission-RPC façade",
	Run: func(cmd *cobra.Command, args []string) {
		configFile, _ := cmd.Flags().GetString("config")
		if configFile == "" {
			var err error
			configFile, err = config.DefaultConfigPath()
			if err != nil {
				log.Fatal("main").Err(err).Msg("failed to resolve default config path")
			}
		}

		cfg, err := config.Load(configFile)
		if err != nil {
			log.Fatal("main").Str("config", configFile).Err(err).Msg("failed to load configuration")
		}
		if err := cfg.Validate(); err != nil {
			log.Fatal("main").Err(err).Msg("invalid configuration")
		}

		log.SetLevel(log.LogLevel(cfg.LogLevel))

		putioClient := putio.NewClient(cfg.OAuthToken)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.Info("main").Msg("authenticating with put.io")
		if err := putioClient.Authenticate(ctx); err != nil {
			log.Fatal("main").Err(err).Msg("failed to authenticate with put.io")
		}

		folderName := cfg.InstanceName
		if folderName == "" {
			folderName = "putioarr"
		}
		folderID, err := putioClient.EnsureFolder(ctx, folderName)
		if err != nil {
			log.Fatal("main").Err(err).Msg("failed to create/get put.io folder")
		}
		cfg.InstanceFolderID = folderID
		log.Info("main").Str("folder", folderName).Int64("folder_id", folderID).Msg("put.io folder ready")

		var services []arr.ServiceConfig
		for _, svc := range cfg.ArrServices() {
			services = append(services, arr.ServiceConfig{Name: svc.Name, URL: svc.Service.URL, APIKey: svc.Service.APIKey})
		}
		arrClient := arr.NewClient(services)
		arrClient.LogServiceNames()

		engCfg := engine.DefaultConfig()
		engCfg.DownloadDirectory = cfg.DownloadDirectory
		engCfg.PollingInterval = time.Duration(cfg.PollingInterval) * time.Second
		engCfg.OrchestrationWorkers = cfg.OrchestrationWorkers
		engCfg.DownloadWorkers = cfg.DownloadWorkers
		engCfg.SkipDirectories = cfg.SkipDirectories
		engCfg.InstanceName = cfg.InstanceName
		engCfg.InstanceFolderID = cfg.InstanceFolderID

		fetcher := engine.NewGrabFetcher(engCfg.GrabIdleConnTimeout, engCfg.GrabHeaderTimeout)
		eng := engine.New(engCfg, putioClient, arrClient, fetcher)

		srv := facade.New(cfg, putioClient, eng, folderID)

		errCh := make(chan error, 1)
		go func() {
			if err := eng.Start(ctx); err != nil && err != context.Canceled {
				log.Warn("main").Err(err).Msg("engine stopped")
			}
		}()
		go func() {
			log.Info("main").Str("addr", cfg.ListenAddr).Msg("starting transmission-rpc server")
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errCh <- err
				return
			}
			errCh <- nil
		}()

		select {
		case <-ctx.Done():
			log.Info("main").Msg("shutdown signal received")
		case err := <-errCh:
			if err != nil {
				log.Error("main").Err(err).Msg("server error")
			}
			stop()
		}

		if err := srv.Stop(); err != nil {
			log.Warn("main").Err(err).Msg("error stopping server")
		}
		<-ctx.Done()
	},
}

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config",
	Short: "Generate a sample configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		sample := `# putioarr configuration

download_directory = "/downloads"
polling_interval = 10
orchestration_workers = 10
download_workers = 4
skip_directories = ["sample", "extras"]

instance_name = "putioarr"
# instance_folder_id is filled in automatically on first run.

putio_oauth_token = "" # obtain with: putioarr get-token

listen_addr = "0.0.0.0:9091"
# username = ""
# password = ""

loglevel = "info"

[sonarr]
url = "http://localhost:8989"
api_key = ""

[radarr]
url = "http://localhost:7878"
api_key = ""

# [whisparr]
# url = "http://localhost:6969"
# api_key = ""
`

		outputPath := "putioarr-config.toml"
		if len(args) > 0 {
			outputPath = args[0]
		}

		if err := os.WriteFile(outputPath, []byte(sample), 0o644); err != nil {
			log.Fatal("main").Err(err).Msg("failed to write sample config")
		}
		fmt.Printf("Sample config created: %s\n", outputPath)
	},
}

var getTokenCmd = &cobra.Command{
	Use:   "get-token",
	Short: "Get a put.io OAuth token using the device code flow",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		resp, err := http.Get("https://api.put.io/v2/oauth2/oob/code?app_id=3270")
		if err != nil {
			fmt.Println("Failed to get OOB code:", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		var codeResponse struct {
			Code      string `json:"code"`
			QrCodeURL string `json:"qr_code_url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&codeResponse); err != nil {
			fmt.Println("Failed to decode code response:", err)
			os.Exit(1)
		}

		fmt.Printf("Visit put.io/link and enter code: %s\n", codeResponse.Code)
		fmt.Println("Waiting for authorization...")

		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				fmt.Println("Authorization timed out")
				os.Exit(1)
			case <-ticker.C:
				tokenResp, err := http.Get("https://api.put.io/v2/oauth2/oob/code/" + codeResponse.Code)
				if err != nil {
					fmt.Println("Failed to check authorization status:", err)
					os.Exit(1)
				}

				var tokenResult struct {
					OAuthToken string `json:"oauth_token"`
					Status     string `json:"status"`
				}
				if err := json.NewDecoder(tokenResp.Body).Decode(&tokenResult); err != nil {
					tokenResp.Body.Close()
					continue
				}
				tokenResp.Body.Close()

				if tokenResult.Status == "OK" && tokenResult.OAuthToken != "" {
					fmt.Printf("Successfully obtained access token: %s\n", tokenResult.OAuthToken)
					return
				}
			}
		}
	},
}

func init() {
	runCmd.Flags().String("config", "", "Config file (default ~/.config/putioarr/config.toml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(getTokenCmd)
	rootCmd.AddCommand(generateConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
