// Package arr implements the import-confirmation side-channel: polling one
// or more Sonarr/Radarr/Whisparr-compatible history APIs to learn whether a
// locally-downloaded file has been picked up and imported by the
// destination library manager.
package arr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"syscall"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/dlbridge/putioarr/internal/log"
)

const historyPageSize = 1000

// ServiceConfig names one configured Arr instance.
type ServiceConfig struct {
	Name   string
	URL    string
	APIKey string
}

// Client probes a set of Arr services to answer "has this path been
// imported". It implements engine.ImportChecker.
type Client struct {
	http     *http.Client
	services []ServiceConfig
}

// NewClient builds a Client over the given services. The underlying
// transport retries transient failures (connection refused, 5xx) up to 3
// times with exponential backoff before surfacing an error to the caller.
func NewClient(services []ServiceConfig) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.Logger = nil

	return &Client{http: retryClient.StandardClient(), services: services}
}

type historyResponse struct {
	Page         int             `json:"page"`
	PageSize     int             `json:"pageSize"`
	TotalRecords int             `json:"totalRecords"`
	Records      []historyRecord `json:"records"`
}

type historyRecord struct {
	EventType string `json:"eventType"`
	Data      struct {
		DroppedPath string `json:"droppedPath"`
		ImportedPath string `json:"importedPath"`
	} `json:"data"`
}

// CheckImported asks every configured service, in order, whether
// targetPath was imported, returning on the first match. A service whose
// query fails is logged (debug for an expected-to-resolve-itself
// transient failure, warn otherwise) and skipped; the probe moves on to
// the next configured service rather than aborting. If every service is
// skipped or none reports a match, it returns false with no error: a
// single service being down never stalls the import watch.
func (c *Client) CheckImported(ctx context.Context, targetPath string) (bool, string, error) {
	for _, svc := range c.services {
		imported, err := c.checkService(ctx, svc, targetPath)
		if err != nil {
			logServiceError(svc.Name, err)
			continue
		}
		if imported {
			return true, svc.Name, nil
		}
	}
	return false, "", nil
}

// logServiceError applies the debug-vs-warn split: a circuit-open or
// connection-refused style failure means the service is simply down right
// now and is expected to resolve on its own, so it logs at debug; anything
// else logs at warn since it may indicate a real misconfiguration.
func logServiceError(service string, err error) {
	if isTransientFailure(err) {
		log.Debug("arr").Str("service", service).Err(err).Msg("service unreachable, skipping for this poll")
		return
	}
	log.Warn("arr").Str("service", service).Err(err).Msg("history query failed, skipping for this poll")
}

func isTransientFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (c *Client) checkService(ctx context.Context, svc ServiceConfig, targetPath string) (bool, error) {
	inspected := 0
	for page := 0; ; page++ {
		resp, err := c.fetchHistoryPage(ctx, svc, page)
		if err != nil {
			return false, err
		}

		for _, rec := range resp.Records {
			inspected++
			if rec.EventType != "downloadFolderImported" {
				continue
			}
			if rec.Data.DroppedPath == targetPath {
				return true, nil
			}
		}

		if inspected >= resp.TotalRecords || len(resp.Records) == 0 {
			return false, nil
		}
	}
}

func (c *Client) fetchHistoryPage(ctx context.Context, svc ServiceConfig, page int) (*historyResponse, error) {
	u, err := url.Parse(svc.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	u.Path = joinPath(u.Path, "/api/v3/history")
	q := u.Query()
	q.Set("includeSeries", "false")
	q.Set("includeEpisode", "false")
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(historyPageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", svc.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, svc.Name)
	}

	var out historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}
	return &out, nil
}

func joinPath(base, suffix string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + suffix
}

// LogServiceNames writes a debug line listing every configured service, to
// confirm wiring at startup without dumping API keys.
func (c *Client) LogServiceNames() {
	names := make([]string, len(c.services))
	for i, s := range c.services {
		names[i] = s.Name
	}
	log.Debug("arr").Strs("services", names).Msg("arr import checker configured")
}
