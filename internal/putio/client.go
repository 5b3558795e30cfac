// Package putio adapts the official put.io client into the capability
// surface the orchestration engine depends on (engine.RemoteClient),
// wrapping every call in a retryablehttp transport so transient failures
// (429s, 5xx, connection resets) are absorbed below the engine and never
// reach it as anything but a durable error.
package putio

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/elsbrock/go-putio"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"github.com/dlbridge/putioarr/internal/engine"
	"github.com/dlbridge/putioarr/internal/log"
)

// Client wraps the official put.io client with the engine's capability
// interface.
type Client struct {
	client *putio.Client
}

// NewClient builds a Client authenticated with oauthToken. HTTP requests
// go through a retrying transport: up to 3 retries, exponential backoff,
// retrying on 429/5xx/network errors, matching the policy spec.md leaves
// to "the underlying HTTP stack."
func NewClient(oauthToken string) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = retryableLogAdapter{}
	retryClient.RetryMax = 3

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: oauthToken})
	base := retryClient.StandardClient()
	base.Transport = &oauth2.Transport{
		Source: tokenSource,
		Base:   base.Transport,
	}

	return &Client{client: putio.NewClient(base)}
}

// retryableLogAdapter routes retryablehttp's internal retry/backoff
// logging through zerolog instead of the standard logger it defaults to.
type retryableLogAdapter struct{}

func (retryableLogAdapter) Printf(format string, args ...interface{}) {
	log.Debug("putio-transport").Msgf(format, args...)
}

// Authenticate verifies the token by fetching account info.
func (c *Client) Authenticate(ctx context.Context) error {
	account, err := c.client.Account.Info(ctx)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if account.Username == "" {
		return fmt.Errorf("authenticate: empty account info")
	}
	return nil
}

// AccountInfo returns put.io account usage, used by the health endpoint
// and the quota monitor.
func (c *Client) AccountInfo(ctx context.Context) (putio.AccountInfo, error) {
	account, err := c.client.Account.Info(ctx)
	if err != nil {
		return putio.AccountInfo{}, fmt.Errorf("account info: %w", err)
	}
	return account, nil
}

// EnsureFolder returns the id of a root-level folder named name, creating
// it if it does not already exist.
func (c *Client) EnsureFolder(ctx context.Context, name string) (int64, error) {
	files, _, err := c.client.Files.List(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("ensure folder: %w", err)
	}
	for _, f := range files {
		if f.Name == name {
			return f.ID, nil
		}
	}
	folder, err := c.client.Files.CreateFolder(ctx, name, 0)
	if err != nil {
		return 0, fmt.Errorf("ensure folder: %w", err)
	}
	return folder.ID, nil
}

// AddTransfer adds a magnet link or torrent URL under folderID and returns
// its hash.
func (c *Client) AddTransfer(ctx context.Context, magnetLink string, folderID int64) (string, error) {
	transfer, err := c.client.Transfers.Add(ctx, magnetLink, folderID, "")
	if err != nil {
		return "", fmt.Errorf("add transfer: %w", err)
	}
	if transfer.Status == "ERROR" {
		return "", fmt.Errorf("transfer failed: %s", transfer.ErrorMessage)
	}
	return transfer.Hash, nil
}

// UploadFile uploads a .torrent file's bytes and returns the resulting
// transfer's hash, if put.io created one.
func (c *Client) UploadFile(ctx context.Context, data []byte, filename string, folderID int64) (string, error) {
	upload, err := c.client.Files.Upload(ctx, bytes.NewReader(data), filename, folderID)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	if upload.Transfer != nil {
		return upload.Transfer.Hash, nil
	}
	return "", nil
}

// ListTransfers implements engine.RemoteClient.
func (c *Client) ListTransfers(ctx context.Context) ([]engine.RemoteTransfer, error) {
	transfers, err := c.client.Transfers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	out := make([]engine.RemoteTransfer, len(transfers))
	for i, t := range transfers {
		out[i] = toRemoteTransfer(t)
	}
	return out, nil
}

// GetTransfer implements engine.RemoteClient.
func (c *Client) GetTransfer(ctx context.Context, id int64) (engine.RemoteTransfer, error) {
	transfers, err := c.client.Transfers.List(ctx)
	if err != nil {
		return engine.RemoteTransfer{}, fmt.Errorf("get transfer %d: %w", id, err)
	}
	for _, t := range transfers {
		if t.ID == id {
			return toRemoteTransfer(t), nil
		}
	}
	return engine.RemoteTransfer{}, &notFoundError{fmt.Sprintf("transfer %d", id)}
}

// ListFiles implements engine.RemoteClient.
func (c *Client) ListFiles(ctx context.Context, parentID int64) (engine.RemoteFile, []engine.RemoteFile, error) {
	files, parent, err := c.client.Files.List(ctx, parentID)
	if err != nil {
		return engine.RemoteFile{}, nil, fmt.Errorf("list files %d: %w", parentID, err)
	}
	out := make([]engine.RemoteFile, len(files))
	for i, f := range files {
		out[i] = toRemoteFile(f)
	}
	return toRemoteFile(parent), out, nil
}

// FileURL implements engine.RemoteClient.
func (c *Client) FileURL(ctx context.Context, fileID int64) (string, error) {
	url, err := c.client.Files.URL(ctx, fileID, false)
	if err != nil {
		return "", fmt.Errorf("file url %d: %w", fileID, err)
	}
	return url, nil
}

// DeleteTransfer implements engine.RemoteClient.
func (c *Client) DeleteTransfer(ctx context.Context, id int64) error {
	if err := c.client.Transfers.Cancel(ctx, id); err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return &notFoundError{fmt.Sprintf("transfer %d", id)}
		}
		return fmt.Errorf("delete transfer %d: %w", id, err)
	}
	return nil
}

// DeleteFile implements engine.RemoteClient.
func (c *Client) DeleteFile(ctx context.Context, id int64) error {
	if err := c.client.Files.Delete(ctx, id); err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return &notFoundError{fmt.Sprintf("file %d", id)}
		}
		return fmt.Errorf("delete file %d: %w", id, err)
	}
	return nil
}

func toRemoteTransfer(t putio.Transfer) engine.RemoteTransfer {
	return engine.RemoteTransfer{
		ID:           t.ID,
		Hash:         t.Hash,
		Name:         t.Name,
		Status:       engine.RemoteStatus(t.Status),
		SaveParentID: t.SaveParentID,
		FileID:       t.FileID,
		ErrorMessage: t.ErrorMessage,
	}
}

func toRemoteFile(f putio.File) engine.RemoteFile {
	return engine.RemoteFile{
		ID:          f.ID,
		ParentID:    f.ParentID,
		Name:        f.Name,
		Size:        f.Size,
		IsDir:       f.IsDir(),
		FileType:    f.FileType,
		ContentType: f.ContentType,
	}
}

// notFoundError marks a remote 404 so cleanup code can treat it as
// already-satisfied rather than as a failure.
type notFoundError struct {
	what string
}

func (e *notFoundError) Error() string { return e.what + ": not found" }
func (e *notFoundError) NotFound() bool { return true }

// isHTTPStatus reports whether err (or a wrapped put.io API error) carries
// the given HTTP status code. The go-putio client surfaces API errors as
// *putio.ErrorResponse; absent that concrete type this falls back to
// false rather than guessing from the error string.
func isHTTPStatus(err error, status int) bool {
	type statusError interface{ StatusCode() int }
	if se, ok := err.(statusError); ok {
		return se.StatusCode() == status
	}
	return false
}
