// Package download streams remote artifacts to local files. There is no
// retry logic anywhere in the tool: a transient network failure surfaces
// as ErrDownloadFailed and aborts the run.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/oshokin/syno-docker-update/internal/logger"
)

// ErrDownloadFailed is returned when a fetch does not produce a non-empty file.
var ErrDownloadFailed = errors.New("download failed")

// Client fetches artifacts over HTTP, following redirects
// (compose release assets are served via redirect).
type Client struct {
	httpClient *http.Client
}

// NewClient creates a downloader backed by the default HTTP client.
func NewClient() *Client {
	return &Client{
		httpClient: http.DefaultClient,
	}
}

// NewClientWithHTTP creates a downloader with a caller-provided HTTP client.
func NewClientWithHTTP(httpClient *http.Client) *Client {
	return &Client{
		httpClient: httpClient,
	}
}

// Fetch streams the content at url into destPath. The destination must
// exist and be non-empty afterward, otherwise ErrDownloadFailed is returned.
func (c *Client) Fetch(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: %s", ErrDownloadFailed, url, response.Status)
	}

	outputFile, err := os.Create(filepath.Clean(destPath))
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrDownloadFailed, destPath, err)
	}

	_, err = io.Copy(outputFile, response.Body)
	if closeErr := outputFile.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrDownloadFailed, destPath, err)
	}

	info, err := os.Stat(destPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s is missing or empty", ErrDownloadFailed, destPath)
	}

	logger.InfoKV(ctx, "Downloaded file", "url", url, "path", destPath, "bytes", info.Size())

	return nil
}
