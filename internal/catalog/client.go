// Package catalog fetches image metadata from the remote catalog service.
package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImageRecord is one row of the catalog's metadata payload.
type ImageRecord struct {
	Filename  string
	Stage     string
	Locations string
}

// Client retrieves image metadata over HTTP.
type Client struct {
	baseURL     string
	scope       string
	downloadDir string
	httpClient  *http.Client
}

// New creates a Client for the given metadata endpoint. Fetched payloads are
// staged under downloadDir before parsing.
func New(baseURL, scope, downloadDir string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		scope:       scope,
		downloadDir: downloadDir,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchSince retrieves metadata for all images created since the given date
// and parses it into records. The payload is three-column headerless CSV:
// filename, stage, locations.
//
// The raw payload is written to a staging file first; on a parse failure the
// file is kept so the malformed payload can be inspected.
func (c *Client) FetchSince(ctx context.Context, since string) ([]ImageRecord, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog URL: %w", err)
	}
	q := u.Query()
	q.Set("scope", c.scope)
	q.Set("since", since)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating metadata request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata fetch: unexpected status %d", resp.StatusCode)
	}

	path, err := c.download(resp.Body)
	if err != nil {
		return nil, err
	}

	records, err := parseMetadataFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing metadata payload (kept at %s): %w", path, err)
	}

	c.removeStaged(path)
	return records, nil
}

// removeStaged deletes a staged payload once it has been parsed. A leftover
// file only wastes disk space, so failure is logged rather than returned.
func (c *Client) removeStaged(path string) {
	if err := os.Remove(path); err != nil {
		slog.Debug("could not remove staged metadata payload", "path", path, "error", err)
	}
}

func (c *Client) download(body io.Reader) (string, error) {
	if err := os.MkdirAll(c.downloadDir, 0o755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}

	path := filepath.Join(c.downloadDir, "new-images-"+uuid.New().String()+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating download file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("saving metadata payload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing download file: %w", err)
	}
	return path, nil
}

func parseMetadataFile(path string) ([]ImageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	records := make([]ImageRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, ImageRecord{
			Filename:  strings.TrimSpace(row[0]),
			Stage:     strings.TrimSpace(row[1]),
			Locations: strings.TrimSpace(row[2]),
		})
	}
	return records, nil
}
