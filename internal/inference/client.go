// Package inference talks to the local classifier server that hosts the
// pretrained stage and locations models.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Normalization holds the per-channel pixel statistics the server applies
// before inference.
type Normalization struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Fixed preprocessing contract shared with the classifier server: every
// image is resized to inputWidth x inputHeight and normalized with the
// ImageNet statistics the models were trained against.
const (
	inputWidth  = 400
	inputHeight = 300
)

var imagenetNorm = Normalization{
	Mean: []float64{0.485, 0.456, 0.406},
	Std:  []float64{0.229, 0.224, 0.225},
}

// Client communicates with the classifier server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given classifier server base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// No overall timeout: classify calls on large batches can be
			// slow. Callers cancel via context.
			Timeout: 0,
		},
	}
}

// modelsResponse mirrors the JSON returned by GET /api/models.
type modelsResponse struct {
	Models []modelEntry `json:"models"`
}

type modelEntry struct {
	Name string `json:"name"`
}

// IsRunning returns true if the server responds to GET /api/models with 200.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/models", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the names of all models loaded on the server.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting model list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var models modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	names := make([]string, len(models.Models))
	for i, m := range models.Models {
		names[i] = m.Name
	}
	return names, nil
}

// HasModel reports whether the given model is loaded on the server.
func (c *Client) HasModel(ctx context.Context, name string) bool {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, m := range models {
		// The server may report a version suffix, e.g. "embryo-stage:v3".
		if m == name || strings.HasPrefix(m, name+":") {
			return true
		}
	}
	return false
}

// classifyRequest is the JSON body for POST /api/classify.
type classifyRequest struct {
	Model     string        `json:"model"`
	Images    []string      `json:"images"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Normalize Normalization `json:"normalize"`
}

// classifyResponse is the JSON returned by POST /api/classify.
type classifyResponse struct {
	Predictions [][]float32 `json:"predictions"`
}

// Classify runs the named model over the given images and returns one
// prediction vector per image, in input order.
func (c *Client) Classify(ctx context.Context, model string, images [][]byte) ([][]float32, error) {
	encoded := make([]string, len(images))
	for i, img := range images {
		encoded[i] = base64.StdEncoding.EncodeToString(img)
	}

	body, err := json.Marshal(classifyRequest{
		Model:     model,
		Images:    encoded,
		Width:     inputWidth,
		Height:    inputHeight,
		Normalize: imagenetNorm,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classify: unexpected status %d", resp.StatusCode)
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding classify response: %w", err)
	}

	if len(result.Predictions) != len(images) {
		return nil, fmt.Errorf("classify: model %s returned %d predictions for %d images", model, len(result.Predictions), len(images))
	}
	return result.Predictions, nil
}
