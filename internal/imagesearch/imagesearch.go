// Package imagesearch is the boundary with the reverse image search
// collaborator used when a platform offers no direct image search.
package imagesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kalambet/dealscout/internal/product"
)

// Searcher resolves an image into candidate product queries.
type Searcher interface {
	SearchByImage(ctx context.Context, r io.Reader) ([]product.Query, error)
}

// HTTPSearcher calls an external reverse-image-search endpoint that accepts
// raw image bytes and returns a JSON array of product queries.
type HTTPSearcher struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSearcher creates a searcher for the given endpoint.
func NewHTTPSearcher(endpoint string, client *http.Client) *HTTPSearcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSearcher{endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

type searchResponse struct {
	Queries []product.Query `json:"queries"`
}

// SearchByImage posts the image and decodes the returned queries.
func (s *HTTPSearcher) SearchByImage(ctx context.Context, r io.Reader) ([]product.Query, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/search", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building image search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image search: status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding image search response: %w", err)
	}
	return body.Queries, nil
}
