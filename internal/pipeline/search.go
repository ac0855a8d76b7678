// Package pipeline orchestrates one search job end to end: resolve the
// input, recommend, persist history, and drive the status tracker to a
// terminal state.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/dealscout/internal/imagesearch"
	"github.com/kalambet/dealscout/internal/imaging"
	"github.com/kalambet/dealscout/internal/linkproc"
	"github.com/kalambet/dealscout/internal/product"
	"github.com/kalambet/dealscout/internal/status"
	"github.com/kalambet/dealscout/internal/storage"
)

// SearchType tells the pipeline how to resolve the job input.
type SearchType string

const (
	SearchTypeURL     SearchType = "url"
	SearchTypeKeyword SearchType = "keyword"
	SearchTypeImage   SearchType = "image"
)

// Job is one asynchronous search request. The pipeline owns it exclusively
// for its lifetime; only the status record survives for polling.
type Job struct {
	SearchID      string
	UserID        string
	Type          SearchType
	Input         string // raw URL or keyword
	ImageBytes    []byte
	QueryOverride *product.Query // pre-resolved query, skips re-resolution
}

// Recommender produces ranked candidates for a resolved query.
type Recommender interface {
	Recommend(ctx context.Context, q product.Query, top int) ([]product.Candidate, error)
}

// HistoryStore persists completed searches and price observations.
type HistoryStore interface {
	SaveSearchHistory(ctx context.Context, h storage.SearchHistory) error
	AddPricePoint(ctx context.Context, p storage.PricePoint) error
}

const (
	defaultAcceptThreshold = 0.7
	defaultTopN            = 3
	maxThumbnailSize       = 2 << 20 // 2MB
)

// Deps holds the pipeline's collaborators.
type Deps struct {
	Recommender Recommender
	History     HistoryStore
	Tracker     *status.Tracker
	Images      imagesearch.Searcher // optional; image jobs fail without it
	HTTPClient  *http.Client         // thumbnail fetches; defaults applied
	// AcceptThreshold is the minimum thumbnail/source cosine similarity for
	// an image-search candidate to survive. Defaults to 0.7.
	AcceptThreshold float64
	TopN            int
}

// Pipeline runs search jobs on background goroutines while clients poll the
// status tracker.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a pipeline, applying defaults for unset optional deps.
func New(deps Deps) *Pipeline {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if deps.AcceptThreshold <= 0 {
		deps.AcceptThreshold = defaultAcceptThreshold
	}
	if deps.TopN <= 0 {
		deps.TopN = defaultTopN
	}
	return &Pipeline{deps: deps, logger: slog.Default()}
}

// Process runs the job to a terminal state. It never returns results to the
// caller; the status tracker carries Completed results or the Failed
// message. The status is always terminal when Process returns.
func (p *Pipeline) Process(ctx context.Context, job Job) {
	p.deps.Tracker.MarkProcessing(job.SearchID)

	results, err := p.run(ctx, job)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			msg = "search cancelled"
		}
		p.logger.Warn("search job failed", "search_id", job.SearchID, "error", err)
		p.deps.Tracker.Fail(job.SearchID, msg)
		return
	}
	p.deps.Tracker.Complete(job.SearchID, results)
}

func (p *Pipeline) run(ctx context.Context, job Job) ([]product.Candidate, error) {
	var sourceEmbedding []float32

	query, err := p.resolve(ctx, job, &sourceEmbedding)
	if err != nil {
		return nil, err
	}

	results, err := p.deps.Recommender.Recommend(ctx, query, p.deps.TopN)
	if err != nil {
		return nil, fmt.Errorf("recommendation: %w", err)
	}

	if sourceEmbedding != nil {
		results = p.validateThumbnails(ctx, sourceEmbedding, results)
	}

	if err := p.persist(ctx, job, query, results); err != nil {
		return nil, err
	}
	return results, nil
}

// resolve produces the canonical query for the job. For image jobs it also
// computes the source embedding used later for thumbnail validation.
func (p *Pipeline) resolve(ctx context.Context, job Job, sourceEmbedding *[]float32) (product.Query, error) {
	if job.QueryOverride != nil && !job.QueryOverride.IsZero() {
		return *job.QueryOverride, nil
	}

	switch job.Type {
	case SearchTypeURL:
		q, err := linkproc.Process(job.Input)
		if err != nil {
			return product.Query{}, fmt.Errorf("resolving URL: %w", err)
		}
		return q, nil

	case SearchTypeKeyword:
		if job.Input == "" {
			return product.Query{}, errors.New("empty keyword")
		}
		return product.Query{TitleHint: job.Input}, nil

	case SearchTypeImage:
		if len(job.ImageBytes) == 0 {
			return product.Query{}, errors.New("image job carries no image data")
		}
		emb, err := imaging.ComputeEmbeddingBytes(job.ImageBytes)
		if err != nil {
			return product.Query{}, fmt.Errorf("embedding search image: %w", err)
		}
		*sourceEmbedding = emb

		if p.deps.Images == nil {
			return product.Query{}, errors.New("image search is not configured")
		}
		if err := ctx.Err(); err != nil {
			return product.Query{}, err
		}
		queries, err := p.deps.Images.SearchByImage(ctx, bytes.NewReader(job.ImageBytes))
		if err != nil {
			return product.Query{}, fmt.Errorf("image search: %w", err)
		}
		for _, q := range queries {
			if !q.IsZero() {
				return q, nil
			}
		}
		return product.Query{}, errors.New("image search returned no usable query")

	default:
		return product.Query{}, fmt.Errorf("unknown search type %q", job.Type)
	}
}

// validateThumbnails drops candidates whose thumbnail does not visually
// match the source image. Candidates without a thumbnail, and thumbnails
// that cannot be fetched, pass through unvalidated.
func (p *Pipeline) validateThumbnails(ctx context.Context, source []float32, candidates []product.Candidate) []product.Candidate {
	kept := make([]product.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ThumbnailURL == "" {
			kept = append(kept, c)
			continue
		}
		emb, err := p.fetchThumbnailEmbedding(ctx, c.ThumbnailURL)
		if err != nil {
			p.logger.Debug("thumbnail validation skipped", "url", c.ThumbnailURL, "error", err)
			kept = append(kept, c)
			continue
		}
		sim, err := imaging.CosineSimilarity(source, emb)
		if err != nil {
			kept = append(kept, c)
			continue
		}
		if sim < p.deps.AcceptThreshold {
			p.logger.Debug("rejecting visually mismatched candidate",
				"title", c.Title, "similarity", sim, "threshold", p.deps.AcceptThreshold)
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func (p *Pipeline) fetchThumbnailEmbedding(ctx context.Context, url string) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("thumbnail fetch: status %d", resp.StatusCode)
	}
	return imaging.ComputeEmbedding(io.LimitReader(resp.Body, maxThumbnailSize))
}

// persist writes the history record (fatal on failure) and price points
// (best effort).
func (p *Pipeline) persist(ctx context.Context, job Job, query product.Query, results []product.Candidate) error {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("encoding query: %w", err)
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	record := storage.SearchHistory{
		ID:          uuid.New().String(),
		SearchID:    job.SearchID,
		UserID:      job.UserID,
		SearchType:  string(job.Type),
		Input:       job.Input,
		QueryJSON:   string(queryJSON),
		ResultsJSON: string(resultsJSON),
	}
	if err := p.deps.History.SaveSearchHistory(ctx, record); err != nil {
		return fmt.Errorf("saving search history: %w", err)
	}

	for _, c := range results {
		if c.URL == "" || c.Price <= 0 {
			continue
		}
		point := storage.PricePoint{
			ID:           uuid.New().String(),
			Platform:     c.Platform,
			CanonicalURL: c.URL,
			Title:        c.Title,
			Price:        c.Price,
			ShippingCost: c.ShippingCost,
		}
		if err := p.deps.History.AddPricePoint(ctx, point); err != nil {
			p.logger.Debug("price point not recorded", "url", c.URL, "error", err)
		}
	}
	return nil
}
