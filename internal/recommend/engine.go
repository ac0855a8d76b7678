// Package recommend fans a resolved query out to every registered scraper,
// merges the candidate listings, filters out implausible ones, scores the
// rest, and returns the top results with deal labels attached.
package recommend

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/dealscout/internal/product"
	"github.com/kalambet/dealscout/internal/scraper"
)

// Options is the read-only scoring configuration shared by all searches.
// The weights are recommended to sum to 1.0 but that is not enforced.
type Options struct {
	WeightPrice           float64
	WeightRating          float64
	WeightShipping        float64
	TrustedSalesThreshold int
	// PriceFloorRatio rejects candidates priced below this fraction of the
	// median trusted price when trusted alternatives exist. Tunable; the
	// default 0.25 comfortably rejects listings at ~10% of market price.
	PriceFloorRatio float64
	// ScraperTimeout bounds each individual scraper call during fan-out.
	ScraperTimeout time.Duration
}

const (
	defaultPriceFloorRatio = 0.25
	defaultScraperTimeout  = 5 * time.Second
	defaultTop             = 3
)

// Engine produces ranked recommendations from a scraper registry.
type Engine struct {
	registry *scraper.Registry
	opts     Options
	logger   *slog.Logger
}

// NewEngine creates an engine over the registry. Zero option fields fall
// back to defaults.
func NewEngine(registry *scraper.Registry, opts Options) *Engine {
	if opts.PriceFloorRatio <= 0 {
		opts.PriceFloorRatio = defaultPriceFloorRatio
	}
	if opts.ScraperTimeout <= 0 {
		opts.ScraperTimeout = defaultScraperTimeout
	}
	return &Engine{registry: registry, opts: opts, logger: slog.Default()}
}

// Recommend dispatches the query to every registered scraper concurrently,
// then filters, scores, labels, and ranks the merged candidates. A scraper
// failure or timeout is isolated: logged and treated as an empty result
// set. An empty return is a valid answer, not an error; the only error is
// cancellation of the caller's context.
func (e *Engine) Recommend(ctx context.Context, q product.Query, top int) ([]product.Candidate, error) {
	if top <= 0 {
		top = defaultTop
	}

	var mu sync.Mutex
	var merged []product.Candidate

	g, gCtx := errgroup.WithContext(ctx)
	for _, s := range e.registry.All() {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gCtx, e.opts.ScraperTimeout)
			defer cancel()

			found, err := s.Search(callCtx, q)
			if err != nil {
				// Isolated: one slow or broken platform never fails the call.
				e.logger.Warn("scraper failed, contributing empty result set",
					"platform", s.Platform(), "error", err)
				return nil
			}
			mu.Lock()
			merged = append(merged, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kept := e.filter(merged)
	scored := e.score(kept)

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].c.ShopSales > scored[j].c.ShopSales
	})
	// Labeled after ranking so the top result carries BestDeal even on a
	// score tie.
	if len(scored) > 0 {
		scored[0].c = scored[0].c.WithLabel(product.LabelBestDeal)
	}

	out := make([]product.Candidate, 0, top)
	for i, sc := range scored {
		if i >= top {
			break
		}
		out = append(out, sc.c)
	}
	return out, nil
}

// filter discards explicitly zero-rated shops and too-cheap price outliers.
// A candidate priced below PriceFloorRatio of the median trusted price is
// rejected, but only when a trusted alternative at a sane price exists.
func (e *Engine) filter(candidates []product.Candidate) []product.Candidate {
	kept := make([]product.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ShopRating == 0 {
			continue
		}
		kept = append(kept, c)
	}

	floor, ok := e.priceFloor(kept)
	if !ok {
		return kept
	}
	filtered := kept[:0]
	for _, c := range kept {
		if c.Price > 0 && c.Price < floor {
			e.logger.Debug("rejecting price outlier", "title", c.Title, "price", c.Price, "floor", floor)
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}

// priceFloor derives the sanity floor from the median price of trusted
// candidates. Returns ok=false when no trusted reference exists.
func (e *Engine) priceFloor(candidates []product.Candidate) (float64, bool) {
	var trusted []float64
	for _, c := range candidates {
		if c.ShopSales >= e.opts.TrustedSalesThreshold && c.Price > 0 {
			trusted = append(trusted, c.Price)
		}
	}
	if len(trusted) == 0 {
		return 0, false
	}
	sort.Float64s(trusted)
	median := trusted[len(trusted)/2]
	if len(trusted)%2 == 0 {
		median = (trusted[len(trusted)/2-1] + trusted[len(trusted)/2]) / 2
	}
	floor := median * e.opts.PriceFloorRatio
	if floor <= 0 {
		return 0, false
	}
	return floor, true
}

type scoredCandidate struct {
	c     product.Candidate
	score float64
}

// score computes the weighted score of every candidate against the set's
// min/max per metric and attaches the Trusted label.
func (e *Engine) score(candidates []product.Candidate) []scoredCandidate {
	if len(candidates) == 0 {
		return nil
	}

	priceLo, priceHi := metricRange(candidates, func(c product.Candidate) float64 { return c.Price })
	rateLo, rateHi := metricRange(candidates, func(c product.Candidate) float64 { return effectiveRating(c) })
	shipLo, shipHi := metricRange(candidates, func(c product.Candidate) float64 { return c.ShippingCost })

	scored := make([]scoredCandidate, len(candidates))
	for i, c := range candidates {
		normPrice := normalize(c.Price, priceLo, priceHi)
		normRating := normalize(effectiveRating(c), rateLo, rateHi)
		normShip := normalize(c.ShippingCost, shipLo, shipHi)

		score := e.opts.WeightPrice*(1-normPrice) +
			e.opts.WeightRating*normRating -
			e.opts.WeightShipping*normShip

		if c.ShopSales >= e.opts.TrustedSalesThreshold {
			c = c.WithLabel(product.LabelTrusted)
		}
		scored[i] = scoredCandidate{c: c, score: score}
	}
	return scored
}

// effectiveRating treats an unset rating as neutral so unrated shops are
// neither rewarded nor punished during normalization.
func effectiveRating(c product.Candidate) float64 {
	if c.ShopRating < 0 {
		return 2.5
	}
	return c.ShopRating
}

func metricRange(candidates []product.Candidate, metric func(product.Candidate) float64) (lo, hi float64) {
	lo, hi = metric(candidates[0]), metric(candidates[0])
	for _, c := range candidates[1:] {
		v := metric(c)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// normalize maps v into [0,1] relative to [lo,hi]; a degenerate range maps
// to 0 so the metric drops out of the score uniformly.
func normalize(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return (v - lo) / (hi - lo)
}
