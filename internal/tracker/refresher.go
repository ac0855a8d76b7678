// Package tracker periodically re-prices tracked cart items so price
// history keeps accreting between organic searches.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/kalambet/dealscout/internal/product"
	"github.com/kalambet/dealscout/internal/storage"
)

// CartStore is the slice of storage the refresher needs.
type CartStore interface {
	AllCartItems(ctx context.Context) ([]storage.CartItem, error)
	AddPricePoint(ctx context.Context, p storage.PricePoint) error
	UpdateCartItemPrice(ctx context.Context, id string, price float64) error
}

// Recommender re-runs the search for a tracked item's query.
type Recommender interface {
	Recommend(ctx context.Context, q product.Query, top int) ([]product.Candidate, error)
}

const refreshCandidates = 5

// Refresher runs RefreshOnce on a cron schedule.
type Refresher struct {
	store     CartStore
	recommend Recommender
	cron      *cron.Cron
	spec      string
	logger    *slog.Logger
}

// NewRefresher creates a refresher with the given cron spec
// (default "@hourly").
func NewRefresher(store CartStore, recommend Recommender, spec string) *Refresher {
	if spec == "" {
		spec = "@hourly"
	}
	return &Refresher{
		store:     store,
		recommend: recommend,
		cron:      cron.New(),
		spec:      spec,
		logger:    slog.Default(),
	}
}

// Start schedules the refresh job and runs until Stop. Returns an error
// only for an invalid cron spec.
func (r *Refresher) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if err := r.RefreshOnce(runCtx); err != nil {
			r.logger.Error("price refresh run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling price refresh %q: %w", r.spec, err)
	}
	r.cron.Start()
	r.logger.Info("price refresh scheduled", "spec", r.spec)
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

// RefreshOnce re-runs the recommendation for every tracked cart item and
// records a fresh price point for the listing when it is found again.
// Per-item failures are isolated and logged.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	items, err := r.store.AllCartItems(ctx)
	if err != nil {
		return fmt.Errorf("listing cart items: %w", err)
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.refreshItem(ctx, item); err != nil {
			r.logger.Warn("cart item refresh failed",
				"cart_item", item.ID, "url", item.CanonicalURL, "error", err)
		}
	}
	return nil
}

func (r *Refresher) refreshItem(ctx context.Context, item storage.CartItem) error {
	q := product.Query{
		Platform:     item.Platform,
		ProductID:    item.ProductID,
		CanonicalURL: item.CanonicalURL,
		TitleHint:    item.Title,
	}
	candidates, err := r.recommend.Recommend(ctx, q, refreshCandidates)
	if err != nil {
		return err
	}

	match, ok := matchListing(item, candidates)
	if !ok {
		return fmt.Errorf("listing not found in refresh results")
	}

	point := storage.PricePoint{
		ID:           uuid.New().String(),
		Platform:     match.Platform,
		CanonicalURL: item.CanonicalURL,
		Title:        match.Title,
		Price:        match.Price,
		ShippingCost: match.ShippingCost,
	}
	if err := r.store.AddPricePoint(ctx, point); err != nil {
		return err
	}
	return r.store.UpdateCartItemPrice(ctx, item.ID, match.Price)
}

// matchListing finds the refreshed candidate for the tracked item: an exact
// canonical URL match, else the first candidate from the same platform.
func matchListing(item storage.CartItem, candidates []product.Candidate) (product.Candidate, bool) {
	for _, c := range candidates {
		if c.URL != "" && c.URL == item.CanonicalURL {
			return c, true
		}
	}
	for _, c := range candidates {
		if c.Platform == item.Platform {
			return c, true
		}
	}
	return product.Candidate{}, false
}
