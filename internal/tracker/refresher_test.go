package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/kalambet/dealscout/internal/product"
	"github.com/kalambet/dealscout/internal/storage"
)

// --- mocks ---

type mockCartStore struct {
	items     []storage.CartItem
	itemsErr  error
	points    []storage.PricePoint
	updates   map[string]float64
	pointErr  error
	updateErr error
}

func newMockCartStore(items ...storage.CartItem) *mockCartStore {
	return &mockCartStore{items: items, updates: make(map[string]float64)}
}

func (m *mockCartStore) AllCartItems(ctx context.Context) ([]storage.CartItem, error) {
	return m.items, m.itemsErr
}

func (m *mockCartStore) AddPricePoint(ctx context.Context, p storage.PricePoint) error {
	if m.pointErr != nil {
		return m.pointErr
	}
	m.points = append(m.points, p)
	return nil
}

func (m *mockCartStore) UpdateCartItemPrice(ctx context.Context, id string, price float64) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates[id] = price
	return nil
}

type mockRecommender struct {
	recommendFn func(ctx context.Context, q product.Query, top int) ([]product.Candidate, error)
}

func (m *mockRecommender) Recommend(ctx context.Context, q product.Query, top int) ([]product.Candidate, error) {
	if m.recommendFn != nil {
		return m.recommendFn(ctx, q, top)
	}
	return nil, nil
}

// --- tests ---

func TestRefreshOnce_RecordsFreshPrices(t *testing.T) {
	item := storage.CartItem{
		ID:           "cart-1",
		UserID:       "alice",
		Platform:     "shopee",
		ProductID:    "i.1.2",
		CanonicalURL: "https://shopee.vn/product-i.1.2",
		Title:        "webcam",
		LastPrice:    80,
	}
	store := newMockCartStore(item)
	rec := &mockRecommender{
		recommendFn: func(ctx context.Context, q product.Query, top int) ([]product.Candidate, error) {
			if q.CanonicalURL != item.CanonicalURL {
				t.Errorf("query url = %q", q.CanonicalURL)
			}
			return []product.Candidate{
				{Platform: "lazada", Title: "similar webcam", URL: "https://lazada.vn/x", Price: 70},
				{Platform: "shopee", Title: "webcam", URL: item.CanonicalURL, Price: 75},
			}, nil
		},
	}

	r := NewRefresher(store, rec, "")
	if err := r.RefreshOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.points) != 1 {
		t.Fatalf("got %d price points, want 1", len(store.points))
	}
	// Exact URL match wins over the earlier same-platform candidate.
	if store.points[0].Price != 75 || store.points[0].CanonicalURL != item.CanonicalURL {
		t.Errorf("point = %+v", store.points[0])
	}
	if store.updates["cart-1"] != 75 {
		t.Errorf("cart price update = %v, want 75", store.updates["cart-1"])
	}
}

func TestRefreshOnce_FallsBackToSamePlatform(t *testing.T) {
	item := storage.CartItem{
		ID:           "cart-1",
		Platform:     "tiki",
		CanonicalURL: "https://tiki.vn/product-p9.html",
		Title:        "mug",
	}
	store := newMockCartStore(item)
	rec := &mockRecommender{
		recommendFn: func(ctx context.Context, q product.Query, top int) ([]product.Candidate, error) {
			return []product.Candidate{
				{Platform: "shopee", URL: "https://shopee.vn/other", Price: 20},
				{Platform: "tiki", URL: "https://tiki.vn/relisted-p10.html", Price: 22},
			}, nil
		},
	}

	r := NewRefresher(store, rec, "")
	if err := r.RefreshOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.updates["cart-1"] != 22 {
		t.Errorf("cart price update = %v, want the same-platform fallback", store.updates["cart-1"])
	}
	// The point stays attached to the tracked canonical URL.
	if len(store.points) != 1 || store.points[0].CanonicalURL != item.CanonicalURL {
		t.Errorf("points = %+v", store.points)
	}
}

func TestRefreshOnce_ItemFailureIsolated(t *testing.T) {
	items := []storage.CartItem{
		{ID: "broken", Platform: "shopee", CanonicalURL: "https://shopee.vn/product-i.1.1", Title: "a"},
		{ID: "ok", Platform: "shopee", CanonicalURL: "https://shopee.vn/product-i.2.2", Title: "b"},
	}
	store := newMockCartStore(items...)
	rec := &mockRecommender{
		recommendFn: func(ctx context.Context, q product.Query, top int) ([]product.Candidate, error) {
			if q.CanonicalURL == items[0].CanonicalURL {
				return nil, errors.New("platform down")
			}
			return []product.Candidate{{Platform: "shopee", URL: q.CanonicalURL, Price: 5}}, nil
		},
	}

	r := NewRefresher(store, rec, "")
	if err := r.RefreshOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.updates["broken"]; ok {
		t.Error("failed item must not be updated")
	}
	if store.updates["ok"] != 5 {
		t.Errorf("healthy item update = %v, want 5", store.updates["ok"])
	}
}

func TestRefreshOnce_NoMatchLeavesItemUntouched(t *testing.T) {
	item := storage.CartItem{ID: "cart-1", Platform: "tiki", CanonicalURL: "https://tiki.vn/product-p1.html"}
	store := newMockCartStore(item)
	rec := &mockRecommender{
		recommendFn: func(ctx context.Context, q product.Query, top int) ([]product.Candidate, error) {
			return []product.Candidate{{Platform: "shopee", URL: "https://shopee.vn/x", Price: 9}}, nil
		},
	}

	r := NewRefresher(store, rec, "")
	if err := r.RefreshOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.points) != 0 || len(store.updates) != 0 {
		t.Errorf("points = %+v, updates = %+v; want none", store.points, store.updates)
	}
}

func TestRefreshOnce_StoreErrorPropagates(t *testing.T) {
	store := newMockCartStore()
	store.itemsErr = errors.New("db closed")
	r := NewRefresher(store, &mockRecommender{}, "")
	if err := r.RefreshOnce(context.Background()); err == nil {
		t.Fatal("expected error when listing cart items fails")
	}
}

func TestRefreshOnce_CancelledContextStops(t *testing.T) {
	store := newMockCartStore(storage.CartItem{ID: "cart-1", Platform: "shopee"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRefresher(store, &mockRecommender{}, "")
	if err := r.RefreshOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestStart_InvalidSpec(t *testing.T) {
	r := NewRefresher(newMockCartStore(), &mockRecommender{}, "every full moon")
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}
