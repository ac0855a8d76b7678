package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kalambet/dealscout/internal/product"
)

// --- mock scraper ---

type countingScraper struct {
	platform string
	calls    int
	results  []product.Candidate
	err      error
}

func (s *countingScraper) Platform() string { return s.platform }

func (s *countingScraper) Search(ctx context.Context, q product.Query) ([]product.Candidate, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func newTestCache(t *testing.T, ttl time.Duration) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, ttl), mr
}

// --- tests ---

func TestWrap_ReadThrough(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	inner := &countingScraper{
		platform: "shopee",
		results:  []product.Candidate{{Platform: "shopee", Title: "webcam", Price: 50}},
	}
	wrapped := cache.Wrap(inner)
	q := product.Query{Platform: "shopee", ProductID: "i.1.2"}

	first, err := wrapped.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	second, err := wrapped.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner scraper called %d times, want 1", inner.calls)
	}
	if len(first) != 1 || len(second) != 1 || second[0].Title != "webcam" {
		t.Errorf("cached results differ: %+v vs %+v", first, second)
	}
}

func TestWrap_DistinctQueriesMiss(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	inner := &countingScraper{platform: "lazada"}
	wrapped := cache.Wrap(inner)

	if _, err := wrapped.Search(context.Background(), product.Query{Platform: "lazada", ProductID: "1"}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if _, err := wrapped.Search(context.Background(), product.Query{Platform: "lazada", ProductID: "2"}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner scraper called %d times, want 2", inner.calls)
	}
}

func TestWrap_EntryExpires(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	inner := &countingScraper{
		platform: "tiki",
		results:  []product.Candidate{{Platform: "tiki", Title: "mouse"}},
	}
	wrapped := cache.Wrap(inner)
	q := product.Query{Platform: "tiki", ProductID: "7"}

	if _, err := wrapped.Search(context.Background(), q); err != nil {
		t.Fatalf("search: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := wrapped.Search(context.Background(), q); err != nil {
		t.Fatalf("search: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner scraper called %d times after expiry, want 2", inner.calls)
	}
}

func TestWrap_ErrorsNotCached(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	inner := &countingScraper{platform: "shopee", err: errors.New("blocked")}
	wrapped := cache.Wrap(inner)
	q := product.Query{Platform: "shopee", ProductID: "i.9.9"}

	if _, err := wrapped.Search(context.Background(), q); err == nil {
		t.Fatal("expected error from inner scraper")
	}

	inner.err = nil
	inner.results = []product.Candidate{{Platform: "shopee", Title: "recovered"}}
	got, err := wrapped.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("search after recovery: %v", err)
	}
	if len(got) != 1 || got[0].Title != "recovered" {
		t.Fatalf("got %+v, want fresh results after error", got)
	}
	if inner.calls != 2 {
		t.Errorf("inner scraper called %d times, want 2", inner.calls)
	}
}

func TestWrap_NilCachePassesThrough(t *testing.T) {
	var cache *ResultCache
	inner := &countingScraper{platform: "shopee"}
	if got := cache.Wrap(inner); got != inner {
		t.Fatal("nil cache must return the scraper unwrapped")
	}
}

func TestWrap_UnreachableRedisFallsThrough(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	mr.Close()

	inner := &countingScraper{
		platform: "shopee",
		results:  []product.Candidate{{Platform: "shopee", Title: "still works"}},
	}
	wrapped := cache.Wrap(inner)
	got, err := wrapped.Search(context.Background(), product.Query{Platform: "shopee", ProductID: "i.1.1"})
	if err != nil {
		t.Fatalf("search with dead redis: %v", err)
	}
	if len(got) != 1 || got[0].Title != "still works" {
		t.Fatalf("got %+v", got)
	}
}
