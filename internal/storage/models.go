package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// historyCap is the per-user retention cap for search history. On each
// insert, entries beyond the cap are pruned oldest-first.
const historyCap = 50

// SearchHistory is one completed search, stored for the user's history view.
type SearchHistory struct {
	ID          string
	SearchID    string
	UserID      string
	SearchType  string // "url", "keyword", "image"
	Input       string
	QueryJSON   string // resolved product.Query as JSON
	ResultsJSON string // final []product.Candidate as JSON
	CreatedAt   time.Time
}

// PricePoint is one observed price for a canonical product URL.
// Serialized as-is on the price history endpoint.
type PricePoint struct {
	ID           string    `json:"id"`
	Platform     string    `json:"platform"`
	CanonicalURL string    `json:"canonical_url"`
	Title        string    `json:"title,omitempty"`
	Price        float64   `json:"price"`
	ShippingCost float64   `json:"shipping_cost"`
	ObservedAt   time.Time `json:"observed_at"`
}

// CartItem is a tracked listing whose price the refresh worker re-observes.
// Serialized as-is on the cart endpoints.
type CartItem struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Platform     string    `json:"platform"`
	ProductID    string    `json:"product_id,omitempty"`
	CanonicalURL string    `json:"canonical_url"`
	Title        string    `json:"title,omitempty"`
	LastPrice    float64   `json:"last_price"`
	CreatedAt    time.Time `json:"created_at"`
}
