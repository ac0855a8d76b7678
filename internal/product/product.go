// Package product holds the domain types shared by the link processor,
// scrapers, recommendation engine, and search pipeline.
package product

// Known platform identifiers. Scraper registrations and the link processor
// platform table use these values.
const (
	PlatformShopee = "shopee"
	PlatformLazada = "lazada"
	PlatformTiki   = "tiki"
)

// Candidate labels attached by the recommendation engine.
const (
	LabelBestDeal = "BestDeal"
	LabelTrusted  = "Trusted"
)

// RatingUnset marks a shop whose rating is unknown. Distinct from 0,
// which is an explicit worst rating and filtered out by the engine.
const RatingUnset = -1

// Query is a resolved search intent. Immutable once produced: at least one
// of {Platform+ProductID, CanonicalURL, TitleHint} is populated.
type Query struct {
	Platform     string `json:"platform,omitempty"`
	ProductID    string `json:"product_id,omitempty"`
	CanonicalURL string `json:"canonical_url,omitempty"`
	TitleHint    string `json:"title_hint,omitempty"`
}

// IsZero reports whether the query carries no usable search intent.
func (q Query) IsZero() bool {
	return q.Platform == "" && q.ProductID == "" && q.CanonicalURL == "" && q.TitleHint == ""
}

// Key returns a stable cache/deduplication key for the query.
func (q Query) Key() string {
	switch {
	case q.CanonicalURL != "":
		return q.CanonicalURL
	case q.Platform != "" && q.ProductID != "":
		return q.Platform + "/" + q.ProductID
	default:
		return "kw:" + q.TitleHint
	}
}

// Candidate is one scraped product listing considered for recommendation.
// Scrapers create candidates; after scoring they are read-only except for
// label attachment by the recommendation engine.
type Candidate struct {
	Platform     string   `json:"platform"`
	Title        string   `json:"title"`
	URL          string   `json:"url,omitempty"`
	Price        float64  `json:"price"`
	ShippingCost float64  `json:"shipping_cost"`
	ShopRating   float64  `json:"shop_rating"` // 0–5, RatingUnset when unknown
	ShopSales    int      `json:"shop_sales"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	Labels       []string `json:"labels,omitempty"`
}

// WithLabel returns a copy of the candidate with the label appended.
// The receiver is not mutated.
func (c Candidate) WithLabel(label string) Candidate {
	labels := make([]string, 0, len(c.Labels)+1)
	labels = append(labels, c.Labels...)
	labels = append(labels, label)
	c.Labels = labels
	return c
}

// HasLabel reports whether the candidate carries the given label.
func (c Candidate) HasLabel(label string) bool {
	for _, l := range c.Labels {
		if l == label {
			return true
		}
	}
	return false
}
