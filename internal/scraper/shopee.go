package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kalambet/dealscout/internal/product"
)

// ShopeeScraper queries the shopee search JSON API.
type ShopeeScraper struct {
	baseURL string
	client  *http.Client
}

// NewShopeeScraper creates a scraper against the given API base URL.
func NewShopeeScraper(baseURL string, client *http.Client) *ShopeeScraper {
	if client == nil {
		client = http.DefaultClient
	}
	return &ShopeeScraper{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *ShopeeScraper) Platform() string { return product.PlatformShopee }

// shopeeItem mirrors the subset of the search_items response the engine needs.
// Prices come back scaled by 1e5.
type shopeeItem struct {
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	ShippingFee    float64 `json:"shipping_fee"`
	ShopRating     float64 `json:"shop_rating"`
	HistoricalSold int     `json:"historical_sold"`
	Image          string  `json:"image"`
	ShopID         int64   `json:"shopid"`
	ItemID         int64   `json:"itemid"`
}

type shopeeSearchResponse struct {
	Items []struct {
		ItemBasic shopeeItem `json:"item_basic"`
	} `json:"items"`
}

// Search queries the search_items endpoint with the query's title hint
// (or product id as a fallback) and maps the response to candidates.
func (s *ShopeeScraper) Search(ctx context.Context, q product.Query) ([]product.Candidate, error) {
	keyword := q.TitleHint
	if keyword == "" {
		keyword = q.ProductID
	}
	if keyword == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/api/v4/search/search_items?keyword=%s&limit=20", s.baseURL, url.QueryEscape(keyword))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building shopee request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopee search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shopee search: status %d", resp.StatusCode)
	}

	var body shopeeSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding shopee response: %w", err)
	}

	candidates := make([]product.Candidate, 0, len(body.Items))
	for _, it := range body.Items {
		item := it.ItemBasic
		if item.Name == "" {
			continue
		}
		rating := item.ShopRating
		if rating == 0 && item.HistoricalSold == 0 {
			rating = product.RatingUnset
		}
		id := fmt.Sprintf("i.%d.%d", item.ShopID, item.ItemID)
		candidates = append(candidates, product.Candidate{
			Platform:     product.PlatformShopee,
			Title:        item.Name,
			URL:          fmt.Sprintf("https://shopee.vn/product-%s", id),
			Price:        item.Price / 1e5,
			ShippingCost: item.ShippingFee / 1e5,
			ShopRating:   rating,
			ShopSales:    item.HistoricalSold,
			ThumbnailURL: item.Image,
		})
	}
	return candidates, nil
}
