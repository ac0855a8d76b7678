package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kalambet/dealscout/internal/product"
)

// TikiScraper fetches tiki search result pages and parses the listing grid.
type TikiScraper struct {
	baseURL string
	client  *http.Client
}

// NewTikiScraper creates a scraper against the given site base URL.
func NewTikiScraper(baseURL string, client *http.Client) *TikiScraper {
	if client == nil {
		client = http.DefaultClient
	}
	return &TikiScraper{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *TikiScraper) Platform() string { return product.PlatformTiki }

// Search fetches one search result page and parses listing cards.
func (s *TikiScraper) Search(ctx context.Context, q product.Query) ([]product.Candidate, error) {
	keyword := q.TitleHint
	if keyword == "" {
		keyword = q.ProductID
	}
	if keyword == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/search?q=%s", s.baseURL, url.QueryEscape(keyword))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building tiki request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; dealscout/1.0)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tiki search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tiki search: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing tiki page: %w", err)
	}

	var candidates []product.Candidate
	doc.Find("[data-view-id=product_list_item], .product-item").Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(".name, h3").First().Text())
		if title == "" {
			return
		}
		rating := float64(product.RatingUnset)
		if r, ok := sel.Find("[data-rating]").Attr("data-rating"); ok {
			if v, err := strconv.ParseFloat(r, 64); err == nil {
				rating = v
			}
		}
		href, _ := sel.Find("a").Attr("href")
		thumb, _ := sel.Find("img").Attr("src")
		candidates = append(candidates, product.Candidate{
			Platform:     product.PlatformTiki,
			Title:        title,
			URL:          absoluteURL(s.baseURL, href),
			Price:        parsePrice(sel.Find(".price-discount__price, .price").First().Text()),
			ShopRating:   rating,
			ShopSales:    parseSales(sel.Find(".quantity-sold, .sold").First().Text()),
			ThumbnailURL: thumb,
		})
	})
	return candidates, nil
}

func absoluteURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	return base + "/" + strings.TrimLeft(href, "/")
}
