package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/kalambet/dealscout/internal/product"
)

const lazadaDefaultTimeout = 10 * time.Second

// LazadaScraper crawls lazada catalog result pages.
type LazadaScraper struct {
	baseURL string
	timeout time.Duration
}

// NewLazadaScraper creates a scraper against the given catalog base URL.
func NewLazadaScraper(baseURL string, timeout time.Duration) *LazadaScraper {
	if timeout <= 0 {
		timeout = lazadaDefaultTimeout
	}
	return &LazadaScraper{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

func (s *LazadaScraper) Platform() string { return product.PlatformLazada }

var priceDigitsRe = regexp.MustCompile(`[\d.,]+`)

// parsePrice extracts a numeric amount from display strings such as
// "₫ 1.234.567" or "$12,345.67". Thousand separators are resolved by
// position: a trailing group of 1-2 digits is a decimal fraction.
func parsePrice(s string) float64 {
	raw := priceDigitsRe.FindString(s)
	if raw == "" {
		return 0
	}
	raw = strings.ReplaceAll(raw, ",", ".")
	parts := strings.Split(raw, ".")
	if len(parts) == 1 {
		v, _ := strconv.ParseFloat(parts[0], 64)
		return v
	}
	last := parts[len(parts)-1]
	if len(last) <= 2 {
		whole := strings.Join(parts[:len(parts)-1], "")
		v, _ := strconv.ParseFloat(whole+"."+last, 64)
		return v
	}
	v, _ := strconv.ParseFloat(strings.Join(parts, ""), 64)
	return v
}

// parseSales extracts a sold-count from strings like "2.3k sold" or "150 sold".
func parseSales(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, " sold")
	mult := 1.0
	if strings.HasSuffix(s, "k") {
		mult = 1000
		s = strings.TrimSuffix(s, "k")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int(v * mult)
}

// Search crawls one catalog result page for the query keyword.
func (s *LazadaScraper) Search(ctx context.Context, q product.Query) ([]product.Candidate, error) {
	keyword := q.TitleHint
	if keyword == "" && q.CanonicalURL != "" {
		keyword = q.ProductID
	}
	if keyword == "" {
		return nil, nil
	}

	c := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (compatible; dealscout/1.0)"),
		colly.MaxDepth(1),
	)
	timeout := s.timeout
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < timeout {
			timeout = rem
		}
	}
	c.SetRequestTimeout(timeout)

	var candidates []product.Candidate
	c.OnHTML("[data-qa-locator=product-item]", func(e *colly.HTMLElement) {
		title := strings.TrimSpace(e.ChildText(".title, [data-qa-locator=product-name]"))
		if title == "" {
			title = strings.TrimSpace(e.ChildAttr("img", "alt"))
		}
		if title == "" {
			return
		}
		rating := float64(product.RatingUnset)
		if r := strings.TrimSpace(e.ChildText(".rating-value")); r != "" {
			if v, err := strconv.ParseFloat(r, 64); err == nil {
				rating = v
			}
		}
		candidates = append(candidates, product.Candidate{
			Platform:     product.PlatformLazada,
			Title:        title,
			URL:          e.Request.AbsoluteURL(e.ChildAttr("a", "href")),
			Price:        parsePrice(e.ChildText(".price, [data-qa-locator=product-price]")),
			ShippingCost: parsePrice(e.ChildText(".shipping-fee")),
			ShopRating:   rating,
			ShopSales:    parseSales(e.ChildText(".sold-count")),
			ThumbnailURL: e.ChildAttr("img", "src"),
		})
	})

	var visitErr error
	c.OnError(func(_ *colly.Response, err error) {
		visitErr = err
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := fmt.Sprintf("%s/catalog/?q=%s", s.baseURL, url.QueryEscape(keyword))
	if err := c.Visit(target); err != nil {
		return nil, fmt.Errorf("lazada catalog visit: %w", err)
	}
	c.Wait()
	if visitErr != nil {
		return nil, fmt.Errorf("lazada catalog fetch: %w", visitErr)
	}
	return candidates, nil
}
