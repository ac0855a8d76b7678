package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/dealscout/internal/product"
)

const tikiSearchPage = `<!DOCTYPE html>
<html><body>
<div data-view-id="product_list_item">
  <a href="/usb-hub-p1001.html"><h3>USB hub</h3></a>
  <img src="https://cdn.tiki.vn/p1001.jpg">
  <span class="price-discount__price">199.000</span>
  <span data-rating="4.7"></span>
  <span class="quantity-sold">1.2k sold</span>
</div>
<div class="product-item">
  <a href="https://tiki.vn/cable-p1002.html"><h3>HDMI cable</h3></a>
  <span class="price">85.000</span>
</div>
<div class="product-item">
  <span class="price">10.000</span>
</div>
</body></html>`

func TestTikiScraper_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("q") != "usb hub" {
			t.Errorf("request = %s", r.URL.String())
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(tikiSearchPage))
	}))
	defer srv.Close()

	s := NewTikiScraper(srv.URL, srv.Client())
	got, err := s.Search(context.Background(), product.Query{TitleHint: "usb hub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2 (titleless card dropped)", len(got))
	}

	first := got[0]
	if first.Title != "USB hub" || first.Price != 199000 {
		t.Errorf("first = %+v", first)
	}
	if first.ShopRating != 4.7 || first.ShopSales != 1200 {
		t.Errorf("first rating/sales = %v/%d", first.ShopRating, first.ShopSales)
	}
	if first.URL != srv.URL+"/usb-hub-p1001.html" {
		t.Errorf("first url = %q, want relative href resolved", first.URL)
	}
	if first.ThumbnailURL != "https://cdn.tiki.vn/p1001.jpg" {
		t.Errorf("first thumbnail = %q", first.ThumbnailURL)
	}

	second := got[1]
	if second.URL != "https://tiki.vn/cable-p1002.html" {
		t.Errorf("second url = %q, want absolute href untouched", second.URL)
	}
	if second.ShopRating != float64(product.RatingUnset) {
		t.Errorf("second rating = %v, want unset", second.ShopRating)
	}
}
