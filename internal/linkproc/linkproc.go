// Package linkproc resolves raw product URLs into canonical search queries.
//
// Each supported platform contributes one table entry with an isolated
// identifier extractor; adding a platform means adding an entry, nothing
// shared changes.
package linkproc

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/kalambet/dealscout/internal/product"
)

var (
	// ErrInvalidInput is returned when the input is not a well-formed absolute URL.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupportedPlatform is returned when the URL host matches no known platform.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// platformRule detects one platform and extracts its product identifier.
type platformRule struct {
	name string
	// hostKeyword is matched against the registrable domain of the URL host.
	hostKeyword string
	// extract derives the platform-local product id from the parsed URL,
	// or "" when the URL carries no recognizable identifier.
	extract func(u *url.URL) string
	// canonical rebuilds a stable URL from the extracted id.
	canonical func(id string) string
}

var (
	shopeeIDRe = regexp.MustCompile(`\bi\.\d+\.\d+\b`)
	lazadaIDRe = regexp.MustCompile(`-s(\d+)(?:\.html?)?$`)
	tikiIDRe   = regexp.MustCompile(`-p(\d+)(?:\.html?)?$`)
	numericRe  = regexp.MustCompile(`^\d+$`)
)

var rules = []platformRule{
	{
		name:        product.PlatformShopee,
		hostKeyword: "shopee",
		extract: func(u *url.URL) string {
			// Identifier is an `i.<shopId>.<itemId>` segment anywhere in the path.
			return shopeeIDRe.FindString(u.Path)
		},
		canonical: func(id string) string {
			return fmt.Sprintf("https://shopee.vn/product-%s", id)
		},
	},
	{
		name:        product.PlatformLazada,
		hostKeyword: "lazada",
		extract: func(u *url.URL) string {
			m := lazadaIDRe.FindStringSubmatch(lastSegment(u.Path))
			if m == nil {
				return ""
			}
			return m[1]
		},
		canonical: func(id string) string {
			return fmt.Sprintf("https://www.lazada.vn/products/-s%s.html", id)
		},
	},
	{
		name:        product.PlatformTiki,
		hostKeyword: "tiki",
		extract: func(u *url.URL) string {
			// spid query parameter takes precedence over the path-derived id.
			if spid := u.Query().Get("spid"); numericRe.MatchString(spid) {
				return spid
			}
			m := tikiIDRe.FindStringSubmatch(lastSegment(u.Path))
			if m == nil {
				return ""
			}
			return m[1]
		},
		canonical: func(id string) string {
			return fmt.Sprintf("https://tiki.vn/product-p%s.html", id)
		},
	},
}

// Process parses a raw input string into a resolved product query.
// The returned query always carries platform, product id, and a canonical
// URL rebuilt from them for stable downstream deduplication.
func Process(raw string) (product.Query, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return product.Query{}, fmt.Errorf("%w: not an absolute URL: %q", ErrInvalidInput, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return product.Query{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, u.Scheme)
	}

	host := registrableDomain(u.Hostname())
	for _, rule := range rules {
		if !strings.Contains(host, rule.hostKeyword) {
			continue
		}
		id := rule.extract(u)
		if id == "" {
			return product.Query{}, fmt.Errorf("%w: no product identifier in %s URL path", ErrInvalidInput, rule.name)
		}
		return product.Query{
			Platform:     rule.name,
			ProductID:    id,
			CanonicalURL: rule.canonical(id),
			TitleHint:    titleHintFromPath(u.Path),
		}, nil
	}

	return product.Query{}, fmt.Errorf("%w: host %q", ErrUnsupportedPlatform, u.Hostname())
}

// registrableDomain reduces a hostname to its eTLD+1 so that subdomains and
// country TLD variants match the same platform keyword. Falls back to the
// raw host when the public suffix list cannot resolve it (IPs, localhost).
func registrableDomain(host string) string {
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(d)
}

func lastSegment(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// titleHintFromPath recovers a free-text hint from slugged product paths,
// used as keyword fallback when a platform lookup by id fails.
func titleHintFromPath(path string) string {
	seg := lastSegment(path)
	seg = shopeeIDRe.ReplaceAllString(seg, "")
	seg = lazadaIDRe.ReplaceAllString(seg, "")
	seg = tikiIDRe.ReplaceAllString(seg, "")
	seg = strings.TrimSuffix(seg, ".html")
	seg = strings.Trim(strings.ReplaceAll(seg, "-", " "), " .")
	return strings.Join(strings.Fields(seg), " ")
}
