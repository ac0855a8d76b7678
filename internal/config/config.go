// Package config loads service configuration from defaults, an optional
// .env file, and DEALSCOUT_* environment variables (highest precedence).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Recommend RecommendConfig
	Scrape    ScrapeConfig
	Image     ImageConfig
	Cache     CacheConfig
	Refresh   RefreshConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type RecommendConfig struct {
	WeightPrice           float64
	WeightRating          float64
	WeightShipping        float64
	TrustedSalesThreshold int
	PriceFloorRatio       float64
	TopN                  int
}

type ScrapeConfig struct {
	// Timeout is a duration string bounding each scraper call, e.g. "5s".
	Timeout       string
	ShopeeBaseURL string
	LazadaBaseURL string
	TikiBaseURL   string
}

type ImageConfig struct {
	AcceptThreshold float64
	// SearchEndpoint is the reverse image search collaborator base URL.
	// Empty disables image search.
	SearchEndpoint string
}

type CacheConfig struct {
	// RedisAddr enables the scraper result cache when non-empty.
	RedisAddr string
	TTL       string
}

type RefreshConfig struct {
	Enabled bool
	// Spec is a cron expression for the price refresh schedule.
	Spec string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Recommend: RecommendConfig{
			WeightPrice:           0.5,
			WeightRating:          0.3,
			WeightShipping:        0.2,
			TrustedSalesThreshold: 100,
			PriceFloorRatio:       0.25,
			TopN:                  3,
		},
		Scrape: ScrapeConfig{
			Timeout:       "5s",
			ShopeeBaseURL: "https://shopee.vn",
			LazadaBaseURL: "https://www.lazada.vn",
			TikiBaseURL:   "https://tiki.vn",
		},
		Image: ImageConfig{
			AcceptThreshold: 0.7,
		},
		Cache: CacheConfig{
			TTL: "5m",
		},
		Refresh: RefreshConfig{
			Enabled: true,
			Spec:    "@hourly",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration: defaults, then an optional .env file in the
// working directory, then DEALSCOUT_* environment variables.
func Load() (Config, error) {
	// Missing .env is fine; env vars alone are a valid setup.
	_ = godotenv.Load()

	cfg := defaults()
	applyEnvOverrides(&cfg)

	if cfg.Server.APIToken == "" {
		return Config{}, fmt.Errorf("missing required config: API token. Set it via environment variable DEALSCOUT_API_TOKEN")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	return cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dealscout"
	}
	return filepath.Join(home, ".dealscout")
}
