package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		env: "DEALSCOUT_SERVER_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		env: "DEALSCOUT_API_TOKEN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
	},
	{
		env: "DEALSCOUT_WEIGHT_PRICE", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Recommend.WeightPrice = v.(float64) },
	},
	{
		env: "DEALSCOUT_WEIGHT_RATING", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Recommend.WeightRating = v.(float64) },
	},
	{
		env: "DEALSCOUT_WEIGHT_SHIPPING", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Recommend.WeightShipping = v.(float64) },
	},
	{
		env: "DEALSCOUT_TRUSTED_SALES_THRESHOLD", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Recommend.TrustedSalesThreshold = v.(int) },
	},
	{
		env: "DEALSCOUT_PRICE_FLOOR_RATIO", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Recommend.PriceFloorRatio = v.(float64) },
	},
	{
		env: "DEALSCOUT_RECOMMEND_TOP_N", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Recommend.TopN = v.(int) },
	},
	{
		env: "DEALSCOUT_SCRAPE_TIMEOUT", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Scrape.Timeout = v.(string) },
	},
	{
		env: "DEALSCOUT_SHOPEE_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Scrape.ShopeeBaseURL = v.(string) },
	},
	{
		env: "DEALSCOUT_LAZADA_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Scrape.LazadaBaseURL = v.(string) },
	},
	{
		env: "DEALSCOUT_TIKI_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Scrape.TikiBaseURL = v.(string) },
	},
	{
		env: "DEALSCOUT_IMAGE_ACCEPT_THRESHOLD", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Image.AcceptThreshold = v.(float64) },
	},
	{
		env: "DEALSCOUT_IMAGE_SEARCH_ENDPOINT", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Image.SearchEndpoint = v.(string) },
	},
	{
		env: "DEALSCOUT_REDIS_ADDR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Cache.RedisAddr = v.(string) },
	},
	{
		env: "DEALSCOUT_CACHE_TTL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Cache.TTL = v.(string) },
	},
	{
		env: "DEALSCOUT_REFRESH_ENABLED", typ: kBool,
		apply: func(cfg *Config, v any) { cfg.Refresh.Enabled = v.(bool) },
	},
	{
		env: "DEALSCOUT_REFRESH_SPEC", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Refresh.Spec = v.(string) },
	},
	{
		env: "DEALSCOUT_STORAGE_DATA_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		env: "DEALSCOUT_LOG_LEVEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
