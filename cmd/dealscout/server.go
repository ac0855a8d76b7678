package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kalambet/dealscout/internal/api"
	"github.com/kalambet/dealscout/internal/cache"
	"github.com/kalambet/dealscout/internal/config"
	"github.com/kalambet/dealscout/internal/imagesearch"
	"github.com/kalambet/dealscout/internal/pipeline"
	"github.com/kalambet/dealscout/internal/recommend"
	"github.com/kalambet/dealscout/internal/scraper"
	"github.com/kalambet/dealscout/internal/status"
	"github.com/kalambet/dealscout/internal/storage"
	"github.com/kalambet/dealscout/internal/tracker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dealscout server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running dealscout server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dealscout system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "dealscout.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	var handler slog.Handler
	if noColor {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: logLevel, TimeFormat: time.TimeOnly})
	}
	slog.SetDefault(slog.New(handler))
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in config, using default", "value", value, "default", fallback)
		return fallback
	}
	return d
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "dealscout version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Write PID file, guarded by a health probe against double starts.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("dealscout is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("dealscout is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Optional scraper result cache.
	var resultCache *cache.ResultCache
	if cfg.Cache.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, result cache disabled", "addr", cfg.Cache.RedisAddr, "error", err)
		} else {
			resultCache = cache.New(rdb, parseDurationOr(cfg.Cache.TTL, 5*time.Minute))
			slog.Info("scraper result cache enabled", "addr", cfg.Cache.RedisAddr)
		}
		defer rdb.Close()
	}

	// Register platform scrapers.
	scrapeTimeout := parseDurationOr(cfg.Scrape.Timeout, 5*time.Second)
	scrapeClient := &http.Client{Timeout: scrapeTimeout}
	registry, err := scraper.NewRegistry(
		resultCache.Wrap(scraper.NewShopeeScraper(cfg.Scrape.ShopeeBaseURL, scrapeClient)),
		resultCache.Wrap(scraper.NewLazadaScraper(cfg.Scrape.LazadaBaseURL, scrapeTimeout)),
		resultCache.Wrap(scraper.NewTikiScraper(cfg.Scrape.TikiBaseURL, scrapeClient)),
	)
	if err != nil {
		return fmt.Errorf("registering scrapers: %w", err)
	}

	engine := recommend.NewEngine(registry, recommend.Options{
		WeightPrice:           cfg.Recommend.WeightPrice,
		WeightRating:          cfg.Recommend.WeightRating,
		WeightShipping:        cfg.Recommend.WeightShipping,
		TrustedSalesThreshold: cfg.Recommend.TrustedSalesThreshold,
		PriceFloorRatio:       cfg.Recommend.PriceFloorRatio,
		ScraperTimeout:        scrapeTimeout,
	})

	// Image search collaborator (optional).
	var imageSearcher imagesearch.Searcher
	if cfg.Image.SearchEndpoint != "" {
		imageSearcher = imagesearch.NewHTTPSearcher(cfg.Image.SearchEndpoint, &http.Client{Timeout: 30 * time.Second})
	}

	statusTracker := status.NewTracker()
	searchPipeline := pipeline.New(pipeline.Deps{
		Recommender:     engine,
		History:         store,
		Tracker:         statusTracker,
		Images:          imageSearcher,
		AcceptThreshold: cfg.Image.AcceptThreshold,
		TopN:            cfg.Recommend.TopN,
	})

	// Scheduled price refresh for tracked cart items.
	if cfg.Refresh.Enabled {
		refresher := tracker.NewRefresher(store, engine, cfg.Refresh.Spec)
		if err := refresher.Start(ctx); err != nil {
			return err
		}
		defer refresher.Stop()
	}

	handler := api.NewHandler(api.Deps{
		Pipeline: searchPipeline,
		Tracker:  statusTracker,
		Store:    store,
		Token:    cfg.Server.APIToken,
		BaseCtx:  ctx,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Recommender: engine,
		Tracker:     statusTracker,
		Store:       store,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "dealscout listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("dealscout is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop dealscout (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to dealscout (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Platforms", "%s", strings.Join([]string{"shopee", "lazada", "tiki"}, ", "))
	if cfg.Cache.RedisAddr != "" {
		printStatus("Result cache", "redis at %s", cfg.Cache.RedisAddr)
	} else {
		printStatus("Result cache", "disabled")
	}
	if cfg.Image.SearchEndpoint != "" {
		printStatus("Image search", "%s", cfg.Image.SearchEndpoint)
	} else {
		printStatus("Image search", "disabled")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
