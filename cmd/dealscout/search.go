package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/dealscout/internal/config"
	"github.com/kalambet/dealscout/internal/product"
	"github.com/kalambet/dealscout/internal/status"
)

const pollInterval = 500 * time.Millisecond

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Submit a search to a running server and wait for results",
	Long: `Submit a search to a running dealscout server and poll until it finishes.

Examples:
  dealscout search --url "https://shopee.vn/some-product-i.123.456"
  dealscout search --keyword "mechanical keyboard"
  dealscout search --image ./photo.jpg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rawURL, _ := cmd.Flags().GetString("url")
		keyword, _ := cmd.Flags().GetString("keyword")
		imagePath, _ := cmd.Flags().GetString("image")
		userID, _ := cmd.Flags().GetString("user")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		set := 0
		for _, v := range []string{rawURL, keyword, imagePath} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("exactly one of --url, --keyword, or --image is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		client := &http.Client{Timeout: 30 * time.Second}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		var searchID string
		if imagePath != "" {
			searchID, err = submitImage(ctx, client, baseURL, imagePath, userID)
		} else {
			searchType, input := "keyword", keyword
			if rawURL != "" {
				searchType, input = "url", rawURL
			}
			searchID, err = submitQuery(ctx, client, baseURL, searchType, input, userID)
		}
		if err != nil {
			return err
		}
		printStep("Search %s submitted, waiting...", searchID)

		record, err := pollUntilDone(ctx, client, baseURL, searchID)
		if err != nil {
			return err
		}
		if record.State == status.StateFailed {
			printError("search failed: %s", record.Err)
			return fmt.Errorf("search failed")
		}
		printResults(record.Results)
		return nil
	},
}

func init() {
	searchCmd.Flags().String("url", "", "product URL to compare")
	searchCmd.Flags().String("keyword", "", "free-text product keyword")
	searchCmd.Flags().String("image", "", "path to a product image")
	searchCmd.Flags().String("user", "", "user id for history tracking")
	searchCmd.Flags().Duration("timeout", 2*time.Minute, "how long to wait for results")
}

func submitQuery(ctx context.Context, client *http.Client, baseURL, searchType, input, userID string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"type":    searchType,
		"input":   input,
		"user_id": userID,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	return decodeSearchID(client.Do(req))
}

func submitImage(ctx context.Context, client *http.Client, baseURL, path, userID string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if userID != "" {
		mw.WriteField("user_id", userID)
	}
	mw.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/search/image", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return decodeSearchID(client.Do(req))
}

func decodeSearchID(resp *http.Response, err error) (string, error) {
	if err != nil {
		return "", fmt.Errorf("server not reachable, is dealscout running? (%w)", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("submit failed: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	var out struct {
		SearchID string `json:"search_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding submit response: %w", err)
	}
	return out.SearchID, nil
}

func pollUntilDone(ctx context.Context, client *http.Client, baseURL, searchID string) (status.Record, error) {
	for {
		select {
		case <-ctx.Done():
			return status.Record{}, fmt.Errorf("timed out waiting for search %s", searchID)
		case <-time.After(pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/search/"+searchID, nil)
		if err != nil {
			return status.Record{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return status.Record{}, fmt.Errorf("polling search: %w", err)
		}
		var record status.Record
		decodeErr := json.NewDecoder(resp.Body).Decode(&record)
		resp.Body.Close()
		if decodeErr != nil {
			return status.Record{}, fmt.Errorf("decoding status: %w", decodeErr)
		}
		if record.State.Terminal() {
			return record, nil
		}
	}
}

func printResults(results []product.Candidate) {
	if len(results) == 0 {
		printWarning("no matching offers found")
		return
	}
	for i, c := range results {
		labels := ""
		if len(c.Labels) > 0 {
			labels = fmt.Sprintf("  [%s]", strings.Join(c.Labels, ", "))
		}
		fmt.Fprintf(os.Stdout, "%d. %s (%s)%s\n   price %.2f  shipping %.2f  rating %.1f  sales %d\n",
			i+1, c.Title, c.Platform, labels, c.Price, c.ShippingCost, c.ShopRating, c.ShopSales)
		if c.URL != "" {
			fmt.Fprintf(os.Stdout, "   %s\n", c.URL)
		}
	}
}
