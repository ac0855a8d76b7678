// Package api exposes the search service over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/kalambet/dealscout/internal/pipeline"
	"github.com/kalambet/dealscout/internal/status"
	"github.com/kalambet/dealscout/internal/storage"
)

const (
	maxImageUploadSize = 5 << 20 // 5MB
	defaultJobTimeout  = 2 * time.Minute
)

// Deps holds dependencies for the HTTP handler.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Tracker  *status.Tracker
	Store    *storage.Store
	Token    string // bearer token for management routes
	// BaseCtx parents every background job so server shutdown cancels
	// in-flight searches. Defaults to context.Background().
	BaseCtx    context.Context
	JobTimeout time.Duration
}

// NewHandler builds the chi router: public search submission and polling,
// plus bearer-authed history/cart management routes.
func NewHandler(deps Deps) http.Handler {
	if deps.BaseCtx == nil {
		deps.BaseCtx = context.Background()
	}
	if deps.JobTimeout <= 0 {
		deps.JobTimeout = defaultJobTimeout
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/search", handleSubmitSearch(deps))
	r.Post("/search/image", handleSubmitImageSearch(deps))
	r.Get("/search/{searchID}", handleGetStatus(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/history", handleListHistory(deps))
		r.Get("/price-history", handlePriceHistory(deps))
		r.Post("/cart", handleAddCartItem(deps))
		r.Get("/cart", handleListCart(deps))
		r.Delete("/cart/{itemID}", handleRemoveCartItem(deps))
	})

	return r
}

type submitRequest struct {
	Type   string `json:"type"` // "url" or "keyword"
	Input  string `json:"input"`
	UserID string `json:"user_id"`
}

type submitResponse struct {
	SearchID string `json:"search_id"`
}

func handleSubmitSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Input == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "input is required")
			return
		}

		var searchType pipeline.SearchType
		switch req.Type {
		case "url":
			searchType = pipeline.SearchTypeURL
		case "keyword", "":
			searchType = pipeline.SearchTypeKeyword
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown search type %q", req.Type)
			return
		}

		job := pipeline.Job{
			SearchID: uuid.New().String(),
			UserID:   req.UserID,
			Type:     searchType,
			Input:    req.Input,
		}
		dispatch(deps, w, job)
	}
}

func handleSubmitImageSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImageUploadSize)
		if err := r.ParseMultipartForm(maxImageUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "image file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading image: %v", err)
			return
		}

		job := pipeline.Job{
			SearchID:   uuid.New().String(),
			UserID:     r.FormValue("user_id"),
			Type:       pipeline.SearchTypeImage,
			ImageBytes: data,
		}
		dispatch(deps, w, job)
	}
}

// dispatch registers the job with the tracker and runs the pipeline on a
// background goroutine; the client polls for the outcome.
func dispatch(deps Deps, w http.ResponseWriter, job pipeline.Job) {
	if err := deps.Tracker.Initialize(job.SearchID); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "initializing search: %v", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(deps.BaseCtx, deps.JobTimeout)
		defer cancel()
		deps.Pipeline.Process(ctx, job)
	}()
	writeJSON(w, http.StatusAccepted, submitResponse{SearchID: job.SearchID})
}

func handleGetStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		searchID := chi.URLParam(r, "searchID")
		record, ok := deps.Tracker.Get(searchID)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "unknown search id %q", searchID)
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}

func handleListHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		records, err := deps.Store.ListSearchHistory(r.Context(), userID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing history: %v", err)
			return
		}

		type historyEntry struct {
			SearchID   string          `json:"search_id"`
			SearchType string          `json:"search_type"`
			Input      string          `json:"input,omitempty"`
			Query      json.RawMessage `json:"query"`
			Results    json.RawMessage `json:"results"`
			CreatedAt  time.Time       `json:"created_at"`
		}
		out := make([]historyEntry, len(records))
		for i, h := range records {
			out[i] = historyEntry{
				SearchID:   h.SearchID,
				SearchType: h.SearchType,
				Input:      h.Input,
				Query:      json.RawMessage(h.QueryJSON),
				Results:    json.RawMessage(h.ResultsJSON),
				CreatedAt:  h.CreatedAt,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handlePriceHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required")
			return
		}
		days, _ := strconv.Atoi(r.URL.Query().Get("days"))
		if days <= 0 {
			days = 30
		}
		since := time.Now().UTC().AddDate(0, 0, -days)

		points, err := deps.Store.PriceHistory(r.Context(), url, since)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing price history: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, points)
	}
}

type addCartRequest struct {
	UserID       string  `json:"user_id"`
	Platform     string  `json:"platform"`
	ProductID    string  `json:"product_id"`
	CanonicalURL string  `json:"canonical_url"`
	Title        string  `json:"title"`
	Price        float64 `json:"price"`
}

func handleAddCartItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addCartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" || req.CanonicalURL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id and canonical_url are required")
			return
		}

		item := storage.CartItem{
			ID:           uuid.New().String(),
			UserID:       req.UserID,
			Platform:     req.Platform,
			ProductID:    req.ProductID,
			CanonicalURL: req.CanonicalURL,
			Title:        req.Title,
			LastPrice:    req.Price,
		}
		if err := deps.Store.AddCartItem(r.Context(), item); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "adding cart item: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": item.ID})
	}
}

func handleListCart(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		items, err := deps.Store.ListCartItems(r.Context(), userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing cart: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleRemoveCartItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		itemID := chi.URLParam(r, "itemID")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		err := deps.Store.RemoveCartItem(r.Context(), userID, itemID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "cart item %q not found", itemID)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "removing cart item: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
