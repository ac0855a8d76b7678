package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/dealscout/internal/linkproc"
	"github.com/kalambet/dealscout/internal/product"
	"github.com/kalambet/dealscout/internal/status"
	"github.com/kalambet/dealscout/internal/storage"
)

// MCPRecommender abstracts the recommendation engine for the MCP layer.
type MCPRecommender interface {
	Recommend(ctx context.Context, q product.Query, top int) ([]product.Candidate, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Recommender MCPRecommender
	Tracker     *status.Tracker
	Store       *storage.Store
}

const mcpSearchTimeout = 30 * time.Second

// NewMCPServer creates an MCP server exposing the price-comparison tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"dealscout",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("dealscout: compare product prices across shopping platforms."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_products",
			mcp.WithDescription("Search all supported shopping platforms for a product and return ranked offers. Accepts a product URL or a free-text keyword."),
			mcp.WithString("query", mcp.Description("Product URL or keyword"), mcp.Required()),
			mcp.WithNumber("top", mcp.Description("Maximum number of offers (default 3)")),
		),
		mcpSearchProducts(deps),
	)

	s.AddTool(
		mcp.NewTool("search_status",
			mcp.WithDescription("Poll the status of an asynchronous search submitted over HTTP."),
			mcp.WithString("search_id", mcp.Description("Search identifier"), mcp.Required()),
		),
		mcpSearchStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("price_history",
			mcp.WithDescription("Return observed prices for a canonical product URL."),
			mcp.WithString("url", mcp.Description("Canonical product URL"), mcp.Required()),
			mcp.WithNumber("days", mcp.Description("Lookback window in days (default 30)")),
		),
		mcpPriceHistory(deps),
	)

	return s
}

func mcpSearchProducts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		top := req.GetInt("top", 3)

		var q product.Query
		if strings.Contains(input, "://") {
			q, err = linkproc.Process(input)
			if err != nil {
				return mcpError(fmt.Sprintf("could not resolve URL: %v", err)), nil
			}
		} else {
			q = product.Query{TitleHint: input}
		}

		searchCtx, cancel := context.WithTimeout(ctx, mcpSearchTimeout)
		defer cancel()
		offers, err := deps.Recommender.Recommend(searchCtx, q, top)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		b, err := json.Marshal(offers)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal offers: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		searchID, err := req.RequireString("search_id")
		if err != nil {
			return mcpError("search_id is required"), nil
		}
		record, ok := deps.Tracker.Get(searchID)
		if !ok {
			return mcpError(fmt.Sprintf("unknown search id %q", searchID)), nil
		}
		b, err := json.Marshal(record)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpPriceHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		days := req.GetInt("days", 30)
		if days <= 0 {
			days = 30
		}

		points, err := deps.Store.PriceHistory(ctx, url, time.Now().UTC().AddDate(0, 0, -days))
		if err != nil {
			return mcpError(fmt.Sprintf("price history failed: %v", err)), nil
		}
		b, err := json.Marshal(points)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
