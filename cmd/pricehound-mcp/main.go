package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/pricehound/models"
)

func main() {
	apiURL := os.Getenv("PRICEHOUND_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	// Only needed when the API runs with auth enabled.
	apiKey := os.Getenv("PRICEHOUND_API_KEY")

	s := server.NewMCPServer(
		"pricehound",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	searchTool := mcp.NewTool("search_products",
		mcp.WithDescription("Search shopping listings for a query and return product name, price, image, buy link and merchant for each result."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Free-text product search, e.g. 'trail running shoes'"),
		),
		mcp.WithNumber("start",
			mcp.Description("Zero-based offset into the result list (default: 0)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of results to return (default: 50, max: 100)"),
		),
	)
	s.AddTool(searchTool, handleSearchProducts(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleSearchProducts(apiURL, apiKey string) server.ToolHandlerFunc {
	// Covers a cold scrape with retries plus enrichment.
	client := &http.Client{Timeout: 90 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		params := url.Values{}
		params.Set("q", query)
		params.Set("start", strconv.Itoa(request.GetInt("start", 0)))
		params.Set("limit", strconv.Itoa(request.GetInt("limit", models.DefaultLimit)))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/products?"+params.Encode(), nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		if apiKey != "" {
			req.Header.Set("X-API-Key", apiKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		text, err := formatResponse(resp.StatusCode, body)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

// formatResponse renders a /api/v1/products response as plain text.
func formatResponse(status int, body []byte) (string, error) {
	if status != http.StatusOK {
		var e models.ErrorResponse
		if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
			return "", fmt.Errorf("search failed with status %d", status)
		}
		if e.Code != "" {
			return "", fmt.Errorf("[%s] %s", e.Code, e.Error)
		}
		return "", fmt.Errorf("%s", e.Error)
	}

	// An empty result is an object with a message, not an array.
	if trimmed := strings.TrimSpace(string(body)); strings.HasPrefix(trimmed, "{") {
		var empty models.EmptyResponse
		if err := json.Unmarshal(body, &empty); err != nil {
			return "", fmt.Errorf("failed to parse response: %v", err)
		}
		return empty.Message, nil
	}

	var products []models.Product
	if err := json.Unmarshal(body, &products); err != nil {
		return "", fmt.Errorf("failed to parse response: %v", err)
	}
	if len(products) == 0 {
		return "No products in this range.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d products:\n\n", len(products))
	for i, p := range products {
		fmt.Fprintf(&sb, "[%d] %s\n    Price: %s\n    Merchant: %s\n", i+1, p.Name, p.Price, p.Source)
		if p.BuyURL != "" {
			fmt.Fprintf(&sb, "    Link: %s\n", p.BuyURL)
		}
		if p.Image != "" && !strings.HasPrefix(p.Image, "data:") {
			fmt.Fprintf(&sb, "    Image: %s\n", p.Image)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
