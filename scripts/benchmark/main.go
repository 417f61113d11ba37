package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/pricehound/models"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "pricehound API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Requests per query; the first is normally a cold scrape")
	limit  = flag.Int("limit", 20, "Page size requested")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

var testQueries = []string{
	"running shoes",
	"mechanical keyboard",
	"espresso machine",
	"4k monitor",
	"camping tent",
}

type runResult struct {
	Run       int    `json:"run"`
	LatencyMs int64  `json:"latency_ms"`
	Cache     string `json:"cache"`
	Products  int    `json:"products"`
	WithImage int    `json:"with_image"`
	WithLink  int    `json:"with_link"`
	Status    int    `json:"status"`
	Error     string `json:"error,omitempty"`
}

type queryResult struct {
	Query  string      `json:"query"`
	Runs   []runResult `json:"runs"`
	ColdMs int64       `json:"cold_ms"`
	WarmMs float64     `json:"warm_avg_ms"`
}

type benchmarkReport struct {
	Timestamp    string        `json:"timestamp"`
	APIURL       string        `json:"api_url"`
	RunsPerQuery int           `json:"runs_per_query"`
	Results      []queryResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== pricehound benchmark ===")
	fmt.Printf("API URL:    %s\n", *apiURL)
	fmt.Printf("Runs/query: %d\n", *runs)
	fmt.Printf("Output:     %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		APIURL:       *apiURL,
		RunsPerQuery: *runs,
	}

	client := &http.Client{Timeout: 90 * time.Second}
	for _, q := range testQueries {
		fmt.Printf("Benchmarking %q ...\n", q)
		qr := queryResult{Query: q}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkQuery(client, q, i)
			if rr.Error == "" {
				fmt.Printf("OK  %dms  %s  %d products\n", rr.LatencyMs, rr.Cache, rr.Products)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			qr.Runs = append(qr.Runs, rr)
		}

		qr.ColdMs, qr.WarmMs = summarize(qr.Runs)
		report.Results = append(report.Results, qr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkQuery(client *http.Client, query string, run int) runResult {
	rr := runResult{Run: run}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", fmt.Sprint(*limit))

	req, err := http.NewRequest(http.MethodGet, *apiURL+"/api/v1/products?"+params.Encode(), nil)
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	rr.Status = resp.StatusCode
	rr.Cache = resp.Header.Get("X-Cache")

	if resp.StatusCode != http.StatusOK {
		var e models.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		rr.Error = fmt.Sprintf("status %d: %s", resp.StatusCode, e.Error)
		return rr
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}
	rr.LatencyMs = time.Since(start).Milliseconds()

	var products []models.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		// {"results":[],"message":...}
		return rr
	}
	rr.Products = len(products)
	for _, p := range products {
		if p.Image != "" {
			rr.WithImage++
		}
		if p.BuyURL != "" {
			rr.WithLink++
		}
	}
	return rr
}

// summarize returns the latency of the first successful miss and the average
// latency of the successful cache hits.
func summarize(runs []runResult) (coldMs int64, warmAvg float64) {
	var warm []int64
	for _, r := range runs {
		if r.Error != "" {
			continue
		}
		if r.Cache == "miss" && coldMs == 0 {
			coldMs = r.LatencyMs
			continue
		}
		if strings.HasPrefix(r.Cache, "hit") {
			warm = append(warm, r.LatencyMs)
		}
	}
	if len(warm) == 0 {
		return coldMs, 0
	}
	var sum int64
	for _, ms := range warm {
		sum += ms
	}
	return coldMs, float64(sum) / float64(len(warm))
}

func printTable(results []queryResult) {
	fmt.Println(strings.Repeat("─", 80))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Query\tCold\tWarm (avg)\tProducts\tWith Image\n")
	fmt.Fprintf(w, "─────\t────\t──────────\t────────\t──────────\n")

	for _, r := range results {
		products, images := 0, 0
		for _, run := range r.Runs {
			if run.Error == "" && run.Products > products {
				products, images = run.Products, run.WithImage
			}
		}
		if products == 0 && r.ColdMs == 0 {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\n", r.Query)
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%.0fms\t%d\t%d\n", r.Query, r.ColdMs, r.WarmMs, products, images)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 80))
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
