// Command coverage sweeps all 360 zodiac degrees through a running natal API
// and reports which ones are missing content or images.
//
// Usage:
//
//	go run ./cmd/coverage -url http://localhost:8080 -o coverage.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/zapponejosh/natal-api/internal/astro"
)

// APIResponse matches the API response structure
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
}

type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type DegreeResponse struct {
	Sign    string `json:"sign"`
	Degree  int    `json:"degree"`
	Content struct {
		Sentence string `json:"sentence"`
		Header   string `json:"header"`
		Body     string `json:"body"`
	} `json:"content"`
	ImageURL string `json:"image_url"`
}

// TestResult holds the result for a single degree
type TestResult struct {
	Sign       string `json:"sign"`
	Degree     int    `json:"degree"`
	Success    bool   `json:"success"`
	HasContent bool   `json:"has_content"`
	HasImage   bool   `json:"has_image"`
	Error      string `json:"error,omitempty"`
}

// Complete reports whether the degree has everything it should.
func (r TestResult) Complete() bool {
	return r.Success && r.HasContent && r.HasImage
}

// SignStats tracks statistics for each sign
type SignStats struct {
	Sign            string `json:"sign"`
	TotalDegrees    int    `json:"total_degrees"`
	CompleteDegrees int    `json:"complete_degrees"`
	MissingContent  []int  `json:"missing_content"`
	MissingImage    []int  `json:"missing_image"`
	Failed          []int  `json:"failed"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of the API")
	staticPrefix := flag.String("static", "/static/", "URL prefix of served images; anything else is a placeholder")
	verbose := flag.Bool("v", false, "Verbose output (show each degree)")
	outputFile := flag.String("o", "", "Output results to JSON file")
	flag.Parse()

	fmt.Println("================================================================")
	fmt.Println("Natal API - Degree Content Coverage")
	fmt.Println("================================================================")
	fmt.Printf("Base URL:    %s\n", *baseURL)
	fmt.Println()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*baseURL + "/health")
	if err != nil {
		fmt.Printf("Error: Cannot connect to %s\n", *baseURL)
		fmt.Println("Make sure the API server is running.")
		os.Exit(1)
	}
	resp.Body.Close()

	results := testAllDegrees(client, strings.TrimSuffix(*baseURL, "/"), *staticPrefix, *verbose, os.Stdout)
	analysis := analyzeResults(results)

	printSummary(os.Stdout, analysis)
	printGapsBySign(os.Stdout, analysis)

	if *outputFile != "" {
		if err := saveResults(*outputFile, analysis); err != nil {
			fmt.Printf("Error writing results: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Results saved to: %s\n", *outputFile)
	}

	if analysis.TotalIncomplete > 0 {
		os.Exit(1)
	}
}

func testAllDegrees(client *http.Client, baseURL, staticPrefix string, verbose bool, out io.Writer) []TestResult {
	var results []TestResult

	total := len(astro.Signs()) * 30
	fmt.Fprintf(out, "Testing %d degrees...\n\n", total)

	for _, sign := range astro.Signs() {
		incomplete := 0
		for degree := 1; degree <= 30; degree++ {
			result := testDegree(client, baseURL, staticPrefix, sign, degree)
			results = append(results, result)
			if !result.Complete() {
				incomplete++
			}

			if verbose {
				status := "✓"
				if !result.Complete() {
					status = "✗"
				}
				fmt.Fprintf(out, "  %s %s %d: content=%t image=%t\n",
					status, sign, degree, result.HasContent, result.HasImage)
				if result.Error != "" {
					fmt.Fprintf(out, "      Error: %s\n", result.Error)
				}
			}
		}
		fmt.Fprintf(out, "  %-12s %d/30 complete\n", sign, 30-incomplete)
	}

	fmt.Fprintln(out)
	return results
}

func testDegree(client *http.Client, baseURL, staticPrefix string, sign astro.Sign, degree int) TestResult {
	result := TestResult{Sign: string(sign), Degree: degree}

	url := fmt.Sprintf("%s/api/v1/degrees/%s/%d", baseURL, sign.Lower(), degree)
	resp, err := client.Get(url)
	if err != nil {
		result.Error = fmt.Sprintf("Connection error: %v", err)
		return result
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = fmt.Sprintf("Read error: %v", err)
		return result
	}

	var apiResp APIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		result.Error = fmt.Sprintf("Parse error: %v", err)
		return result
	}

	if !apiResp.Success {
		errMsg := "Unknown error"
		if apiResp.Error != nil {
			errMsg = apiResp.Error.Message
		}
		result.Error = errMsg
		return result
	}

	var data DegreeResponse
	if err := json.Unmarshal(apiResp.Data, &data); err != nil {
		result.Error = fmt.Sprintf("Data parse error: %v", err)
		return result
	}

	result.Success = true
	result.HasContent = data.Content.Sentence != "" || data.Content.Body != ""
	result.HasImage = strings.HasPrefix(data.ImageURL, staticPrefix)
	return result
}

// Analysis holds the analyzed results
type Analysis struct {
	TotalDegrees    int                   `json:"total_degrees"`
	TotalComplete   int                   `json:"total_complete"`
	TotalIncomplete int                   `json:"total_incomplete"`
	BySign          map[string]*SignStats `json:"by_sign"`
	Failures        []TestResult          `json:"failures"`
}

func analyzeResults(results []TestResult) *Analysis {
	analysis := &Analysis{
		BySign: make(map[string]*SignStats),
	}

	for _, r := range results {
		analysis.TotalDegrees++

		stats, ok := analysis.BySign[r.Sign]
		if !ok {
			stats = &SignStats{Sign: r.Sign}
			analysis.BySign[r.Sign] = stats
		}
		stats.TotalDegrees++

		if r.Complete() {
			analysis.TotalComplete++
			stats.CompleteDegrees++
			continue
		}

		analysis.TotalIncomplete++
		switch {
		case !r.Success:
			stats.Failed = append(stats.Failed, r.Degree)
			analysis.Failures = append(analysis.Failures, r)
		default:
			if !r.HasContent {
				stats.MissingContent = append(stats.MissingContent, r.Degree)
			}
			if !r.HasImage {
				stats.MissingImage = append(stats.MissingImage, r.Degree)
			}
		}
	}

	return analysis
}

func printSummary(out io.Writer, analysis *Analysis) {
	fmt.Fprintln(out, "================================================================")
	fmt.Fprintln(out, "SUMMARY")
	fmt.Fprintln(out, "================================================================")
	fmt.Fprintf(out, "Total Degrees:  %d\n", analysis.TotalDegrees)
	fmt.Fprintf(out, "Complete:       %d (%.1f%%)\n", analysis.TotalComplete,
		percent(analysis.TotalComplete, analysis.TotalDegrees))
	fmt.Fprintf(out, "Incomplete:     %d (%.1f%%)\n", analysis.TotalIncomplete,
		percent(analysis.TotalIncomplete, analysis.TotalDegrees))
	fmt.Fprintln(out)
}

func printGapsBySign(out io.Writer, analysis *Analysis) {
	if analysis.TotalIncomplete == 0 {
		fmt.Fprintln(out, "Every degree has content and an image.")
		return
	}

	fmt.Fprintln(out, "================================================================")
	fmt.Fprintln(out, "GAPS BY SIGN")
	fmt.Fprintln(out, "================================================================")

	// Worst signs first.
	var signs []*SignStats
	for _, stats := range analysis.BySign {
		if stats.CompleteDegrees < stats.TotalDegrees {
			signs = append(signs, stats)
		}
	}
	sort.Slice(signs, func(i, j int) bool {
		if signs[i].CompleteDegrees != signs[j].CompleteDegrees {
			return signs[i].CompleteDegrees < signs[j].CompleteDegrees
		}
		return astro.Sign(signs[i].Sign).Index() < astro.Sign(signs[j].Sign).Index()
	})

	for _, stats := range signs {
		fmt.Fprintf(out, "\n%s: %d/%d complete\n", stats.Sign, stats.CompleteDegrees, stats.TotalDegrees)
		if len(stats.MissingContent) > 0 {
			fmt.Fprintf(out, "  missing content: %s\n", formatDegrees(stats.MissingContent))
		}
		if len(stats.MissingImage) > 0 {
			fmt.Fprintf(out, "  missing image:   %s\n", formatDegrees(stats.MissingImage))
		}
		if len(stats.Failed) > 0 {
			fmt.Fprintf(out, "  request failed:  %s\n", formatDegrees(stats.Failed))
		}
	}
	fmt.Fprintln(out)
}

// formatDegrees collapses runs: [1 2 3 7] → "1-3, 7".
func formatDegrees(degrees []int) string {
	var parts []string
	for i := 0; i < len(degrees); {
		j := i
		for j+1 < len(degrees) && degrees[j+1] == degrees[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, fmt.Sprint(degrees[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", degrees[i], degrees[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ", ")
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func saveResults(filename string, analysis *Analysis) error {
	output := struct {
		GeneratedAt string `json:"generated_at"`
		*Analysis
	}{
		GeneratedAt: time.Now().Format(time.RFC3339),
		Analysis:    analysis,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}
