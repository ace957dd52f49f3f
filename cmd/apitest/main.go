// Command apitest runs a smoke suite against a running natal API.
//
// Usage:
//
//	go run ./cmd/apitest -url http://localhost:8080 -key $API_KEY
//
// Without -key the profile write checks are skipped.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// =============================================================================
// Response Types - Match the actual API response structure
// =============================================================================

type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
}

type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// HealthResponse is the response for /health
type HealthResponse struct {
	Status string `json:"status"`
}

// ChartResponse is the response for /charts/preview and /profiles/{id}/chart
type ChartResponse struct {
	ProfileID   *int64      `json:"profile_id"`
	Name        string      `json:"name"`
	HouseSystem string      `json:"house_system"`
	Cusps       []float64   `json:"cusps"`
	Planets     []Placement `json:"planets"`
}

type Placement struct {
	Planet    string  `json:"planet"`
	Longitude float64 `json:"degree_total"`
	Sign      string  `json:"sign"`
	Degree    int     `json:"degree_int"`
	House     int     `json:"house"`
}

// DegreeResponse is the response for /degrees/{sign}/{degree}
type DegreeResponse struct {
	Sign   string    `json:"sign"`
	Degree int       `json:"degree"`
	Next   DegreeRef `json:"next"`
	Prev   DegreeRef `json:"prev"`
}

type DegreeRef struct {
	Sign   string `json:"sign"`
	Degree int    `json:"degree"`
}

// ResearchResponse is the response for /research
type ResearchResponse struct {
	Sign    string `json:"sign"`
	Degree  int    `json:"degree"`
	Scanned int    `json:"scanned"`
	Matches []struct {
		ProfileID int64  `json:"profile_id"`
		Planet    string `json:"planet"`
		House     int    `json:"house"`
	} `json:"matches"`
}

type ProfileResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	City      string  `json:"city"`
	BirthDate string  `json:"birth_date"`
	Latitude  float64 `json:"latitude"`
}

// =============================================================================
// Test Runner
// =============================================================================

type TestRunner struct {
	baseURL      string
	apiKey       string
	client       *http.Client
	out          io.Writer
	verbose      bool
	successCount int
	errorCount   int
	errors       []string
}

func NewTestRunner(baseURL, apiKey string, verbose bool, out io.Writer) *TestRunner {
	return &TestRunner{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		out:     out,
		verbose: verbose,
	}
}

func (tr *TestRunner) Run() {
	fmt.Fprintln(tr.out, "==============================================")
	fmt.Fprintln(tr.out, "Natal API Test Suite")
	fmt.Fprintln(tr.out, "==============================================")
	fmt.Fprintf(tr.out, "Base URL: %s\n", tr.baseURL)

	tr.testHealth()
	tr.testPreview()
	tr.testDegrees()
	tr.testEdgeCases()
	if tr.apiKey != "" {
		tr.testProfileLifecycle()
	} else {
		tr.printSection("Profiles")
		fmt.Fprintln(tr.out, "  - skipped, no API key")
	}

	tr.printSummary()
}

// =============================================================================
// Test Groups
// =============================================================================

func (tr *TestRunner) testHealth() {
	tr.printSection("Health Check")

	var health HealthResponse
	if err := tr.call(http.MethodGet, "/health", nil, &health); err != nil {
		tr.recordError("Health", err.Error())
		return
	}

	if health.Status == "healthy" {
		tr.recordSuccess("Health check passed")
	} else {
		tr.recordError("Health", fmt.Sprintf("Unexpected status: %s", health.Status))
	}
}

// sampleBirth has explicit coordinates so the suite never depends on the
// geocoder.
func sampleBirth(name string) map[string]any {
	return map[string]any{
		"name":        name,
		"city":        "Tel Aviv",
		"birth_date":  "15/05/1990",
		"date_format": "dd/mm/yyyy",
		"birth_time":  "10:30",
		"timezone":    "Asia/Jerusalem",
		"latitude":    32.0853,
		"longitude":   34.7818,
	}
}

func (tr *TestRunner) testPreview() {
	tr.printSection("Chart Preview")

	for _, system := range []string{"placidus", "porphyry", "equal", "whole-sign"} {
		in := sampleBirth("Smoke " + system)
		in["house_system"] = system

		var chart ChartResponse
		if err := tr.call(http.MethodPost, "/api/v1/charts/preview", in, &chart); err != nil {
			tr.recordError("Preview "+system, err.Error())
			continue
		}
		if msg := checkChart(&chart); msg != "" {
			tr.recordError("Preview "+system, msg)
			continue
		}

		tr.recordSuccess(fmt.Sprintf("%s: %d placements, Sun in %s %d, house %d",
			system, len(chart.Planets), chart.Planets[1].Sign, chart.Planets[1].Degree, chart.Planets[1].House))

		if tr.verbose {
			tr.printChartDetail(&chart)
		}
	}
}

// checkChart returns a description of the first broken invariant, or "".
func checkChart(c *ChartResponse) string {
	if len(c.Cusps) != 12 {
		return fmt.Sprintf("got %d cusps, want 12", len(c.Cusps))
	}
	if len(c.Planets) == 0 || c.Planets[0].Planet != "Ascendant" {
		return "first placement is not the Ascendant"
	}
	if c.Planets[0].House != 1 {
		return fmt.Sprintf("Ascendant in house %d", c.Planets[0].House)
	}
	for _, p := range c.Planets {
		if p.House < 1 || p.House > 12 {
			return fmt.Sprintf("%s in house %d", p.Planet, p.House)
		}
		if p.Degree < 1 || p.Degree > 30 {
			return fmt.Sprintf("%s at degree %d", p.Planet, p.Degree)
		}
		if p.Longitude < 0 || p.Longitude >= 360 {
			return fmt.Sprintf("%s at longitude %.4f", p.Planet, p.Longitude)
		}
	}
	return ""
}

func (tr *TestRunner) testDegrees() {
	tr.printSection("Degree Navigation")

	tests := []struct {
		path       string
		next, prev DegreeRef
	}{
		{"/api/v1/degrees/aries/1", DegreeRef{"Aries", 2}, DegreeRef{"Pisces", 30}},
		{"/api/v1/degrees/Pisces/30", DegreeRef{"Aries", 1}, DegreeRef{"Pisces", 29}},
		{"/api/v1/degrees/leo/15", DegreeRef{"Leo", 16}, DegreeRef{"Leo", 14}},
	}
	for _, tt := range tests {
		var d DegreeResponse
		if err := tr.call(http.MethodGet, tt.path, nil, &d); err != nil {
			tr.recordError(tt.path, err.Error())
			continue
		}
		if d.Next != tt.next || d.Prev != tt.prev {
			tr.recordError(tt.path, fmt.Sprintf("next=%v prev=%v, want %v %v", d.Next, d.Prev, tt.next, tt.prev))
			continue
		}
		tr.recordSuccess(fmt.Sprintf("%s %d wraps to %s %d / %s %d", d.Sign, d.Degree,
			d.Prev.Sign, d.Prev.Degree, d.Next.Sign, d.Next.Degree))
	}

	var research ResearchResponse
	if err := tr.call(http.MethodGet, "/api/v1/research?sign=taurus&degree=16", nil, &research); err != nil {
		tr.recordError("Research", err.Error())
		return
	}
	tr.recordSuccess(fmt.Sprintf("Research Taurus 16: %d matches in %d profiles", len(research.Matches), research.Scanned))
}

func (tr *TestRunner) testEdgeCases() {
	tr.printSection("Edge Cases")

	tests := []struct {
		name      string
		method    string
		path      string
		body      any
		status    int
		anonymous bool
	}{
		{"Unknown sign rejected", http.MethodGet, "/api/v1/degrees/ophiuchus/1", nil, http.StatusBadRequest, false},
		{"Degree 0 rejected", http.MethodGet, "/api/v1/degrees/aries/0", nil, http.StatusBadRequest, false},
		{"Degree 31 rejected", http.MethodGet, "/api/v1/degrees/aries/31", nil, http.StatusBadRequest, false},
		{"Research without degree rejected", http.MethodGet, "/api/v1/research?sign=aries", nil, http.StatusBadRequest, false},
		{"Impossible date rejected", http.MethodPost, "/api/v1/charts/preview",
			withField(sampleBirth("Edge"), "birth_date", "30/02/1990"), http.StatusBadRequest, false},
		{"Unknown house system rejected", http.MethodPost, "/api/v1/charts/preview",
			withField(sampleBirth("Edge"), "house_system", "koch"), http.StatusBadRequest, false},
		{"Missing profile is 404", http.MethodGet, "/api/v1/profiles/999999", nil, http.StatusNotFound, false},
		{"Anonymous write rejected", http.MethodDelete, "/api/v1/profiles/1", nil, http.StatusUnauthorized, true},
	}

	for _, tt := range tests {
		// The anonymous check only means something when the server has a key.
		if tt.anonymous && tr.apiKey == "" {
			continue
		}
		key := tr.apiKey
		if tt.anonymous {
			key = ""
		}
		status, err := tr.status(tt.method, tt.path, tt.body, key)
		if err != nil {
			tr.recordError(tt.name, err.Error())
			continue
		}
		if status != tt.status {
			tr.recordError(tt.name, fmt.Sprintf("got %d, want %d", status, tt.status))
			continue
		}
		tr.recordSuccess(tt.name)
	}
}

func withField(in map[string]any, key string, value any) map[string]any {
	in[key] = value
	return in
}

func (tr *TestRunner) testProfileLifecycle() {
	tr.printSection("Profiles")

	var created ProfileResponse
	if err := tr.call(http.MethodPost, "/api/v1/profiles", sampleBirth("Smoke Profile"), &created); err != nil {
		tr.recordError("Create", err.Error())
		return
	}
	if created.BirthDate != "1990-05-15" {
		tr.recordError("Create", fmt.Sprintf("birth_date stored as %q, want ISO", created.BirthDate))
	} else {
		tr.recordSuccess(fmt.Sprintf("Created profile %d", created.ID))
	}
	base := fmt.Sprintf("/api/v1/profiles/%d", created.ID)

	var chart ChartResponse
	if err := tr.call(http.MethodGet, base+"/chart", nil, &chart); err != nil {
		tr.recordError("Profile chart", err.Error())
	} else if msg := checkChart(&chart); msg != "" {
		tr.recordError("Profile chart", msg)
	} else {
		tr.recordSuccess("Profile chart computed")
	}

	update := sampleBirth("Smoke Profile Renamed")
	var updated ProfileResponse
	if err := tr.call(http.MethodPut, base, update, &updated); err != nil {
		tr.recordError("Update", err.Error())
	} else if updated.Name != "Smoke Profile Renamed" {
		tr.recordError("Update", fmt.Sprintf("name = %q", updated.Name))
	} else {
		tr.recordSuccess("Updated profile")
	}

	if err := tr.call(http.MethodDelete, base, nil, nil); err != nil {
		tr.recordError("Delete", err.Error())
		return
	}
	status, err := tr.status(http.MethodGet, base, nil, tr.apiKey)
	if err != nil || status != http.StatusNotFound {
		tr.recordError("Delete", fmt.Sprintf("profile still readable (status %d, err %v)", status, err))
		return
	}
	tr.recordSuccess("Deleted profile")
}

// =============================================================================
// Helper Methods
// =============================================================================

// call sends the request and decodes the data of a successful envelope into
// target, which may be nil.
func (tr *TestRunner) call(method, path string, body, target any) error {
	resp, err := tr.do(method, path, body, tr.apiKey)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	if !apiResp.Success {
		errMsg := "unknown error"
		if apiResp.Error != nil {
			errMsg = fmt.Sprintf("%s (%s)", apiResp.Error.Message, apiResp.Error.Code)
		}
		return fmt.Errorf("API error %d: %s", resp.StatusCode, errMsg)
	}

	if target == nil {
		return nil
	}
	return json.Unmarshal(apiResp.Data, target)
}

func (tr *TestRunner) status(method, path string, body any, key string) (int, error) {
	resp, err := tr.do(method, path, body, key)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (tr *TestRunner) do(method, path string, body any, key string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, tr.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	return tr.client.Do(req)
}

func (tr *TestRunner) printSection(name string) {
	fmt.Fprintln(tr.out)
	fmt.Fprintf(tr.out, "--- %s ---\n", name)
	fmt.Fprintln(tr.out)
}

func (tr *TestRunner) printChartDetail(c *ChartResponse) {
	for _, p := range c.Planets {
		fmt.Fprintf(tr.out, "    %-10s %8.4f  %s %d  house %d\n", p.Planet, p.Longitude, p.Sign, p.Degree, p.House)
	}
	fmt.Fprintln(tr.out)
}

func (tr *TestRunner) recordSuccess(msg string) {
	tr.successCount++
	fmt.Fprintf(tr.out, "  ✓ %s\n", msg)
}

func (tr *TestRunner) recordError(context, msg string) {
	tr.errorCount++
	errStr := fmt.Sprintf("%s: %s", context, msg)
	tr.errors = append(tr.errors, errStr)
	fmt.Fprintf(tr.out, "  ✗ %s\n", errStr)
}

func (tr *TestRunner) printSummary() {
	fmt.Fprintln(tr.out)
	fmt.Fprintln(tr.out, "==============================================")
	fmt.Fprintln(tr.out, "Summary")
	fmt.Fprintln(tr.out, "==============================================")
	fmt.Fprintf(tr.out, "  Passed: %d\n", tr.successCount)
	fmt.Fprintf(tr.out, "  Failed: %d\n", tr.errorCount)
	fmt.Fprintln(tr.out)

	if tr.errorCount > 0 {
		fmt.Fprintln(tr.out, "Failures:")
		for _, err := range tr.errors {
			fmt.Fprintf(tr.out, "  • %s\n", err)
		}
		fmt.Fprintln(tr.out)
		fmt.Fprintf(tr.out, "Tests completed with %d failure(s)\n", tr.errorCount)
		return
	}
	fmt.Fprintln(tr.out, "All tests passed! ✓")
}

// =============================================================================
// Main
// =============================================================================

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of the API")
	apiKey := flag.String("key", os.Getenv("API_KEY"), "API key for profile writes")
	verbose := flag.Bool("v", false, "Verbose output (show chart details)")
	flag.Parse()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(*baseURL + "/health")
	if err != nil {
		fmt.Printf("Error: Cannot connect to %s\n", *baseURL)
		fmt.Println("Make sure the API server is running.")
		os.Exit(1)
	}
	resp.Body.Close()

	runner := NewTestRunner(*baseURL, *apiKey, *verbose, os.Stdout)
	runner.Run()

	if runner.errorCount > 0 {
		os.Exit(1)
	}
}
