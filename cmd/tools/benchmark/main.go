package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// BenchmarkConfig holds benchmark configuration
type BenchmarkConfig struct {
	BaseURL    string
	Scenarios  []string
	Players    int
	Duration   time.Duration
	Workers    int
	Interval   time.Duration
	APIKey     string
	OutputDir  string
	HTTPClient *http.Client
}

// Scenario is one API call issued repeatedly by the workers
type Scenario struct {
	Name    string
	Method  string
	Path    func(cfg BenchmarkConfig) string
	Payload func(cfg BenchmarkConfig) interface{}
}

// Stats collects latencies for one scenario
type Stats struct {
	Latencies  []float64
	Success    int64
	Errors     int64
	FirstError string
	mu         sync.Mutex
}

// Result represents benchmark results for one scenario
type Result struct {
	Scenario   string
	TotalOps   int64
	SuccessOps int64
	ErrorOps   int64
	Duration   time.Duration
	Throughput float64 // ops/sec
	AvgLatency float64 // ms
	MinLatency float64 // ms
	MaxLatency float64 // ms
	P50Latency float64 // ms
	P95Latency float64 // ms
	P99Latency float64 // ms
	ErrorMsg   string
}

var scenarios = map[string]Scenario{
	"aggregate": {
		Name:   "aggregate",
		Method: http.MethodPost,
		Path:   func(BenchmarkConfig) string { return "/v1/aggregate" },
		Payload: func(BenchmarkConfig) interface{} {
			return map[string]interface{}{
				"dataType":    "sessionData",
				"groupBy":     []string{"stageId"},
				"aggregateBy": map[string][]string{"finalScore": {"avg", "max"}, "duration": {"avg"}},
				"period":      "last7d",
			}
		},
	},
	"advanced": {
		Name:   "advanced",
		Method: http.MethodPost,
		Path:   func(BenchmarkConfig) string { return "/v1/aggregate/advanced" },
		Payload: func(BenchmarkConfig) interface{} {
			return map[string]interface{}{
				"dataTypes":          []string{"sessionData", "bubbleInteractions"},
				"hierarchicalLevels": []string{"stageId"},
				"aggregateBy":        map[string][]string{"finalScore": {"avg"}},
				"cacheKey":           "bench-advanced",
			}
		},
	},
	"timeseries": {
		Name:   "timeseries",
		Method: http.MethodPost,
		Path:   func(BenchmarkConfig) string { return "/v1/timeseries" },
		Payload: func(BenchmarkConfig) interface{} {
			return map[string]interface{}{
				"dataType":    "sessionData",
				"interval":    "hour",
				"aggregateBy": map[string][]string{"finalScore": {"avg", "count"}},
			}
		},
	},
	"trend": {
		Name:   "trend",
		Method: http.MethodGet,
		Path:   func(BenchmarkConfig) string { return "/v1/trends/weekly/score" },
	},
	"anomalies": {
		Name:   "anomalies",
		Method: http.MethodGet,
		Path:   func(BenchmarkConfig) string { return "/v1/anomalies" },
	},
	"compare": {
		Name:   "compare",
		Method: http.MethodGet,
		Path: func(cfg BenchmarkConfig) string {
			return "/v1/compare/past?periods=week,month&playerId=" + url.QueryEscape(randomPlayer(cfg))
		},
	},
	"benchmark": {
		Name:   "benchmark",
		Method: http.MethodGet,
		Path: func(cfg BenchmarkConfig) string {
			return "/v1/compare/benchmark?playerId=" + url.QueryEscape(randomPlayer(cfg))
		},
	},
}

func main() {
	config := BenchmarkConfig{}
	var scenarioList string
	flag.StringVar(&config.BaseURL, "url", "http://127.0.0.1:5570", "Base URL of the insight API")
	flag.StringVar(&scenarioList, "scenarios", "aggregate,timeseries,trend,anomalies,compare", "Comma separated scenarios")
	flag.IntVar(&config.Players, "players", 50, "Number of player IDs to spread comparisons over")
	flag.DurationVar(&config.Duration, "duration", 60*time.Second, "Benchmark duration")
	flag.IntVar(&config.Workers, "workers", 4, "Concurrent workers per scenario")
	flag.DurationVar(&config.Interval, "interval", 10*time.Millisecond, "Interval between requests per worker")
	flag.StringVar(&config.APIKey, "api-key", "", "API key for authentication")
	flag.StringVar(&config.OutputDir, "out", "benchmark_results", "Directory for the result file (empty to skip)")
	flag.Parse()

	for _, name := range strings.Split(scenarioList, ",") {
		name = strings.TrimSpace(name)
		if _, ok := scenarios[name]; !ok {
			fmt.Fprintf(os.Stderr, "Unknown scenario %q\n", name)
			os.Exit(1)
		}
		config.Scenarios = append(config.Scenarios, name)
	}

	config.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	fmt.Printf("=== Insight Benchmark Tool ===\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  URL: %s\n", config.BaseURL)
	fmt.Printf("  Scenarios: %s\n", strings.Join(config.Scenarios, ", "))
	fmt.Printf("  Players: %d\n", config.Players)
	fmt.Printf("  Duration: %s\n", config.Duration)
	fmt.Printf("  Workers per scenario: %d\n", config.Workers)
	fmt.Printf("  Interval: %s\n", config.Interval)
	fmt.Printf("\n")

	if err := checkHealth(config); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}

	stats := runBenchmark(config)

	results := make([]Result, 0, len(config.Scenarios))
	for _, name := range config.Scenarios {
		results = append(results, calculateResult(name, stats[name], config.Duration))
	}

	fmt.Printf("\n=== Benchmark Results ===\n\n")
	for _, r := range results {
		writeResult(os.Stdout, r)
		fmt.Println()
	}

	if config.OutputDir != "" {
		saveResults(config, results)
	}
}

func checkHealth(config BenchmarkConfig) error {
	_, err := makeRequest(config, http.MethodGet, config.BaseURL+"/health", nil)
	return err
}

func runBenchmark(config BenchmarkConfig) map[string]*Stats {
	stats := make(map[string]*Stats, len(config.Scenarios))
	for _, name := range config.Scenarios {
		stats[name] = &Stats{Latencies: make([]float64, 0, 1024)}
	}

	var wg sync.WaitGroup
	stopCh := make(chan struct{})
	startTime := time.Now()

	for _, name := range config.Scenarios {
		for i := 0; i < config.Workers; i++ {
			wg.Add(1)
			go worker(scenarios[name], config, stats[name], stopCh, &wg)
		}
	}

	go progressReporter(config, stats, startTime)

	time.Sleep(config.Duration)
	close(stopCh)
	wg.Wait()

	return stats
}

func worker(s Scenario, config BenchmarkConfig, stats *Stats, stopCh chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			var payload interface{}
			if s.Payload != nil {
				payload = s.Payload(config)
			}

			start := time.Now()
			_, err := makeRequest(config, s.Method, config.BaseURL+s.Path(config), payload)
			latency := time.Since(start).Seconds() * 1000 // ms

			stats.mu.Lock()
			stats.Latencies = append(stats.Latencies, latency)
			if err != nil && stats.FirstError == "" {
				stats.FirstError = err.Error()
			}
			stats.mu.Unlock()

			if err != nil {
				atomic.AddInt64(&stats.Errors, 1)
			} else {
				atomic.AddInt64(&stats.Success, 1)
			}
		}
	}
}

func progressReporter(config BenchmarkConfig, stats map[string]*Stats, startTime time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C
		elapsed := time.Since(startTime)
		if elapsed >= config.Duration {
			return
		}

		parts := make([]string, 0, len(config.Scenarios))
		for _, name := range config.Scenarios {
			ok := atomic.LoadInt64(&stats[name].Success)
			failed := atomic.LoadInt64(&stats[name].Errors)
			parts = append(parts, fmt.Sprintf("%s %.0f/s (%d err)", name, float64(ok)/elapsed.Seconds(), failed))
		}
		fmt.Printf("[%s remaining] %s\n", (config.Duration - elapsed).Round(time.Second), strings.Join(parts, " | "))
	}
}

// envelope is the subset of the response checked by the benchmark
type envelope struct {
	Success bool `json:"success"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func makeRequest(config BenchmarkConfig, method, target string, data interface{}) (*envelope, error) {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, target, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "bench-"+uuid.NewString())
	if config.APIKey != "" {
		req.Header.Set("X-API-Key", config.APIKey)
	}

	resp, err := config.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		if decodeErr == nil && env.Error != nil {
			return &env, fmt.Errorf("HTTP %d %s: %s", resp.StatusCode, env.Error.Code, env.Error.Message)
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return &env, nil
}

func randomPlayer(config BenchmarkConfig) string {
	n := config.Players
	if n <= 0 {
		n = 1
	}
	return fmt.Sprintf("player-%04d", rand.Intn(n))
}

func calculateResult(name string, stats *Stats, duration time.Duration) Result {
	stats.mu.Lock()
	latencies := append([]float64(nil), stats.Latencies...)
	firstError := stats.FirstError
	stats.mu.Unlock()

	success := atomic.LoadInt64(&stats.Success)
	failed := atomic.LoadInt64(&stats.Errors)

	result := Result{
		Scenario:   name,
		TotalOps:   success + failed,
		SuccessOps: success,
		ErrorOps:   failed,
		Duration:   duration,
		ErrorMsg:   firstError,
	}
	if len(latencies) == 0 {
		return result
	}

	sort.Float64s(latencies)
	result.Throughput = float64(success) / duration.Seconds()
	result.MinLatency = latencies[0]
	result.MaxLatency = latencies[len(latencies)-1]
	result.P50Latency = percentile(latencies, 50)
	result.P95Latency = percentile(latencies, 95)
	result.P99Latency = percentile(latencies, 99)

	var sum float64
	for _, lat := range latencies {
		sum += lat
	}
	result.AvgLatency = sum / float64(len(latencies))

	return result
}

// percentile uses nearest rank on a sorted slice
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(math.Ceil(float64(len(sorted))*p/100.0)) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func writeResult(w io.Writer, r Result) {
	ratio := func(n int64) float64 {
		if r.TotalOps == 0 {
			return 0
		}
		return float64(n) / float64(r.TotalOps) * 100
	}

	_, _ = fmt.Fprintf(w, "=== %s ===\n", r.Scenario)
	_, _ = fmt.Fprintf(w, "Total Requests:   %d\n", r.TotalOps)
	_, _ = fmt.Fprintf(w, "Success:          %d (%.2f%%)\n", r.SuccessOps, ratio(r.SuccessOps))
	_, _ = fmt.Fprintf(w, "Errors:           %d (%.2f%%)\n", r.ErrorOps, ratio(r.ErrorOps))
	_, _ = fmt.Fprintf(w, "Duration:         %s\n", r.Duration)
	_, _ = fmt.Fprintf(w, "Throughput:       %.2f req/sec\n", r.Throughput)
	if r.ErrorOps > 0 && r.ErrorMsg != "" {
		_, _ = fmt.Fprintf(w, "First Error:      %s\n", r.ErrorMsg)
	}
	_, _ = fmt.Fprintf(w, "\nLatency (ms):\n")
	_, _ = fmt.Fprintf(w, "  Min:  %.2f\n", r.MinLatency)
	_, _ = fmt.Fprintf(w, "  Avg:  %.2f\n", r.AvgLatency)
	_, _ = fmt.Fprintf(w, "  P50:  %.2f\n", r.P50Latency)
	_, _ = fmt.Fprintf(w, "  P95:  %.2f\n", r.P95Latency)
	_, _ = fmt.Fprintf(w, "  P99:  %.2f\n", r.P99Latency)
	_, _ = fmt.Fprintf(w, "  Max:  %.2f\n", r.MaxLatency)
}

func saveResults(config BenchmarkConfig, results []Result) {
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		fmt.Printf("Failed to create result directory: %v\n", err)
		return
	}
	filename := filepath.Join(config.OutputDir,
		fmt.Sprintf("insight_benchmark_%s.txt", time.Now().Format("20060102_150405")))

	f, err := os.Create(filename)
	if err != nil {
		fmt.Printf("Failed to create result file: %v\n", err)
		return
	}
	defer func() { _ = f.Close() }()

	_, _ = fmt.Fprintf(f, "=== Insight API Benchmark Results ===\n")
	_, _ = fmt.Fprintf(f, "Date: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(f, "Configuration:\n")
	_, _ = fmt.Fprintf(f, "  URL: %s\n", config.BaseURL)
	_, _ = fmt.Fprintf(f, "  Scenarios: %s\n", strings.Join(config.Scenarios, ", "))
	_, _ = fmt.Fprintf(f, "  Duration: %s\n", config.Duration)
	_, _ = fmt.Fprintf(f, "  Workers per scenario: %d\n\n", config.Workers)

	for _, r := range results {
		writeResult(f, r)
		_, _ = fmt.Fprintf(f, "\n")
	}

	fmt.Printf("Results saved to: %s\n", filename)
}
