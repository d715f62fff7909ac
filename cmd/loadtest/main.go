// Command loadtest drives a running searcher with a mix of free-text search
// and similar-book requests and reports throughput, latency percentiles and
// status codes per request kind.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s] [-similar 0.2]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var queries = []string{
	"space opera with robots",
	"murder mystery in a small village",
	"history of the roman empire",
	"introduction to machine learning",
	"coming of age story",
	"dragons and magic",
	"world war two memoir",
	"vegetarian cooking",
	"quantum physics for beginners",
	"detective novel set in london",
	"climate change and the oceans",
	"startup founders and venture capital",
	"poetry about grief",
	"children's picture book about animals",
	"time travel paradox",
}

type Config struct {
	BaseURL      string
	Concurrency  int
	Duration     time.Duration
	SimilarRatio float64
	Limit        int
}

// kindStats accumulates the outcome of one request kind.
type kindStats struct {
	total       atomic.Int64
	success     atomic.Int64
	errors      atomic.Int64
	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func newKindStats() *kindStats {
	return &kindStats{
		latencies:   make([]time.Duration, 0, 50000),
		statusCodes: make(map[int]int64),
	}
}

func (s *kindStats) record(d time.Duration, status int, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	similar := flag.Float64("similar", 0.2, "share of requests that ask for similar books")
	limit := flag.Int("limit", 10, "results per request")
	flag.Parse()

	cfg := Config{
		BaseURL:      *baseURL,
		Concurrency:  *concurrency,
		Duration:     *duration,
		SimilarRatio: *similar,
		Limit:        *limit,
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	isbns, err := sampleISBNs(client, cfg.BaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot sample books for similar requests: %v\n", err)
		cfg.SimilarRatio = 0
	}

	fmt.Println("=== Book Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(queries))
	fmt.Printf("Similar:     %.0f%% over %d books\n", cfg.SimilarRatio*100, len(isbns))
	fmt.Println()

	search, similarStats := run(client, cfg, isbns)
	report("search", search, cfg.Duration)
	report("similar", similarStats, cfg.Duration)

	if search.total.Load()+similarStats.total.Load() == 0 {
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

// sampleISBNs lists up to 100 catalogue ISBNs to ask for similar books.
func sampleISBNs(client *http.Client, baseURL string) ([]string, error) {
	resp, err := client.Get(baseURL + "/api/v1/books?limit=100")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing books: status %d", resp.StatusCode)
	}
	var body struct {
		Books []struct {
			ISBN string `json:"isbn"`
		} `json:"books"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding book list: %w", err)
	}
	isbns := make([]string, 0, len(body.Books))
	for _, b := range body.Books {
		isbns = append(isbns, b.ISBN)
	}
	if len(isbns) == 0 {
		return nil, errors.New("catalogue is empty")
	}
	return isbns, nil
}

func run(client *http.Client, cfg Config, isbns []string) (search, similar *kindStats) {
	search, similar = newKindStats(), newKindStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(w), uint64(time.Now().UnixNano())))
			for i := w; ctx.Err() == nil; i++ {
				target, stats := searchURL(cfg, queries[i%len(queries)]), search
				if len(isbns) > 0 && rng.Float64() < cfg.SimilarRatio {
					target, stats = similarURL(cfg, isbns[rng.IntN(len(isbns))]), similar
				}
				d, status, err := do(ctx, client, target)
				if ctx.Err() != nil {
					return nil
				}
				stats.record(d, status, err)
			}
			return nil
		})
	}

	fmt.Print("Running")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	_ = g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return search, similar
}

func searchURL(cfg Config, q string) string {
	return fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", cfg.BaseURL, url.QueryEscape(q), cfg.Limit)
}

func similarURL(cfg Config, isbn string) string {
	return fmt.Sprintf("%s/api/v1/books/%s/similar?limit=%d", cfg.BaseURL, url.PathEscape(isbn), cfg.Limit)
}

func do(ctx context.Context, client *http.Client, target string) (time.Duration, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, 0, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return time.Since(start), 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return time.Since(start), resp.StatusCode, nil
}

func report(kind string, s *kindStats, duration time.Duration) {
	total := s.total.Load()
	if total == 0 {
		return
	}
	errs := s.errors.Load()

	fmt.Printf("=== %s ===\n", kind)
	fmt.Printf("Requests:     %d\n", total)
	fmt.Printf("Successful:   %d\n", s.success.Load())
	fmt.Printf("Errors:       %d (%.2f%%)\n", errs, float64(errs)/float64(total)*100)
	fmt.Printf("Requests/sec: %.2f\n", float64(total)/duration.Seconds())

	s.mu.Lock()
	latencies := append([]time.Duration(nil), s.latencies...)
	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(s.statusCodes))
	for code, n := range s.statusCodes {
		counts[code] = n
	}
	s.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		var sq float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sq += diff * diff
		}
		fmt.Printf("Latency:      min %s  avg %s  p50 %s  p95 %s  p99 %s  max %s  stddev %s\n",
			latencies[0], avg,
			percentile(latencies, 50), percentile(latencies, 95), percentile(latencies, 99),
			latencies[len(latencies)-1],
			time.Duration(math.Sqrt(sq/float64(len(latencies)))),
		)
	}

	sort.Ints(codes)
	fmt.Print("Status codes:")
	for _, code := range codes {
		fmt.Printf("  %d=%d", code, counts[code])
	}
	fmt.Println()
	fmt.Println()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
