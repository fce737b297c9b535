// Loadtest sends concurrent requests through the filter proxy and reports
// which delegate instances served them, whether request IDs stayed unique,
// and latency percentiles.
//
// Usage:
//
//	go run ./scripts/loadtest -url http://localhost:8080/api/orders -concurrency 16 -requests 1000
//	go run ./scripts/loadtest -url http://localhost:8080/ -session -out summary.json
//
// With -session every worker keeps its own cookie jar, so each worker stays
// on one session-scoped delegate.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	requestIDHeader = "X-Request-ID"
	stampHeader     = "X-Filtered-By"
)

type delegateStats struct {
	count     int32
	latencies []time.Duration
}

type delegateSummary struct {
	Total int32   `json:"total"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
}

type report struct {
	Target        string                     `json:"target"`
	Requests      int                        `json:"requests"`
	Concurrency   int                        `json:"concurrency"`
	Success       int32                      `json:"success"`
	Failure       int32                      `json:"failure"`
	DuplicateIDs  int                        `json:"duplicate_request_ids"`
	DurationMS    int64                      `json:"duration_ms"`
	ThroughputRPS float64                    `json:"throughput_rps"`
	StatusCodes   map[int]int32              `json:"status_codes"`
	Delegates     map[string]delegateSummary `json:"delegates"`
}

func main() {
	var (
		url         = flag.String("url", "http://localhost:8080/", "Target URL")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
		requests    = flag.Int("requests", 100, "Total number of requests to send")
		timeoutSec  = flag.Int("timeout", 10, "Per-request timeout in seconds")
		session     = flag.Bool("session", false, "Keep one session cookie per worker")
	)
	outJSON := flag.String("out", "", "Write JSON summary to this file (optional)")
	verbose := flag.Bool("v", false, "Verbose per-request logging to stdout")
	flag.Parse()

	jobs := make(chan int)
	var wg sync.WaitGroup

	var success, failure atomic.Int32

	var mu sync.Mutex
	delegates := make(map[string]*delegateStats)
	statusCodes := make(map[int]int32)
	seenIDs := make(map[string]int)
	var allLatencies []time.Duration

	testStart := time.Now()

	for i := 0; i < *concurrency; i++ {
		client := &http.Client{Timeout: time.Duration(*timeoutSec) * time.Second}
		if *session {
			jar, err := cookiejar.New(nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to create cookie jar: %v\n", err)
				os.Exit(1)
			}
			client.Jar = jar
		}

		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range jobs {
				start := time.Now()
				resp, err := client.Get(*url)
				dur := time.Since(start)

				if err != nil {
					failure.Add(1)
					if *verbose {
						fmt.Printf("[%d] idx=%d error=%v\n", workerID, idx, err)
					}
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
					success.Add(1)
				} else {
					failure.Add(1)
				}

				delegate := resp.Header.Get(stampHeader)
				if delegate == "" {
					delegate = "(none)"
				}

				mu.Lock()
				statusCodes[resp.StatusCode]++
				allLatencies = append(allLatencies, dur)
				if id := resp.Header.Get(requestIDHeader); id != "" {
					seenIDs[id]++
				}
				ds, ok := delegates[delegate]
				if !ok {
					ds = &delegateStats{}
					delegates[delegate] = ds
				}
				ds.count++
				ds.latencies = append(ds.latencies, dur)
				mu.Unlock()

				if *verbose {
					fmt.Printf("[%d] idx=%d delegate=%s status=%d dur=%v\n", workerID, idx, delegate, resp.StatusCode, dur)
				}
			}
		}(i)
	}

	go func() {
		for i := 0; i < *requests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	wg.Wait()
	totalDuration := time.Since(testStart)

	duplicates := 0
	for _, n := range seenIDs {
		if n > 1 {
			duplicates += n - 1
		}
	}

	rep := report{
		Target:        *url,
		Requests:      *requests,
		Concurrency:   *concurrency,
		Success:       success.Load(),
		Failure:       failure.Load(),
		DuplicateIDs:  duplicates,
		DurationMS:    totalDuration.Milliseconds(),
		ThroughputRPS: float64(*requests) / totalDuration.Seconds(),
		StatusCodes:   statusCodes,
		Delegates:     make(map[string]delegateSummary, len(delegates)),
	}
	for name, ds := range delegates {
		sorted := sortedCopy(ds.latencies)
		rep.Delegates[name] = delegateSummary{
			Total: ds.count,
			P50:   millis(percentile(sorted, 0.50)),
			P95:   millis(percentile(sorted, 0.95)),
			P99:   millis(percentile(sorted, 0.99)),
		}
	}

	printReport(rep, sortedCopy(allLatencies))

	if *outJSON != "" {
		if err := writeJSON(*outJSON, rep); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write json summary: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote JSON summary to %s\n", *outJSON)
	}

	if rep.Failure > 0 || rep.DuplicateIDs > 0 {
		os.Exit(2)
	}
}

func printReport(rep report, latencies []time.Duration) {
	fmt.Println("--- Filter Proxy Load Test ---")
	fmt.Printf("Target: %s\n", rep.Target)
	fmt.Printf("Requests: %d  Concurrency: %d\n", rep.Requests, rep.Concurrency)
	fmt.Printf("Success: %d  Failure: %d  Duplicate request IDs: %d\n", rep.Success, rep.Failure, rep.DuplicateIDs)
	fmt.Printf("Duration: %dms  Throughput: %.2f req/s\n", rep.DurationMS, rep.ThroughputRPS)

	fmt.Println("\nStatus codes:")
	codes := make([]int, 0, len(rep.StatusCodes))
	for code := range rep.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, rep.StatusCodes[code])
	}

	fmt.Println("\nDelegates:")
	names := make([]string, 0, len(rep.Delegates))
	for name := range rep.Delegates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d := rep.Delegates[name]
		fmt.Printf("  %s -> total=%d p50=%.2fms p95=%.2fms p99=%.2fms\n", name, d.Total, d.P50, d.P95, d.P99)
	}

	if len(latencies) > 0 {
		fmt.Println("\nOverall latencies:")
		fmt.Printf("  samples=%d min=%v max=%v p50=%v p95=%v p99=%v\n",
			len(latencies), latencies[0], latencies[len(latencies)-1],
			percentile(latencies, 0.50), percentile(latencies, 0.95), percentile(latencies, 0.99))
	}
}

func writeJSON(path string, rep report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func sortedCopy(durations []time.Duration) []time.Duration {
	tmp := make([]time.Duration, len(durations))
	copy(tmp, durations)
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })
	return tmp
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
