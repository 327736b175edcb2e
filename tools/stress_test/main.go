// Command stress_test drives a serve instance's framed RPC port with
// request envelopes from concurrent workers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/VanDung-dev/HieraChain-Simulator/bridge"
	"github.com/VanDung-dev/HieraChain-Simulator/client"
)

// StressTestConfig holds configuration for the stress test.
type StressTestConfig struct {
	Address      string
	Concurrency  int
	RequestCount int
	Duration     time.Duration
	AuthToken    string
	Method       string
	Args         string
	ReportFile   string
}

// StressTestResult holds the results of a stress test.
type StressTestResult struct {
	TotalRequests  int64
	SuccessfulReqs int64
	FailedReqs     int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
}

func main() {
	config := parseFlags()

	request, err := bridge.EncodeRequest(config.Method, json.RawMessage(config.Args))
	if err != nil {
		log.Fatalf("Invalid request: %v", err)
	}

	fmt.Println("=== HieraChain Simulator Stress Test ===")
	fmt.Printf("Target: %s\n", config.Address)
	fmt.Printf("Method: %s\n", config.Method)
	fmt.Printf("Concurrency: %d workers\n", config.Concurrency)
	if config.RequestCount > 0 {
		fmt.Printf("Requests: %d\n", config.RequestCount)
	} else {
		fmt.Printf("Duration: %v\n", config.Duration)
	}
	fmt.Printf("Auth: %v\n", config.AuthToken != "")
	fmt.Println()

	result := runStressTest(config, request)

	printResults(result)

	if config.ReportFile != "" {
		saveReport(config, result)
	}
}

func parseFlags() StressTestConfig {
	config := StressTestConfig{}

	flag.StringVar(&config.Address, "addr", "127.0.0.1:30001", "Framed RPC address")
	flag.IntVar(&config.Concurrency, "c", 10, "Number of concurrent workers")
	flag.IntVar(&config.RequestCount, "n", 0, "Total number of requests (0 = unlimited, use -d instead)")
	flag.DurationVar(&config.Duration, "d", 30*time.Second, "Duration of test")
	flag.StringVar(&config.AuthToken, "token", "", "Authentication token (empty = no handshake)")
	flag.StringVar(&config.Method, "method", bridge.MethodGetChainIdentifier, "Method to call")
	flag.StringVar(&config.Args, "args", "", "Method args as JSON")
	flag.StringVar(&config.ReportFile, "o", "", "Output report file (JSON)")

	flag.Parse()

	return config
}

func runStressTest(config StressTestConfig, request []byte) StressTestResult {
	var (
		totalReqs    int64
		budget       int64 = int64(config.RequestCount)
		successReqs  int64
		failedReqs   int64
		totalLatency int64
		minLatency   int64 = 1<<63 - 1
		maxLatency   int64
		wg           sync.WaitGroup
		stopChan     = make(chan struct{})
	)

	startTime := time.Now()

	// Start workers
	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runWorker(workerID, config, request, stopChan, &budget, &totalReqs, &successReqs, &failedReqs, &totalLatency, &minLatency, &maxLatency)
		}(i)
	}

	if config.RequestCount > 0 {
		wg.Wait()
	} else {
		time.Sleep(config.Duration)
		close(stopChan)
		wg.Wait()
	}

	duration := time.Since(startTime)
	total := atomic.LoadInt64(&totalReqs)
	success := atomic.LoadInt64(&successReqs)
	failed := atomic.LoadInt64(&failedReqs)
	latencySum := atomic.LoadInt64(&totalLatency)
	minLat := atomic.LoadInt64(&minLatency)
	maxLat := atomic.LoadInt64(&maxLatency)

	var avgLatency time.Duration
	if success > 0 {
		avgLatency = time.Duration(latencySum / success)
	} else {
		minLat = 0
	}

	return StressTestResult{
		TotalRequests:  total,
		SuccessfulReqs: success,
		FailedReqs:     failed,
		TotalDuration:  duration,
		AvgLatency:     avgLatency,
		MinLatency:     time.Duration(minLat),
		MaxLatency:     time.Duration(maxLat),
		RequestsPerSec: float64(total) / duration.Seconds(),
	}
}

func runWorker(id int, config StressTestConfig, request []byte, stop chan struct{}, budget, totalReqs, successReqs, failedReqs, totalLatency, minLatency, maxLatency *int64) {
	var conn *client.Frame
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}
		if config.RequestCount > 0 && atomic.AddInt64(budget, -1) < 0 {
			return
		}

		if conn == nil {
			var err error
			conn, err = dial(config)
			if err != nil {
				atomic.AddInt64(totalReqs, 1)
				atomic.AddInt64(failedReqs, 1)
				// Small sleep on error to avoid hammering
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		latency, err := sendRequest(conn, request)
		atomic.AddInt64(totalReqs, 1)

		if err != nil {
			atomic.AddInt64(failedReqs, 1)
			if !isRemoteFailure(err) {
				_ = conn.Close()
				conn = nil
				time.Sleep(10 * time.Millisecond)
			}
			continue
		}

		atomic.AddInt64(successReqs, 1)
		atomic.AddInt64(totalLatency, int64(latency))

		// Update min/max latency
		lat := int64(latency)
		for {
			old := atomic.LoadInt64(minLatency)
			if lat >= old || atomic.CompareAndSwapInt64(minLatency, old, lat) {
				break
			}
		}
		for {
			old := atomic.LoadInt64(maxLatency)
			if lat <= old || atomic.CompareAndSwapInt64(maxLatency, old, lat) {
				break
			}
		}
	}
}

func dial(config StressTestConfig) (*client.Frame, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.DialFrame(ctx, config.Address, config.AuthToken)
}

type remoteFailure struct{ message string }

func (e *remoteFailure) Error() string { return e.message }

func isRemoteFailure(err error) bool {
	_, ok := err.(*remoteFailure)
	return ok
}

// sendRequest times one round trip. A well-formed failure envelope counts
// as a failed request but keeps the connection.
func sendRequest(conn *client.Frame, request []byte) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	raw, err := conn.RoundTrip(ctx, request)
	latency := time.Since(start)
	if err != nil {
		return 0, err
	}

	resp, err := bridge.DecodeResponse(raw)
	if err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, &remoteFailure{message: *resp.ErrorMessage}
	}
	return latency, nil
}

func printResults(result StressTestResult) {
	fmt.Println("=== Results ===")
	if result.TotalRequests == 0 {
		fmt.Println("No requests sent")
		return
	}
	fmt.Printf("Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Total Requests:  %d\n", result.TotalRequests)
	fmt.Printf("Successful:      %d (%.2f%%)\n", result.SuccessfulReqs, float64(result.SuccessfulReqs)/float64(result.TotalRequests)*100)
	fmt.Printf("Failed:          %d (%.2f%%)\n", result.FailedReqs, float64(result.FailedReqs)/float64(result.TotalRequests)*100)
	fmt.Printf("Requests/sec:    %.2f\n", result.RequestsPerSec)
	fmt.Printf("Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Printf("Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Printf("Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
}

func saveReport(config StressTestConfig, result StressTestResult) {
	report := map[string]interface{}{
		"config": map[string]interface{}{
			"address":     config.Address,
			"method":      config.Method,
			"concurrency": config.Concurrency,
			"requests":    config.RequestCount,
			"duration":    config.Duration.String(),
		},
		"results": map[string]interface{}{
			"total_requests":   result.TotalRequests,
			"successful":       result.SuccessfulReqs,
			"failed":           result.FailedReqs,
			"requests_per_sec": result.RequestsPerSec,
			"avg_latency_ms":   float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":   float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":   float64(result.MaxLatency.Microseconds()) / 1000,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	data, _ := json.MarshalIndent(report, "", "  ")
	if err := os.WriteFile(config.ReportFile, data, 0644); err != nil {
		log.Printf("Failed to write report: %v", err)
	} else {
		fmt.Printf("Report saved to: %s\n", config.ReportFile)
	}
}
