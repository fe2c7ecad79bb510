// Package health periodically probes the core's external dependencies —
// the Solana RPC endpoint and the monitor's own diagnostics server — and
// keeps the latest results for GetStatuses. The monitor's /stats response
// does not include these results.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Status is one component's most recent health probe result.
type Status struct {
	Name    string
	Healthy bool
	Latency time.Duration
	Error   string
}

// Checker periodically probes the RPC endpoint and the monitor server.
type Checker struct {
	mu         sync.RWMutex
	statuses   []Status
	rpcURL     string
	monitorURL string
}

// NewChecker creates a checker probing rpcURL and the monitor server at
// monitorURL (its base address, "/health" is appended).
func NewChecker(rpcURL, monitorURL string) *Checker {
	return &Checker{
		rpcURL:     rpcURL,
		monitorURL: monitorURL,
	}
}

// Start begins periodic health checks, probing immediately and then
// every 10 seconds until ctx is cancelled.
func (c *Checker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.check()
			}
		}
	}()

	c.check()
}

func (c *Checker) check() {
	statuses := []Status{c.checkRPC(), c.checkMonitor()}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

func (c *Checker) checkRPC() Status {
	start := time.Now()

	client := &http.Client{Timeout: 5 * time.Second}
	req, _ := http.NewRequest("POST", c.rpcURL, nil)
	req.Header.Set("Content-Type", "application/json")

	_, err := client.Do(req)
	latency := time.Since(start)

	status := Status{Name: "RPC", Latency: latency, Healthy: err == nil}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func (c *Checker) checkMonitor() Status {
	start := time.Now()

	client := &http.Client{Timeout: 5 * time.Second}
	_, err := client.Get(c.monitorURL + "/health")
	latency := time.Since(start)

	status := Status{Name: "monitor", Latency: latency, Healthy: err == nil}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// GetStatuses returns the most recent probe results.
func (c *Checker) GetStatuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statuses
}
