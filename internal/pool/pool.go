// Package pool tracks the remote ends sessions can be placed on and picks
// the least loaded healthy one.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// EndpointPool holds the configured remote ends.
type EndpointPool struct {
	endpoints []*Endpoint
	client    *http.Client
	mu        sync.RWMutex
}

// PoolMetrics contains metrics about the entire pool.
type PoolMetrics struct {
	TotalEndpoints int               `json:"total_endpoints"`
	TotalSessions  int64             `json:"total_sessions"`
	Endpoints      []EndpointMetrics `json:"endpoints"`
}

// NewEndpointPool creates a pool over urls. Duplicates are ignored.
func NewEndpointPool(urls []string, client *http.Client) (*EndpointPool, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one remote endpoint is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	p := &EndpointPool{client: client}
	seen := make(map[string]bool)
	for _, u := range urls {
		e := NewEndpoint(u)
		if e.URL() == "" || seen[e.URL()] {
			continue
		}
		seen[e.URL()] = true
		p.endpoints = append(p.endpoints, e)
	}
	if len(p.endpoints) == 0 {
		return nil, fmt.Errorf("no usable remote endpoint in %v", urls)
	}

	slog.Info("endpoint pool initialized", "size", len(p.endpoints))
	return p, nil
}

// GetEndpoints returns a copy of all endpoints.
func (p *EndpointPool) GetEndpoints() []*Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	endpoints := make([]*Endpoint, len(p.endpoints))
	copy(endpoints, p.endpoints)
	return endpoints
}

// Find returns the endpoint with the given URL.
func (p *EndpointPool) Find(rawURL string) (*Endpoint, bool) {
	want := NewEndpoint(rawURL).URL()
	for _, e := range p.GetEndpoints() {
		if e.URL() == want {
			return e, true
		}
	}
	return nil, false
}

// GetEndpointCount returns the number of endpoints in the pool.
func (p *EndpointPool) GetEndpointCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.endpoints)
}

// CheckHealth probes every endpoint concurrently.
func (p *EndpointPool) CheckHealth(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range p.GetEndpoints() {
		wg.Add(1)
		go func(e *Endpoint) {
			defer wg.Done()
			wasHealthy := e.IsHealthy()
			err := e.Probe(ctx, p.client)
			switch {
			case err != nil && wasHealthy:
				slog.Warn("remote endpoint unhealthy", "url", e.URL(), "error", err)
			case err == nil && !wasHealthy:
				slog.Info("remote endpoint recovered", "url", e.URL())
			}
		}(e)
	}
	wg.Wait()
}

// StartHealthChecks probes the pool every interval until ctx is done.
func (p *EndpointPool) StartHealthChecks(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("health checker started", "check_interval", interval)
		for {
			select {
			case <-ctx.Done():
				slog.Info("health checker stopping")
				return
			case <-ticker.C:
				p.CheckHealth(ctx)
			}
		}
	}()
}

// GetMetrics returns metrics for the entire pool.
func (p *EndpointPool) GetMetrics() PoolMetrics {
	endpoints := p.GetEndpoints()

	var totalSessions int64
	endpointMetrics := make([]EndpointMetrics, len(endpoints))
	for i, e := range endpoints {
		endpointMetrics[i] = e.GetMetrics()
		totalSessions += endpointMetrics[i].SessionCount
	}

	return PoolMetrics{
		TotalEndpoints: len(endpoints),
		TotalSessions:  totalSessions,
		Endpoints:      endpointMetrics,
	}
}
