package pool

import (
	"errors"
	"log/slog"
)

// ErrNoHealthyEndpoints is returned when no endpoint can take a session.
var ErrNoHealthyEndpoints = errors.New("no healthy endpoints in the pool")

// LoadBalancer places new sessions on the endpoint with the fewest
// sessions.
type LoadBalancer struct {
	pool *EndpointPool
}

// NewLoadBalancer creates a new load balancer.
func NewLoadBalancer(pool *EndpointPool) *LoadBalancer {
	return &LoadBalancer{
		pool: pool,
	}
}

// SelectEndpoint returns the healthy endpoint with the least sessions. Ties
// go to the endpoint listed first.
func (lb *LoadBalancer) SelectEndpoint() (*Endpoint, error) {
	endpoints := lb.pool.GetEndpoints()
	if len(endpoints) == 0 {
		return nil, ErrNoHealthyEndpoints
	}

	var selected *Endpoint
	var minSessions int64 = -1
	for _, e := range endpoints {
		if !e.IsHealthy() {
			slog.Warn("skipping unhealthy endpoint", "url", e.URL())
			continue
		}
		sessionCount := e.GetSessionCount()
		if minSessions == -1 || sessionCount < minSessions {
			minSessions = sessionCount
			selected = e
		}
	}

	if selected == nil {
		return nil, ErrNoHealthyEndpoints
	}

	slog.Debug("selected endpoint",
		"url", selected.URL(),
		"current_sessions", selected.GetSessionCount())
	return selected, nil
}

// Find returns the endpoint with the given URL.
func (lb *LoadBalancer) Find(rawURL string) (*Endpoint, bool) {
	return lb.pool.Find(rawURL)
}

// GetMetrics returns the pool metrics.
func (lb *LoadBalancer) GetMetrics() PoolMetrics {
	return lb.pool.GetMetrics()
}
