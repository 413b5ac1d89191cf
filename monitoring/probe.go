package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// HTTPProbeSource fetches component metrics from per-component HTTP
// endpoints. Each endpoint is expected to return a JSON HealthMetrics
// document; probe latency fills ResponseTime when the endpoint leaves
// it zero.
type HTTPProbeSource struct {
	mu        sync.RWMutex
	endpoints map[string]string
	client    *http.Client
}

// NewHTTPProbeSource builds a probe source over the component->URL map.
// A nil client gets a 10s-timeout default.
func NewHTTPProbeSource(endpoints map[string]string, client *http.Client) *HTTPProbeSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	eps := make(map[string]string, len(endpoints))
	for name, url := range endpoints {
		eps[name] = url
	}
	return &HTTPProbeSource{endpoints: eps, client: client}
}

// SetEndpoint adds or replaces a component's probe URL.
func (p *HTTPProbeSource) SetEndpoint(component, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints[component] = url
}

// RemoveEndpoint drops a component's probe URL.
func (p *HTTPProbeSource) RemoveEndpoint(component string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.endpoints, component)
}

// Components lists the probed component names.
func (p *HTTPProbeSource) Components() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.endpoints))
	for name := range p.endpoints {
		out = append(out, name)
	}
	return out
}

// GetMetrics implements MetricsSource.
func (p *HTTPProbeSource) GetMetrics(ctx context.Context, component string) (HealthMetrics, error) {
	p.mu.RLock()
	url, ok := p.endpoints[component]
	p.mu.RUnlock()
	if !ok {
		return HealthMetrics{}, fmt.Errorf("probe %s: %w", component, ErrUnknownComponent)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthMetrics{}, fmt.Errorf("probe %s: %w", component, err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return HealthMetrics{}, fmt.Errorf("probe %s: %w", component, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthMetrics{}, fmt.Errorf("probe %s: unexpected status %d", component, resp.StatusCode)
	}

	var m HealthMetrics
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return HealthMetrics{}, fmt.Errorf("probe %s: decode: %w", component, err)
	}

	if m.ResponseTime == 0 {
		m.ResponseTime = time.Since(start)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return m, nil
}
