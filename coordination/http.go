package coordination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/yunusovt983/selfheal/monitoring"
)

var log = logging.Logger("selfheal/coordination")

// HTTPCoordinator posts coordination calls as JSON to a base URL.
type HTTPCoordinator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCoordinator creates a coordinator client. A nil client gets a
// default with a 10 second timeout.
func NewHTTPCoordinator(baseURL string, client *http.Client) *HTTPCoordinator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPCoordinator{baseURL: baseURL, client: client}
}

type healthReport struct {
	Component string                   `json:"component"`
	Status    monitoring.HealthStatus  `json:"status"`
	Metrics   monitoring.HealthMetrics `json:"metrics"`
}

type healingRequest struct {
	Target    string `json:"target"`
	Component string `json:"component"`
	Action    string `json:"action"`
}

func (c *HTTPCoordinator) ReportHealth(ctx context.Context, component string, status monitoring.HealthStatus, metrics monitoring.HealthMetrics) error {
	return c.post(ctx, "/v1/report_health", healthReport{
		Component: component,
		Status:    status,
		Metrics:   metrics,
	})
}

func (c *HTTPCoordinator) RequestHealing(ctx context.Context, target, component, action string) error {
	return c.post(ctx, "/v1/request_healing", healingRequest{
		Target:    target,
		Component: component,
		Action:    action,
	})
}

func (c *HTTPCoordinator) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("coordination call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("coordination call %s: unexpected status %d", path, resp.StatusCode)
	}

	log.Debugf("coordination call %s accepted", path)
	return nil
}
