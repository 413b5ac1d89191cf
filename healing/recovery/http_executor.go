package recovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPExecutor carries out recovery strategies by POSTing control
// requests to a component control plane. The control plane owns the
// actual restart/reconfigure/scale mechanics.
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
}

// NewHTTPExecutor builds an executor against the control plane base URL.
// A nil client gets a 30s-timeout default.
func NewHTTPExecutor(baseURL string, client *http.Client) *HTTPExecutor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPExecutor{baseURL: baseURL, client: client}
}

type controlRequest struct {
	Component string   `json:"component"`
	Strategy  Strategy `json:"strategy"`
}

// ExecuteStrategy implements Executor.
func (e *HTTPExecutor) ExecuteStrategy(ctx context.Context, component string, strategy Strategy) error {
	body, err := json.Marshal(controlRequest{Component: component, Strategy: strategy})
	if err != nil {
		return fmt.Errorf("encode control request: %w", err)
	}

	url := e.baseURL + "/v1/control/" + string(strategy)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build control request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", strategy, component, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: control plane returned %d", strategy, component, resp.StatusCode)
	}
	return nil
}
