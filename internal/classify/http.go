package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgallion1/docrank/internal/features"
	"github.com/dgallion1/docrank/internal/retry"
	"github.com/dgallion1/docrank/internal/stats"
)

// HTTPClassifier calls a remote model that accepts {"features": rows} and
// answers {"labels": [...]}.
type HTTPClassifier struct {
	url        string
	httpClient *http.Client
	retry      retry.Policy
	stats      *stats.LatencyStats
	log        *slog.Logger
}

func NewHTTPClassifier(url string, timeout time.Duration, latency *stats.LatencyStats, log *slog.Logger) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClassifier{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry: retry.Default,
		stats: latency,
		log:   log,
	}
}

type predictRequest struct {
	Features [][features.Columns]float64 `json:"features"`
}

type predictResponse struct {
	Labels []string `json:"labels"`
	Error  string   `json:"error"`
}

// Predict posts the feature matrix, retrying transient failures.
func (c *HTTPClassifier) Predict(ctx context.Context, rows [][features.Columns]float64) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(predictRequest{Features: rows})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var labels []string
	err = c.retry.Do(ctx, c.log, "classify", func(ctx context.Context) error {
		start := time.Now()
		var callErr error
		labels, callErr = c.post(ctx, body)
		if c.stats != nil {
			c.stats.Observe(time.Since(start), callErr)
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return ValidateLabels(len(rows), labels)
}

func (c *HTTPClassifier) post(ctx context.Context, body []byte) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("classifier api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &retry.RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp predictResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != "" {
		return nil, fmt.Errorf("classifier error: %s", apiResp.Error)
	}
	return apiResp.Labels, nil
}

// Close releases resources.
func (c *HTTPClassifier) Close() {
	c.httpClient.CloseIdleConnections()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
