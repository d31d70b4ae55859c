package monitor

import (
	"fmt"
	"net/http"
	"time"
)

// Prober performs one bounded-time health probe against a backend base URL.
// A nil return means healthy; any error (network, timeout, non-2xx) is a
// failed probe.
type Prober interface {
	Probe(baseURL string) error
}

// HTTPProber probes GET {baseURL}/health with a fixed timeout.
type HTTPProber struct {
	httpClient *http.Client
}

// NewHTTPProber creates a prober whose probes time out after timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Probe implements Prober. Non-2xx responses and transport errors are
// reported identically, as an error carrying the observed cause.
func (p *HTTPProber) Probe(baseURL string) error {
	resp, err := p.httpClient.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}
