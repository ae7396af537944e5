package runner

import (
	"context"
	"fmt"
	nethttp "net/http"
	"time"
)

// WaitConfig describes a readiness probe run before a project
type WaitConfig struct {
	URL      string
	Status   int
	Timeout  time.Duration
	Interval time.Duration
}

// WaitForService polls a URL until it returns the expected status code,
// the timeout passes or ctx is done
func WaitForService(ctx context.Context, cfg WaitConfig) error {
	if cfg.URL == "" {
		return nil
	}
	if cfg.Status == 0 {
		cfg.Status = nethttp.StatusOK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client := &nethttp.Client{
		Timeout: 5 * time.Second, // per attempt
	}

	var lastErr error
	var lastStatus int
	for {
		req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, cfg.URL, nil)
		if err != nil {
			return fmt.Errorf("invalid wait URL: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			lastStatus = resp.StatusCode
			resp.Body.Close()
			if resp.StatusCode == cfg.Status {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("service %s not ready after %v: %v", cfg.URL, cfg.Timeout, lastErr)
			}
			return fmt.Errorf("service %s not ready after %v: got status %d, expected %d",
				cfg.URL, cfg.Timeout, lastStatus, cfg.Status)
		case <-time.After(cfg.Interval):
		}
	}
}
