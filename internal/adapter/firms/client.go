// Package firms reads hotspot detections from the NASA FIRMS area CSV API.
package firms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/config"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	"github.com/sony/gobreaker"
)

// Client implements pipeline.Source against the FIRMS area API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	mapKey     string
	dataset    string
	area       string
	days       int
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a FIRMS client. Consecutive failures beyond
// cfg.FIRMSBreakerFailures open the breaker for cfg.FIRMSBreakerCooldown, during
// which fetches fail fast.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.FIRMSTimeout},
		baseURL:    strings.TrimRight(cfg.FIRMSBaseURL, "/"),
		mapKey:     cfg.FIRMSMapKey,
		dataset:    cfg.FIRMSDataset,
		area:       cfg.FIRMSArea,
		days:       cfg.FIRMSDays,
		logger:     logger,
	}
	failures := cfg.FIRMSBreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "firms",
		Timeout: cfg.FIRMSBreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Fetch downloads the configured area and returns up to limit records, newest
// first.
func (c *Client) Fetch(ctx context.Context, limit int) ([]domain.RawFireRecord, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.download(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("firms fetch skipped: %w", err)
		}
		return nil, err
	}

	records := out.([]domain.RawFireRecord)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (c *Client) download(ctx context.Context) ([]domain.RawFireRecord, error) {
	u := fmt.Sprintf("%s/%s/%s/%s/%s",
		c.baseURL,
		url.PathEscape(c.mapKey),
		url.PathEscape(c.dataset),
		url.PathEscape(c.area),
		strconv.Itoa(c.days),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("firms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("firms API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	records, err := ParseCSV(resp.Body, c.logger)
	if err != nil {
		return nil, fmt.Errorf("parse firms csv: %w", err)
	}
	c.logger.Debug("firms download complete",
		"dataset", c.dataset,
		"area", c.area,
		"records", len(records),
		"duration", time.Since(start),
	)
	return records, nil
}
