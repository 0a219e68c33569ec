package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/chainguard/internal/circuitbreaker"
	"github.com/mbd888/chainguard/internal/retry"
	"github.com/mbd888/chainguard/internal/syncutil"
)

var (
	fetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainguard",
		Subsystem: "oracle",
		Name:      "fetches_total",
		Help:      "Risk oracle fetches by result (hit, fetched, fallback, error).",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(fetchesTotal)
}

// ErrOracleUnavailable wraps remote failures when fallback is disabled.
var ErrOracleUnavailable = errors.New("oracle: risk endpoint unavailable")

const (
	fetchAttempts   = 2
	fetchRetryDelay = 200 * time.Millisecond
)

// Client fetches risk metrics with a TTL cache in front and a circuit
// breaker around the remote endpoint.
type Client struct {
	cfg     Config
	cache   Cache
	http    *http.Client
	breaker *circuitbreaker.Breaker
	fetchMu *syncutil.ContextShardedMutex
}

// Option configures the client.
type Option func(*Client)

// WithCache injects a cache (tests use this to avoid the process default).
func WithCache(c Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithHTTPClient injects an HTTP client (tests point it at a stub server).
func WithHTTPClient(h *http.Client) Option {
	return func(cl *Client) { cl.http = h }
}

// NewClient builds a risk oracle client. Zero TTL/timeout fall back to the
// package defaults; without WithCache the process-wide DefaultCache is used.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	c := &Client{
		cfg:     cfg,
		cache:   DefaultCache,
		breaker: circuitbreaker.New(5, 30*time.Second),
		fetchMu: syncutil.NewContextShardedMutex(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	return c
}

// GetRiskMetrics returns risk metrics for one asset.
//
// Disabled oracle: an all-nil result, no I/O. Cache hit younger than the TTL:
// the cached value verbatim, identical timestamp. Cache miss: remote fetch;
// success is cached at the current time, failure degrades to an all-nil
// result when FallbackOnError is set and propagates otherwise.
func (c *Client) GetRiskMetrics(ctx context.Context, asset string) (*RiskMetrics, error) {
	if !c.cfg.Enabled {
		return Unknown(asset), nil
	}

	if m, ok := c.cache.Get(asset); ok && time.Since(m.Timestamp) < c.cfg.CacheTTL {
		fetchesTotal.WithLabelValues("hit").Inc()
		return m, nil
	}

	m, err := c.fetchLocked(ctx, asset)
	if err != nil {
		if c.cfg.FallbackOnError {
			fetchesTotal.WithLabelValues("fallback").Inc()
			return Unknown(asset), nil
		}
		fetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	return m, nil
}

// GetBatchRiskMetrics fetches metrics for every asset concurrently: all
// fetches are started before any is awaited, so wall-clock cost on an
// all-miss batch approximates a single fetch. The result always has one
// entry per asset; per-asset errors are joined into the returned error.
func (c *Client) GetBatchRiskMetrics(ctx context.Context, assets []string) (map[string]*RiskMetrics, error) {
	results := make([]*RiskMetrics, len(assets))
	errs := make([]error, len(assets))

	var wg sync.WaitGroup
	for i, asset := range assets {
		wg.Add(1)
		go func(i int, asset string) {
			defer wg.Done()
			results[i], errs[i] = c.GetRiskMetrics(ctx, asset)
		}(i, asset)
	}
	wg.Wait()

	out := make(map[string]*RiskMetrics, len(assets))
	for i, asset := range assets {
		if results[i] != nil {
			out[asset] = results[i]
		} else {
			out[asset] = Unknown(asset)
		}
	}
	return out, errors.Join(errs...)
}

// CacheStats exposes cache introspection for the API surface. Only
// successful fetches are stored, so assets whose lookups degraded to the
// fallback do not appear in Entries until a fetch succeeds.
func (c *Client) CacheStats() CacheStats { return c.cache.Stats() }

// ClearCache drops all cached metrics; the next access re-fetches.
func (c *Client) ClearCache() { c.cache.Clear() }

// fetchLocked serializes misses per asset so a burst of concurrent requests
// for the same asset produces a single remote fetch. Whoever loses the race
// finds the winner's result in the cache after acquiring the lock.
func (c *Client) fetchLocked(ctx context.Context, asset string) (*RiskMetrics, error) {
	unlock, err := c.fetchMu.LockContext(ctx, asset)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if m, ok := c.cache.Get(asset); ok && time.Since(m.Timestamp) < c.cfg.CacheTTL {
		fetchesTotal.WithLabelValues("hit").Inc()
		return m, nil
	}

	m, err := c.fetch(ctx, asset)
	if err != nil {
		return nil, err
	}
	fetchesTotal.WithLabelValues("fetched").Inc()
	c.cache.Set(asset, m)
	return m, nil
}

// riskResponse is the remote oracle's wire format.
type riskResponse struct {
	RiskScore        *float64    `json:"riskScore"`
	ComplianceStatus *Compliance `json:"complianceStatus"`
	CounterpartyRisk *float64    `json:"counterpartyRisk"`
	OracleIntegrity  *float64    `json:"oracleIntegrity"`
}

// fetch performs the remote call with bounded retries behind the breaker.
func (c *Client) fetch(ctx context.Context, asset string) (*RiskMetrics, error) {
	key := c.cfg.Endpoint
	if !c.breaker.Allow(key) {
		return nil, fmt.Errorf("%w: circuit open for %s", ErrOracleUnavailable, key)
	}

	var out riskResponse
	err := retry.Do(ctx, fetchAttempts, fetchRetryDelay, func() error {
		return c.fetchOnce(ctx, asset, &out)
	})
	if err != nil {
		c.breaker.RecordFailure(key)
		return nil, err
	}
	c.breaker.RecordSuccess(key)

	return &RiskMetrics{
		Asset:            asset,
		RiskScore:        out.RiskScore,
		ComplianceStatus: out.ComplianceStatus,
		CounterpartyRisk: out.CounterpartyRisk,
		OracleIntegrity:  out.OracleIntegrity,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (c *Client) fetchOnce(ctx context.Context, asset string, out *riskResponse) error {
	endpoint := fmt.Sprintf("%s/v1/risk/%s", c.cfg.Endpoint, url.PathEscape(asset))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("oracle: build request: %w", err))
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("oracle: fetch %s: %w", asset, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return fmt.Errorf("oracle: endpoint returned %d", resp.StatusCode)
	default:
		// 4xx is not going to improve on retry.
		return retry.Permanent(fmt.Errorf("oracle: endpoint returned %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("oracle: decode response: %w", err))
	}
	return nil
}
