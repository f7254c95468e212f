// Package proxycheck probes connectivity through an instance's proxy so
// operators can verify an exit before pointing a browser at it.
package proxycheck

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/firedesk/firedesk/internal/infrastructure/logging"
	"github.com/firedesk/firedesk/internal/infrastructure/resilience"
	"github.com/firedesk/firedesk/internal/shared/types"
)

const (
	// DefaultProbeURL is a small plain-text endpoint that echoes the
	// caller's public address, which makes a successful probe doubly
	// useful: it proves the tunnel works and shows the exit IP.
	DefaultProbeURL = "https://api.ipify.org"

	// DefaultTimeout bounds a probe when the request gives none.
	DefaultTimeout = 10 * time.Second

	// MaxTimeout caps operator-supplied timeouts so a probe cannot pin
	// an HTTP worker for minutes.
	MaxTimeout = 30 * time.Second
)

// Checker performs proxy probes. Each proxy endpoint gets its own
// circuit breaker so a dead proxy answers immediately instead of
// pinning a worker for the full timeout on every probe.
type Checker struct {
	logger *logging.Logger

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
}

// New creates a checker.
func New(logger *logging.Logger) *Checker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Checker{
		logger:   logger,
		breakers: make(map[string]*resilience.Breaker),
	}
}

func (c *Checker) breakerFor(endpoint string) *resilience.Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[endpoint]
	if !ok {
		b = resilience.New(endpoint, resilience.Settings{
			Timeout: 15 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
		c.breakers[endpoint] = b
	}
	return b
}

// Check issues a GET through the given proxy and reports reachability
// and latency. Probe failures are results, not errors; an unreachable
// proxy is the answer the operator asked for. The error return covers
// invalid input only.
func (c *Checker) Check(ctx context.Context, proxy *types.Proxy, req *types.ProxyCheckRequest) (*types.ProxyCheckResult, error) {
	if proxy.IsZero() {
		return nil, types.Invalid("proxy", "instance has no proxy configured")
	}

	probeURL := DefaultProbeURL
	if req != nil && req.URL != "" {
		parsed, err := url.Parse(req.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, types.Invalid("url", "must be an absolute http(s) URL")
		}
		probeURL = req.URL
	}

	timeout := DefaultTimeout
	if req != nil && req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
		if timeout > MaxTimeout {
			timeout = MaxTimeout
		}
	}

	client := resty.New().
		SetProxy(proxyURL(proxy)).
		SetTimeout(timeout).
		SetHeader("User-Agent", "firedesk-proxycheck/1.0")

	endpoint := fmt.Sprintf("%s:%d", proxy.Host, proxy.Port)
	breaker := c.breakerFor(endpoint)

	start := time.Now()
	raw, err := breaker.Execute(func() (interface{}, error) {
		return client.R().SetContext(ctx).Get(probeURL)
	})
	latency := time.Since(start)

	result := &types.ProxyCheckResult{LatencyMS: latency.Milliseconds()}
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			result.Error = fmt.Sprintf("proxy %s failed repeatedly, retry later", endpoint)
		} else {
			result.Error = err.Error()
		}
		c.logger.Info("proxy probe failed",
			zap.String("proxy_host", proxy.Host),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return result, nil
	}

	resp := raw.(*resty.Response)
	result.OK = resp.StatusCode() < 500
	result.StatusCode = resp.StatusCode()
	c.logger.Info("proxy probe completed",
		zap.String("proxy_host", proxy.Host),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("latency", latency),
	)
	return result, nil
}

// proxyURL renders the proxy as a URL net/http understands. The socks5
// scheme rides on the transport's built-in SOCKS support; https proxies
// still connect with an http CONNECT URL.
func proxyURL(p *types.Proxy) string {
	scheme := "http"
	if p.Type == types.ProxySOCKS5 {
		scheme = "socks5"
	}
	host := fmt.Sprintf("%s:%d", p.Host, p.Port)
	if p.Username != "" {
		u := url.URL{
			Scheme: scheme,
			User:   url.UserPassword(p.Username, p.Password),
			Host:   host,
		}
		return u.String()
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}
