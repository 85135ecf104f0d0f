// Package netcheck holds the pre-flight network checks run before any
// account is touched: proxy egress and DevTools endpoint reachability.
package netcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"

	"github.com/dreamup/renew-agent/internal/config"
)

const (
	// DefaultProbeURL is fetched through the proxy to prove egress works.
	DefaultProbeURL = "https://www.google.com"
	// DefaultProbeTimeout bounds the proxy check.
	DefaultProbeTimeout = 10 * time.Second
)

// VersionInfo is the subset of /json/version the agent reads.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Check is one pre-flight step.
type Check func(ctx context.Context) error

// Preflight runs checks concurrently and returns the first failure.
func Preflight(ctx context.Context, checks ...Check) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, check := range checks {
		check := check
		g.Go(func() error { return check(gctx) })
	}
	return g.Wait()
}

// ProxyCheck returns a Check that fetches target through p.
func ProxyCheck(p *config.Proxy, target string, timeout time.Duration) Check {
	return func(ctx context.Context) error {
		return CheckProxy(ctx, p, target, timeout)
	}
}

// CheckProxy issues a real GET to target through p. Any transport error or
// a 4xx/5xx status fails the check. A nil proxy always passes.
func CheckProxy(ctx context.Context, p *config.Proxy, target string, timeout time.Duration) error {
	if p == nil {
		return nil
	}

	transport, err := proxyTransport(p)
	if err != nil {
		return err
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{Transport: transport, Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("proxy %s cannot reach %s: %w", p.Redacted(), target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("proxy %s probe of %s returned %s", p.Redacted(), target, resp.Status)
	}
	return nil
}

// proxyTransport routes HTTP(S) proxies through http.Transport.Proxy and
// SOCKS5 through an x/net/proxy dialer.
func proxyTransport(p *config.Proxy) (*http.Transport, error) {
	transport := &http.Transport{
		TLSHandshakeTimeout: 10 * time.Second,
		DisableKeepAlives:   true,
	}

	if p.URL.Scheme != "socks5" {
		transport.Proxy = http.ProxyURL(p.URL)
		return transport, nil
	}

	dialer, err := proxy.FromURL(p.URL, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to build socks5 dialer: %w", err)
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	return transport, nil
}

// ProbeDevTools fetches <remoteURL>/json/version. remoteURL may be an
// http(s) or ws(s) DevTools URL; only its host is used.
func ProbeDevTools(ctx context.Context, remoteURL string) (*VersionInfo, error) {
	endpoint, err := versionEndpoint(remoteURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("devtools endpoint %s unreachable: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("devtools endpoint %s returned %s", endpoint, resp.Status)
	}

	var info VersionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode devtools version: %w", err)
	}
	return &info, nil
}

func versionEndpoint(remoteURL string) (string, error) {
	u := strings.TrimSpace(remoteURL)
	if u == "" {
		return "", fmt.Errorf("empty devtools URL")
	}
	switch {
	case strings.HasPrefix(u, "ws://"):
		u = "http://" + strings.TrimPrefix(u, "ws://")
	case strings.HasPrefix(u, "wss://"):
		u = "https://" + strings.TrimPrefix(u, "wss://")
	case !strings.Contains(u, "://"):
		u = "http://" + u
	}

	scheme, rest, _ := strings.Cut(u, "://")
	host, _, _ := strings.Cut(rest, "/")
	if host == "" {
		return "", fmt.Errorf("devtools URL %q has no host", remoteURL)
	}
	return scheme + "://" + host + "/json/version", nil
}

// DevToolsAddr returns the host:port of a DevTools URL, defaulting the port
// from the scheme.
func DevToolsAddr(remoteURL string) (string, error) {
	endpoint, err := versionEndpoint(remoteURL)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid devtools URL %q: %w", remoteURL, err)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// WaitForPort dials addr until it accepts a TCP connection, up to attempts
// times delay apart.
func WaitForPort(ctx context.Context, addr string, attempts int, delay time.Duration) error {
	var d net.Dialer
	var lastErr error
	for i := 0; i < attempts; i++ {
		dialCtx, cancel := context.WithTimeout(ctx, delay)
		conn, err := d.DialContext(dialCtx, "tcp", addr)
		cancel()
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err

		if i < attempts-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("port %s not reachable after %d attempts: %w", addr, attempts, lastErr)
}
