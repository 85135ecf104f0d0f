package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// ProxyEnv names the environment variable holding the egress proxy.
const ProxyEnv = "HTTP_PROXY"

// Proxy is a parsed egress proxy.
type Proxy struct {
	// Server is scheme://host:port without credentials, as Chrome expects it.
	Server   string
	Username string
	Password string
	// URL is the full proxy URL including credentials, for Go HTTP clients.
	URL *url.URL
}

// ParseProxy parses http://[user:pass@]host:port. An empty string means no proxy.
// SOCKS5 proxies must not carry credentials: Chrome never asks for SOCKS
// authentication, so they could not be answered.
func ParseProxy(raw string) (*Proxy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("proxy URL must include host and port")
	}
	if u.Scheme == "socks5" && u.User != nil {
		return nil, fmt.Errorf("socks5 proxy credentials are not supported by the browser")
	}

	p := &Proxy{
		Server: fmt.Sprintf("%s://%s", u.Scheme, u.Host),
		URL:    u,
	}
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	return p, nil
}

// LoadProxy reads the proxy from HTTP_PROXY.
func LoadProxy() (*Proxy, error) {
	return ParseProxy(os.Getenv(ProxyEnv))
}

// Redacted renders the proxy without its password.
func (p *Proxy) Redacted() string {
	if p == nil {
		return ""
	}
	return p.URL.Redacted()
}
