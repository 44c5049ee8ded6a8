package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// WebSocketEndpoint resolves the sync endpoint for the configured runtime
// environment. An explicit WebSocketURL wins; http(s) schemes are mapped to
// ws(s). Local runs default to ws://localhost:DevPort, deployed runs to wss
// on the default port.
func (c ClientConfig) WebSocketEndpoint() (string, error) {
	if c.WebSocketURL != "" {
		return NormalizeWSURL(c.WebSocketURL)
	}

	host := c.Host
	port := c.Port
	secure := c.Secure
	switch c.Environment {
	case EnvironmentDeployed:
		if host == "" {
			return "", fmt.Errorf("BUGWARS_HOST is required in %s environment", EnvironmentDeployed)
		}
		secure = true
	default:
		if host == "" {
			host = "localhost"
		}
		if port == 0 {
			port = DevPort
		}
	}

	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	hostport := host
	if port != 0 {
		hostport = net.JoinHostPort(host, strconv.Itoa(port))
	}
	path := c.WebSocketPath
	if path == "" {
		path = "/ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: scheme, Host: hostport, Path: path}
	return u.String(), nil
}

func NormalizeWSURL(base string) (string, error) {
	if strings.HasPrefix(base, "ws://") || strings.HasPrefix(base, "wss://") {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
