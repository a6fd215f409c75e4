// Package proxy assigns optional outbound proxies to accounts and builds the
// HTTP clients that use them.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// ErrNoProxies is returned by At when the rotator is empty.
var ErrNoProxies = errors.New("no proxies configured")

// Rotator hands out proxies by sequential index modulo the list length. It is
// read-only after construction and safe for concurrent use.
type Rotator struct {
	proxies []string
}

// NewRotator copies the given list.
func NewRotator(proxies []string) *Rotator {
	return &Rotator{proxies: append([]string(nil), proxies...)}
}

// Load reads one proxy URI per line. An empty path yields an empty rotator.
func Load(path string) (*Rotator, error) {
	if strings.TrimSpace(path) == "" {
		return NewRotator(nil), nil
	}
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open proxy file: %w", err)
	}
	defer file.Close()

	var list []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, "://") {
			line = "http://" + line
		}
		list = append(list, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxy file: %w", err)
	}
	return NewRotator(list), nil
}

// Len returns the number of proxies.
func (r *Rotator) Len() int {
	if r == nil {
		return 0
	}
	return len(r.proxies)
}

// At returns the proxy for the account at index i.
func (r *Rotator) At(i int) (string, error) {
	if r.Len() == 0 {
		return "", ErrNoProxies
	}
	if i < 0 {
		i = -i
	}
	return r.proxies[i%len(r.proxies)], nil
}

// HTTPClient returns a client that routes through proxyURL. socks5:// URIs use
// a SOCKS5 dialer, everything else is treated as an HTTP(S) proxy. An empty
// proxyURL gives a direct client.
func HTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("error parsing proxy URL: %w", err)
		}
		switch parsed.Scheme {
		case "socks5", "socks5h":
			var auth *xproxy.Auth
			if parsed.User != nil {
				pass, _ := parsed.User.Password()
				auth = &xproxy.Auth{User: parsed.User.Username(), Password: pass}
			}
			dialer, err := xproxy.SOCKS5("tcp", parsed.Host, auth, &net.Dialer{Timeout: timeout})
			if err != nil {
				return nil, fmt.Errorf("error creating SOCKS5 dialer: %w", err)
			}
			transport.Proxy = nil
			transport.DialContext = nil
			transport.Dial = dialer.Dial //nolint:staticcheck // SOCKS5 dialer only exposes Dial
			if cd, ok := dialer.(xproxy.ContextDialer); ok {
				transport.Dial = nil
				transport.DialContext = cd.DialContext
			}
		case "http", "https":
			transport.Proxy = http.ProxyURL(parsed)
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", parsed.Scheme)
		}
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// Mask hides credentials so proxies can be logged.
func Mask(proxyURL string) string {
	parsed, err := url.Parse(proxyURL)
	if err != nil || parsed.User == nil {
		return proxyURL
	}
	parsed.User = url.User("***")
	return parsed.String()
}
