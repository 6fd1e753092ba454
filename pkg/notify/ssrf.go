package notify

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// AllowInternalDestinations, when true, disables the SSRF guard entirely
// — used only in deployments that intentionally point channels at
// internal services (spec.md §4.10: "unless the deployment explicitly
// enables internal destinations").
type SSRFGuard struct {
	AllowInternal bool
	resolver      func(ctx context.Context, host string) ([]net.IP, error)
}

// NewSSRFGuard builds a guard using net.DefaultResolver.
func NewSSRFGuard(allowInternal bool) *SSRFGuard {
	return &SSRFGuard{
		AllowInternal: allowInternal,
		resolver: func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip", host)
		},
	}
}

// CheckURL rejects non-http(s) schemes and, unless AllowInternal is set,
// any URL whose resolved host is loopback, link-local, or RFC1918
// private range.
func (g *SSRFGuard) CheckURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("notify: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("notify: unsupported scheme %q", u.Scheme)
	}
	if g.AllowInternal {
		return nil
	}

	host := u.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		if isDisallowed(ip) {
			return fmt.Errorf("notify: destination %s is not a public address", host)
		}
		return nil
	}

	ips, err := g.resolver(ctx, host)
	if err != nil {
		return fmt.Errorf("notify: could not resolve %q: %w", host, err)
	}
	for _, ip := range ips {
		if isDisallowed(ip) {
			return fmt.Errorf("notify: destination %s resolves to a non-public address (%s)", host, ip)
		}
	}
	return nil
}

func isDisallowed(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsPrivate() || ip.IsUnspecified()
}
