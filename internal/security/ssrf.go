// Package security implements the SSRF guard: a pure,
// string-level check invoked on every origin URL immediately before
// network I/O.
package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var privateCIDRs = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

func blockedIP(ip net.IP) bool {
	for _, n := range privateCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// IsSafeOriginURL reports whether url is safe to fetch: scheme is http/https
// and the host does not name localhost or a literal loopback/private/
// link-local address. A best-effort DNS resolution is also attempted; a
// resolved address landing in a blocked range is rejected, but resolution
// failure alone is not a rejection reason: an unresolvable host is allowed
// through so the eventual fetch fails with its own network error instead.
func IsSafeOriginURL(rawURL string) (bool, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Sprintf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false, fmt.Sprintf("invalid scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return false, "missing hostname"
	}
	lower := strings.ToLower(host)
	if lower == "localhost" {
		return false, "blocked: localhost access not allowed"
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() {
			return false, fmt.Sprintf("blocked: loopback address %s", host)
		}
		if blockedIP(ip) {
			return false, fmt.Sprintf("blocked: private/link-local address %s", host)
		}
		return true, "OK"
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable: let the fetch fail later with its own error.
		return true, "OK"
	}
	for _, ip := range ips {
		if ip.IsLoopback() || blockedIP(ip) {
			return false, fmt.Sprintf("blocked: %s resolves to %s", host, ip)
		}
	}
	return true, "OK"
}
