// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package ssrf guards outbound requests made by autonomous research
// agents against server-side request forgery: a page or tool result
// that redirects the agent at internal network resources (cloud
// metadata endpoints, loopback services, RFC 1918 hosts).
package ssrf

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
)

// Reason identifies why a validation failed, so callers can react
// differently to each failure class.
type Reason string

const (
	ReasonNoHostname      Reason = "no_hostname"
	ReasonNotInAllowlist  Reason = "not_in_allowlist"
	ReasonInternalAddress Reason = "internal_address"
)

// A ValidationError is a rejected URL or address.
type ValidationError struct {
	Reason Reason
	Host   string
	Addr   string // resolved address, for ReasonInternalAddress
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonNoHostname:
		return fmt.Sprintf("ssrf: URL has no parseable hostname (%q)", e.Host)
	case ReasonNotInAllowlist:
		return fmt.Sprintf("ssrf: host %q is not in the allowed domain list", e.Host)
	case ReasonInternalAddress:
		return fmt.Sprintf("ssrf: host %q resolves to internal address %s", e.Host, e.Addr)
	default:
		return fmt.Sprintf("ssrf: host %q rejected (%s)", e.Host, e.Reason)
	}
}

// blockedRanges is parsed once at init for efficient checks.
var blockedRanges []*net.IPNet

func init() {
	for _, cidr := range []string{
		"127.0.0.0/8",    // IPv4 loopback
		"10.0.0.0/8",     // RFC 1918
		"172.16.0.0/12",  // RFC 1918
		"192.168.0.0/16", // RFC 1918
		"169.254.0.0/16", // link-local / cloud metadata
		"0.0.0.0/8",      // unspecified (routes to localhost)
		"::1/128",        // IPv6 loopback
		"fc00::/7",       // IPv6 unique local
		"fe80::/10",      // IPv6 link-local
	} {
		_, ipNet, _ := net.ParseCIDR(cidr)
		blockedRanges = append(blockedRanges, ipNet)
	}
}

// IsInternalIP reports whether the string is an address inside a
// blocked range. A string that fails to parse as an IP at all is
// treated as internal (fail closed).
func IsInternalIP(addr string) bool {
	// Strip an optional IPv6 zone suffix to keep ParseIP deterministic.
	if idx := strings.IndexByte(addr, '%'); idx != -1 {
		addr = addr[:idx]
	}
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return true
	}
	return isInternal(ip)
}

func isInternal(ip net.IP) bool {
	if ip.IsUnspecified() || ip.IsLoopback() {
		return true
	}
	for _, ipNet := range blockedRanges {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver is the subset of net.Resolver the guard uses. Swappable in
// tests.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// A Protector validates URLs and addresses before an agent contacts
// them. The zero value blocks internal ranges with no allowlist and
// no audit logging; each validation call is independent (the guard
// holds no per-request state).
type Protector struct {
	// AllowedDomains, when non-empty, restricts outbound hosts to
	// exact matches of these names. Internal-range checks still apply
	// to allowed hosts.
	AllowedDomains []string

	// AuditLog enables decision logging (hostname and resolved
	// address) through Logger.
	AuditLog bool

	// Logger receives audit entries. Nil means slog.Default.
	Logger *slog.Logger

	// Resolver overrides DNS resolution. Nil means net.DefaultResolver.
	Resolver Resolver
}

// New returns a Protector with the given allowlist (nil disables
// allowlist enforcement) and audit flag.
func New(allowedDomains []string, auditLog bool) *Protector {
	return &Protector{AllowedDomains: allowedDomains, AuditLog: auditLog}
}

func (p *Protector) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Protector) resolver() Resolver {
	if p.Resolver != nil {
		return p.Resolver
	}
	return net.DefaultResolver
}

func (p *Protector) audit(decision, host, addr string) {
	if !p.AuditLog {
		return
	}
	p.logger().Info("ssrf audit", "decision", decision, "host", host, "addr", addr)
}

// ValidateURL parses rawURL and rejects it when the URL has no
// hostname, when an allowlist is configured and the host is absent
// from it, or when the host resolves to an internal address.
//
// A host that fails DNS resolution entirely is allowed through: there
// is no address to check, and failing closed here would block
// legitimate hosts during resolution hiccups. This is a deliberate
// policy choice; see the risk note in DESIGN.md before changing it.
func (p *Protector) ValidateURL(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	var host string
	if err == nil {
		host = parsed.Hostname()
	}
	if host == "" {
		p.audit("block", rawURL, "")
		return &ValidationError{Reason: ReasonNoHostname, Host: rawURL}
	}

	if len(p.AllowedDomains) > 0 && !p.hostAllowed(host) {
		p.audit("block", host, "")
		return &ValidationError{Reason: ReasonNotInAllowlist, Host: host}
	}

	// An IP literal skips resolution.
	if ip := net.ParseIP(host); ip != nil {
		if isInternal(ip) {
			p.audit("block", host, ip.String())
			return &ValidationError{Reason: ReasonInternalAddress, Host: host, Addr: ip.String()}
		}
		p.audit("allow", host, ip.String())
		return nil
	}

	addrs, err := p.resolver().LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		// Fail open on unresolvable hosts (documented above).
		p.audit("allow-unresolved", host, "")
		return nil
	}
	for _, addr := range addrs {
		if addr.IP != nil && isInternal(addr.IP) {
			p.audit("block", host, addr.IP.String())
			return &ValidationError{Reason: ReasonInternalAddress, Host: host, Addr: addr.IP.String()}
		}
	}

	p.audit("allow", host, addrs[0].IP.String())
	return nil
}

// ValidateIP checks a literal address against the blocked ranges.
// Unparseable input fails closed as an internal address.
func (p *Protector) ValidateIP(addr string) error {
	if IsInternalIP(addr) {
		p.audit("block", addr, addr)
		return &ValidationError{Reason: ReasonInternalAddress, Host: addr, Addr: addr}
	}
	p.audit("allow", addr, addr)
	return nil
}

// hostAllowed reports whether host exactly matches an allowlist
// entry (case-insensitive).
func (p *Protector) hostAllowed(host string) bool {
	for _, allowed := range p.AllowedDomains {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}
