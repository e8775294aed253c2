package webhook

import (
	"errors"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrEmptyHost        = errors.New("URL must have a host")
	ErrInvalidScheme    = errors.New("only HTTPS allowed")
	ErrLocalhostBlocked = errors.New("localhost not allowed")
	ErrPrivateIP        = errors.New("private IP addresses not allowed")
)

// lookupIP is replaced in tests.
var lookupIP = net.LookupIP

// ValidateTargetURL checks MINT_WEBHOOK_URL at startup. The target must be
// HTTPS on a public address; allowLocal admits plain HTTP and local hosts
// for development against a receiver on the same machine.
func ValidateTargetURL(targetURL string, allowLocal bool) error {
	u, err := url.Parse(targetURL)
	if err != nil {
		return ErrInvalidURL
	}
	host := u.Hostname()
	if host == "" {
		return ErrEmptyHost
	}

	switch {
	case u.Scheme == "https":
	case u.Scheme == "http" && allowLocal:
	default:
		return ErrInvalidScheme
	}
	if allowLocal {
		return nil
	}

	if localName(host) {
		return ErrLocalhostBlocked
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Unmap().IsLoopback() {
			return ErrLocalhostBlocked
		}
		if !publicAddr(addr) {
			return ErrPrivateIP
		}
		return nil
	}

	// An unresolvable name is accepted here; the dialer checks again at
	// delivery time and the failure is logged there.
	ips, err := lookupIP(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip); ok && !publicAddr(addr) {
			return ErrPrivateIP
		}
	}
	return nil
}

func localName(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local")
}

// publicAddr reports whether a webhook may be sent to addr.
func publicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsUnspecified() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsMulticast() &&
		!sharedAddressSpace.Contains(addr)
}

// 100.64.0.0/10 is carrier-grade NAT, not covered by netip.Addr.IsPrivate.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// ExtractHost returns the host of a URL for logging, since paths and queries
// can carry receiver tokens.
func ExtractHost(targetURL string) string {
	u, err := url.Parse(targetURL)
	if err != nil {
		return "(invalid)"
	}
	return u.Host
}
