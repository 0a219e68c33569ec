package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Hostnames that must never be fetched from, regardless of what they
// resolve to. Cloud metadata services are the classic SSRF target.
var blockedHosts = []string{
	"localhost",
	"metadata.google.internal",
	"metadata.google",
}

// ValidateEndpointURL checks that an operator-supplied endpoint (such as the
// risk oracle URL) is safe for server-side requests. Loopback, private,
// link-local, and unspecified addresses are rejected to prevent SSRF; both
// IP literals and every DNS-resolved address are checked.
func ValidateEndpointURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	host := u.Hostname()
	for _, b := range blockedHosts {
		if strings.EqualFold(host, b) {
			return fmt.Errorf("URL host %q is not allowed", host)
		}
	}

	// An IP literal is checked directly, with no DNS round trip.
	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("cannot resolve URL host: %s", host)
	}
	for _, addr := range addrs {
		resolved := net.ParseIP(addr)
		if resolved == nil {
			continue
		}
		if err := checkIP(resolved); err != nil {
			return fmt.Errorf("URL host %q resolves to blocked address: %v", host, err)
		}
	}

	return nil
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback addresses are not allowed")
	case ip.IsPrivate():
		return fmt.Errorf("private addresses are not allowed")
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local addresses are not allowed")
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified addresses are not allowed")
	}
	return nil
}
