package security

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ExtractDomain returns the lowercased host of rawURL, or "" when it cannot be parsed.
// Scheme-less input such as "example.com/file" is accepted.
func ExtractDomain(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// DomainCandidates lists host followed by each parent domain down to the
// registrable domain: "a.b.example.co.uk" gives
// [a.b.example.co.uk b.example.co.uk example.co.uk]. IPs and hosts without a
// registrable domain yield just the host.
func DomainCandidates(host string) []string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return nil
	}
	if net.ParseIP(host) != nil {
		return []string{host}
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil || registrable == host {
		return []string{host}
	}

	candidates := []string{host}
	for d := host; d != registrable; {
		i := strings.IndexByte(d, '.')
		if i < 0 {
			break
		}
		d = d[i+1:]
		candidates = append(candidates, d)
	}
	return candidates
}
