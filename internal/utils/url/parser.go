package urlutil

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ValidateURL performs comprehensive URL validation
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: must be http or https, got %s", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}

	return nil
}

// ResolveURL resolves a possibly-relative href against a base URL and returns a string
func ResolveURL(base, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(u).String()
}

// ResolveLinks resolves every href in links against base, preserving order.
func ResolveLinks(base string, links []string) []string {
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = ResolveURL(base, l)
	}
	return out
}

// CanonicalKey normalises a URL for dedup purposes: strips the fragment
// and any trailing slash from the path.
func CanonicalKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// SameScope reports whether candidate is in scope of base under mode:
// "domain" (exact host match), "subdomain" (host or subdomain of base's
// root domain), or "path" (same host, candidate's path at or below base's).
func SameScope(mode, base, candidate string) bool {
	baseURL, err := url.Parse(base)
	if err != nil {
		return false
	}
	candURL, err := url.Parse(candidate)
	if err != nil {
		return false
	}

	switch mode {
	case "subdomain":
		return candURL.Hostname() == baseURL.Hostname() ||
			strings.HasSuffix(candURL.Hostname(), "."+rootDomain(baseURL.Hostname()))
	case "path":
		if candURL.Hostname() != baseURL.Hostname() {
			return false
		}
		basePath := strings.TrimSuffix(baseURL.Path, "/")
		return strings.HasPrefix(candURL.Path, basePath)
	case "domain":
		fallthrough
	default:
		return candURL.Hostname() == baseURL.Hostname()
	}
}

// rootDomain returns host's registrable domain (eTLD+1), e.g.
// "www.example.co.uk" -> "example.co.uk". Falls back to host itself for
// single-label hosts or anything the public suffix list doesn't cover
// (bare IPs, "localhost").
func rootDomain(host string) string {
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}

// BasePathname returns the directory portion of a URL's path, used to
// prioritise crawl candidates sharing the seed's base pathname.
func BasePathname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	idx := strings.LastIndex(u.Path, "/")
	if idx < 0 {
		return "/"
	}
	return u.Path[:idx+1]
}
