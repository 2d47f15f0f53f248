package history

import (
	"net/url"
	"strings"
)

// excludedSchemes are browser-internal pages that never count as visits.
var excludedSchemes = map[string]bool{
	"chrome":           true,
	"chrome-extension": true,
	"chrome-search":    true,
	"chrome-untrusted": true,
	"edge":             true,
	"brave":            true,
	"about":            true,
	"devtools":         true,
	"view-source":      true,
	"file":             true,
	"data":             true,
	"blob":             true,
	"javascript":       true,
	"moz-extension":    true,
}

// IsExcludedURL reports whether rawURL uses a browser-internal or
// extension scheme.
func IsExcludedURL(rawURL string) bool {
	i := strings.IndexByte(rawURL, ':')
	if i <= 0 {
		return false
	}
	return excludedSchemes[strings.ToLower(rawURL[:i])]
}

// ExtractDomain returns the lowercase host of rawURL with a single leading
// "www." removed. ok is false for unparseable URLs, URLs without a host, and
// excluded schemes.
func ExtractDomain(rawURL string) (domain string, ok bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || IsExcludedURL(rawURL) {
		return "", false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", false
	}
	return host, true
}

// Denylist holds domains left out of aggregation. An entry matches the
// domain itself and any subdomain.
type Denylist []string

// Blocks reports whether domain is covered by the list.
func (d Denylist) Blocks(domain string) bool {
	for _, entry := range d {
		entry = strings.TrimPrefix(strings.ToLower(entry), "www.")
		if entry == "" {
			continue
		}
		if domain == entry || strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}
