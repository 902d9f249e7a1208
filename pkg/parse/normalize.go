package parse

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

// NormalizeURL standardizes a URL for use as a ledger key.
// It lowercases the scheme and host, removes default ports, trims a trailing slash
// (unless root), drops the fragment and sorts the query. The query is kept because
// catalog detail pages are addressed by it.
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	if host, port, err := net.SplitHostPort(normalized.Host); err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1]
	}

	normalized.Fragment = ""
	normalized.RawFragment = ""
	if normalized.RawQuery != "" {
		if q, err := url.ParseQuery(normalized.RawQuery); err == nil {
			normalized.RawQuery = q.Encode() // Encode sorts by key
		}
	}

	return normalized.String()
}

// ParseAndNormalize parses an absolute URL string and normalizes it using NormalizeURL
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(urlStr)
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid URL '%s': %w", utils.ErrParsing, urlStr, err)
	}
	return NormalizeURL(parsed), parsed, nil
}

// ResolveURL applies base to a possibly relative reference.
// "/a/b.html" against "https://yz.chsi.com.cn" gives "https://yz.chsi.com.cn/a/b.html";
// absolute references are returned as given.
func ResolveURL(base *url.URL, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty URL reference", utils.ErrParsing)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: bad URL reference '%s': %w", utils.ErrParsing, ref, err)
	}
	if refURL.IsAbs() || base == nil {
		return refURL.String(), nil
	}
	return base.ResolveReference(refURL).String(), nil
}
