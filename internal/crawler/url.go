package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, and sorts query parameters.
// It also removes fragments.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	normalizeParsed(u)
	return u.String(), nil
}

func normalizeParsed(u *url.URL) {
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
}

// URLKey is the comparison form of a URL: normalized, case-folded, and without a
// trailing slash. Two URLs with the same key address the same catalog page.
func URLKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	normalizeParsed(u)
	u.Path = strings.ToLower(strings.TrimRight(u.Path, "/"))
	u.RawPath = ""
	return u.String(), nil
}

// PathSegments returns the non-empty, lowercased path segments of a URL.
func PathSegments(u *url.URL) []string {
	parts := strings.Split(u.Path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, strings.ToLower(p))
	}
	return out
}

// IsPathAncestor reports whether parent's path is a strict segment-wise prefix of
// child's path on the same host. Query-bearing URLs are never ancestors.
func IsPathAncestor(parent, child *url.URL) bool {
	if !strings.EqualFold(parent.Host, child.Host) {
		return false
	}
	if parent.RawQuery != "" {
		return false
	}
	ps := PathSegments(parent)
	cs := PathSegments(child)
	if len(ps) >= len(cs) {
		return false
	}
	for i := range ps {
		if ps[i] != cs[i] {
			return false
		}
	}
	return true
}

// LastPathSegment returns the final non-empty path segment, or "" if none.
func LastPathSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(u.Path, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}
