package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var errRelativeURL = errors.New("url must be absolute http(s)")

// Link is a classified, normalized hyperlink.
type Link struct {
	URL      string
	Internal bool
}

// NormalizeURL projects a URL onto the frontier key space: scheme://host/path.
// It lowercases the scheme and host, removes default ports, and drops the
// query, the fragment, user info, and any trailing slash, and removes "." and
// ".." path segments. NormalizeURL is idempotent.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if !isWebScheme(u.Scheme) || u.Host == "" {
		return "", fmt.Errorf("normalize %q: %w", rawURL, errRelativeURL)
	}
	scheme := strings.ToLower(u.Scheme)
	// Resolving the path against itself drops dot segments.
	clean := u.ResolveReference(&url.URL{Path: u.Path, RawPath: u.RawPath})
	return scheme + "://" + canonicalHost(scheme, u.Host) + strings.TrimRight(clean.EscapedPath(), "/"), nil
}

// DomainOf returns the frontier key for a URL: its lowercased host with any
// default port removed.
func DomainOf(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("domain of %q: %w", rawURL, errRelativeURL)
	}
	return canonicalHost(strings.ToLower(u.Scheme), u.Host), nil
}

// ClassifyLink resolves href against the page URL and decides whether it is
// internal (same host as the page) or external. The second return value is
// false when the link is discarded: empty, fragment-only, non-web schemes,
// or unparsable.
func ClassifyLink(pageURL, href string) (Link, bool) {
	return ClassifyLinkAt(pageURL, pageURL, href)
}

// ClassifyLinkAt is ClassifyLink for documents whose relative references
// resolve against baseURL, such as a redirect target or a <base href>.
// Internal still means same host as pageURL.
func ClassifyLinkAt(pageURL, baseURL, href string) (Link, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return Link{}, false
	}
	page, err := url.Parse(pageURL)
	if err != nil || page.Host == "" {
		return Link{}, false
	}
	base := page
	if baseURL != "" && baseURL != pageURL {
		b, err := url.Parse(baseURL)
		if err == nil && b.Host != "" && isWebScheme(b.Scheme) {
			base = b
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return Link{}, false
	}
	resolved := base.ResolveReference(ref)
	if !isWebScheme(resolved.Scheme) || resolved.Host == "" {
		return Link{}, false
	}
	normalized, err := NormalizeURL(resolved.String())
	if err != nil {
		return Link{}, false
	}
	pageHost := canonicalHost(strings.ToLower(page.Scheme), page.Host)
	linkHost := canonicalHost(strings.ToLower(resolved.Scheme), resolved.Host)
	return Link{URL: normalized, Internal: pageHost == linkHost}, true
}

func isWebScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}

func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	if scheme == "http" && strings.HasSuffix(host, ":80") {
		host = strings.TrimSuffix(host, ":80")
	}
	if scheme == "https" && strings.HasSuffix(host, ":443") {
		host = strings.TrimSuffix(host, ":443")
	}
	return host
}
