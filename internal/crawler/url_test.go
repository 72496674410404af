package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://a.com/x/":                "https://a.com/x",
		"https://a.com/x#frag":            "https://a.com/x",
		"https://a.com/x?b=2&a=1":         "https://a.com/x",
		"HTTPS://A.COM:443/Path/":         "https://a.com/Path",
		"http://a.com:80/":                "http://a.com",
		"http://a.com:8080/x":             "http://a.com:8080/x",
		"https://user:pw@a.com/private//": "https://a.com/private",
		"  https://a.com  ":               "https://a.com",
		"https://a.com/./x/../":           "https://a.com",
		"https://a.com/docs/./intro":      "https://a.com/docs/intro",
		"https://a.com/a/b/../c/":         "https://a.com/a/c",
		"https://a.com/../x":              "https://a.com/x",
	}
	for raw, want := range cases {
		got, err := NormalizeURL(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestNormalizeURLIsProjection(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://a.com/x/",
		"https://a.com/x#frag",
		"https://a.com/a%20b/",
		"HTTP://Example.org:80/docs/?q=1#top",
		"https://a.com",
		"https://a.com/x%2Fy/",
		"https://a.com/./x/../",
		"https://a.com/a/b/../../c/.",
	}
	for _, raw := range inputs {
		once, err := NormalizeURL(raw)
		require.NoError(t, err)
		twice, err := NormalizeURL(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, raw)
	}
}

func TestNormalizeURLRejectsRelative(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"/just/a/path", "mailto:someone@a.com", "ftp://a.com/file", ""} {
		_, err := NormalizeURL(raw)
		assert.Error(t, err, raw)
	}
}

func TestDomainOf(t *testing.T) {
	t.Parallel()

	domain, err := DomainOf("https://Site.COM:443/a")
	require.NoError(t, err)
	assert.Equal(t, "site.com", domain)

	domain, err = DomainOf("http://site.com:8080/a")
	require.NoError(t, err)
	assert.Equal(t, "site.com:8080", domain)

	_, err = DomainOf("/relative")
	assert.Error(t, err)
}

func TestClassifyLink(t *testing.T) {
	t.Parallel()

	base := "https://a.com/p"
	tests := []struct {
		name     string
		href     string
		want     Link
		accepted bool
	}{
		{name: "relative path is internal", href: "/y", want: Link{URL: "https://a.com/y", Internal: true}, accepted: true},
		{name: "sibling path resolves", href: "q/", want: Link{URL: "https://a.com/q", Internal: true}, accepted: true},
		{name: "other host is external", href: "https://b.com/y", want: Link{URL: "https://b.com/y"}, accepted: true},
		{name: "same host absolute", href: "https://A.com:443/z#x", want: Link{URL: "https://a.com/z", Internal: true}, accepted: true},
		{name: "subdomain is external", href: "https://www.a.com/", want: Link{URL: "https://www.a.com"}, accepted: true},
		{name: "fragment only", href: "#top", accepted: false},
		{name: "empty", href: "   ", accepted: false},
		{name: "mailto", href: "mailto:hi@a.com", accepted: false},
		{name: "javascript", href: "javascript:void(0)", accepted: false},
		{name: "tel", href: "tel:+15555555", accepted: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ClassifyLink(base, tt.href)
			require.Equal(t, tt.accepted, ok)
			if tt.accepted {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestClassifyLinkAtSeparateBase(t *testing.T) {
	t.Parallel()

	got, ok := ClassifyLinkAt("https://a.com/docs", "https://a.com/docs/", "intro")
	require.True(t, ok)
	assert.Equal(t, Link{URL: "https://a.com/docs/intro", Internal: true}, got)

	got, ok = ClassifyLinkAt("https://a.com/docs", "https://cdn.a.net/docs/", "../x")
	require.True(t, ok)
	assert.Equal(t, Link{URL: "https://cdn.a.net/x"}, got)

	got, ok = ClassifyLinkAt("https://a.com/docs", "not a url", "intro")
	require.True(t, ok)
	assert.Equal(t, Link{URL: "https://a.com/intro", Internal: true}, got)
}
