package page

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

// Extract classifies every hyperlink in body relative to pageURL, cleans the
// document, and returns its text. fetchedURL is where the body was actually
// served from after redirects; relative links resolve against it, or against
// the document's <base href> when present. Links are collected before cleanup
// so links inside navigation still reach the frontier.
func Extract(pageURL, fetchedURL string, body []byte) (crawler.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.PageResult{}, fmt.Errorf("parse html: %w", err)
	}
	result := crawler.PageResult{
		URL:   pageURL,
		Links: ExtractLinks(pageURL, DocumentBase(fetchedURL, doc), doc),
	}
	Clean(doc)
	result.Text = Text(doc)
	return result, nil
}

// DocumentBase returns the URL relative references in doc resolve against:
// the first <base href> resolved against fetchedURL, or fetchedURL itself.
func DocumentBase(fetchedURL string, doc *goquery.Document) string {
	href, ok := doc.Find("base[href]").First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return fetchedURL
	}
	from, err := url.Parse(fetchedURL)
	if err != nil {
		return fetchedURL
	}
	ref, err := url.Parse(href)
	if err != nil {
		return fetchedURL
	}
	return from.ResolveReference(ref).String()
}

// ExtractLinks returns the deduplicated internal and external links of doc in
// first-seen order. Relative hrefs resolve against baseURL; internal means
// same host as pageURL.
func ExtractLinks(pageURL, baseURL string, doc *goquery.Document) crawler.Links {
	links := crawler.Links{Internal: []string{}, External: []string{}}
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link, ok := crawler.ClassifyLinkAt(pageURL, baseURL, href)
		if !ok {
			return
		}
		if _, dup := seen[link.URL]; dup {
			return
		}
		seen[link.URL] = struct{}{}
		if link.Internal {
			links.Internal = append(links.Internal, link.URL)
			return
		}
		links.External = append(links.External, link.URL)
	})
	return links
}
