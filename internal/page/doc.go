// Package page turns a fetched HTML document into classified links and
// cleaned text. Worker is the page-level fetch used by the crawl coordinator.
package page
