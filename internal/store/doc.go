// Package store declares repository interfaces for crawl statistics.
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store
