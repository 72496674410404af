// Package archive writes completed page results to long-term storage.
//
// Blob writes one JSON object per page through a crawler.BlobStore. Multi
// fans a record out to several archivers and reports each write to metrics.
package archive
