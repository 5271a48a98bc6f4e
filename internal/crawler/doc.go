// Package crawler implements the paginated region crawl: the shared listing
// types, the fetch and extraction capabilities it depends on, the page walk
// that assigns absolute ranks, and the region-level retry policy.
package crawler
