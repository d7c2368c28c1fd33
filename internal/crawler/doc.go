// Package crawler implements the catalog crawl pipeline: the per-category
// pagination walk, the admission gate, and the scheduler that fans categories
// out and joins their results. Fetching, HTML extraction and persistence are
// supplied through the interfaces in this package.
package crawler
