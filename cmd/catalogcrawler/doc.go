// Command catalogcrawler crawls one e-commerce catalog: it resolves the
// category menu on the homepage, walks every category listing and upserts the
// products it finds.
//
// Usage:
//
//	catalogcrawler -config crawler.yaml
//
// Every setting can also be supplied through CATALOG_* environment variables,
// e.g. CATALOG_SITE_BASE_URL or CATALOG_DB_DSN.
package main
