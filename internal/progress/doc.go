// Package progress carries run progress events from the scheduler to
// pluggable sinks without ever blocking a category crawl. The hub batches
// events on a background goroutine; sinks log them or fold them into a live
// run snapshot served over HTTP.
package progress
