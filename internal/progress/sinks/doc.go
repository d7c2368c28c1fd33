// Package sinks implements concrete progress consumers: structured logging
// and an in-memory run snapshot for the ops API. Each sink satisfies the
// progress.Sink interface.
package sinks
