// Package portal abstracts the browser automation the bank scrapers run on.
// Scrapers talk to a Driver so they can be exercised against a fake in
// tests; the chromedp implementation is the one real deployments use.
package portal

import (
	"context"
	"time"
)

// Driver is the minimal browser surface the bank integrations need. Every
// method takes a context; the implementation must honor cancellation.
type Driver interface {
	// Navigate loads the given URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until the selector is visible or the timeout
	// elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Exists reports whether the selector matches at least one element
	// right now, without waiting.
	Exists(ctx context.Context, selector string) (bool, error)

	// Fill clears the matched input and types the value into it.
	Fill(ctx context.Context, selector string, value string) error

	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string) error

	// Text returns the trimmed text content of the first match.
	Text(ctx context.Context, selector string) (string, error)

	// ReadTable extracts the table matching the selector as one map per
	// body row, keyed by the header row's cell text.
	ReadTable(ctx context.Context, selector string) ([]map[string]string, error)

	// ReadItems extracts repeated non-table elements: one map per element
	// matching itemSelector, with each field read from a sub-selector.
	// A field of the form "sel@attr" reads the attribute instead of the
	// text content.
	ReadItems(ctx context.Context, itemSelector string, fields map[string]string) ([]map[string]string, error)

	// Close tears down the browser session.
	Close() error
}
