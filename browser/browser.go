// Package browser manages the headless Chrome session used by the
// scrapers: launch, stealth, time-based recycling, and tab plumbing.
//
// Scrapers depend on the Session/Page interfaces, not on Rod directly,
// so tests can substitute a fake page tree. The live implementation
// wraps go-rod. The session is exclusively owned by one scraper at a
// time; the pipeline serializes stages, so no locking is needed above
// the manager's own.
package browser

import "context"

// Session is the browser-automation capability consumed by scrapers.
type Session interface {
	// Open navigates a fresh tab to url and waits for load.
	Open(ctx context.Context, url string) (Page, error)
	// Close shuts the browser down. Must be called on every exit path.
	Close() error
}

// Page is one open tab.
type Page interface {
	// Elements returns all nodes matching the CSS selector.
	Elements(ctx context.Context, selector string) ([]Element, error)
	// ScrollToBottom scrolls to the end of the document, triggering
	// lazy-loaded content on infinite-scroll pages.
	ScrollToBottom(ctx context.Context) error
	// HTML serialises the current DOM as outer HTML.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Element is one DOM node.
type Element interface {
	Text() (string, error)
	Attr(name string) (string, error)
	// HTML serialises the node as outer HTML.
	HTML() (string, error)
	// Find returns the first descendant matching the CSS selector,
	// or nil when nothing matches.
	Find(selector string) (Element, error)
}
