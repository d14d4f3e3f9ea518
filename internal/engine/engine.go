// Package engine abstracts the launching and driving of one headless
// browser process. The pool never touches a concrete automation library;
// it owns Engine handles and hands out BrowsingContexts through scoped
// acquisition.
package engine

import "context"

// ContextOptions configures one isolated browsing context.
type ContextOptions struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
}

// DefaultContextOptions matches the scraper's desktop profile.
func DefaultContextOptions() ContextOptions {
	return ContextOptions{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122 Safari/537.36",
		ViewportWidth:  1280,
		ViewportHeight: 2000,
	}
}

// Launcher starts browser processes. Implementations are safe for
// concurrent use; the Engines they return are not and belong to exactly
// one worker at a time.
type Launcher interface {
	Launch(ctx context.Context) (Engine, error)
}

// Engine is one live browser process.
type Engine interface {
	NewContext(ctx context.Context, opts ContextOptions) (BrowsingContext, error)
	Close() error
}

// BrowsingContext is an isolated cookie/cache/storage silo within an Engine.
type BrowsingContext interface {
	NewPage() (Page, error)
	Close() error
}

// Page is a single tab ready to navigate.
type Page interface {
	Goto(url string) error
	Title() (string, error)
	Content() (string, error)
	Close() error
}
