package pool

import (
	"context"
	"sync"

	"github.com/newswatch/browserpool/internal/engine"
)

// fakeEngine stands in for a live browser process.
type fakeEngine struct {
	mu       sync.Mutex
	closed   bool
	closeErr error
}

func (e *fakeEngine) NewContext(ctx context.Context, opts engine.ContextOptions) (engine.BrowsingContext, error) {
	return &fakeContext{}, nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return e.closeErr
}

func (e *fakeEngine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type fakeContext struct {
	closed bool
}

func (c *fakeContext) NewPage() (engine.Page, error) {
	return &fakePage{}, nil
}

func (c *fakeContext) Close() error {
	c.closed = true
	return nil
}

type fakePage struct {
	gotoURL string
	closed  bool
}

func (p *fakePage) Goto(url string) error {
	p.gotoURL = url
	return nil
}

func (p *fakePage) Title() (string, error)   { return "Example Domain", nil }
func (p *fakePage) Content() (string, error) { return "<html></html>", nil }
func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

// fakeLauncher launches fakeEngines and can be told to fail.
type fakeLauncher struct {
	mu       sync.Mutex
	launched []*fakeEngine
	failures int // fail this many launches, then succeed
	failErr  error
}

func (l *fakeLauncher) Launch(ctx context.Context) (engine.Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures > 0 {
		l.failures--
		return nil, l.failErr
	}
	eng := &fakeEngine{}
	l.launched = append(l.launched, eng)
	return eng, nil
}

func (l *fakeLauncher) LaunchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launched)
}
