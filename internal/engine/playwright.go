package engine

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// Chromium launch switches carried over from the production scraper; the
// dev-shm and backgrounding flags matter under Docker and long idle periods.
var chromiumArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-renderer-backgrounding",
	"--no-first-run",
	"--disable-extensions",
	"--disable-gpu",
	"--disable-software-rasterizer",
	"--disable-background-networking",
	"--disable-sync",
	"--no-default-browser-check",
	"--disable-client-side-phishing-detection",
}

// PlaywrightLauncher launches Chromium processes through a single shared
// Playwright driver. The driver connection is shared; each launched browser
// is an independent OS process owned by one worker.
type PlaywrightLauncher struct {
	headless bool

	once sync.Once
	pw   *playwright.Playwright
	err  error
}

func NewPlaywrightLauncher(headless bool) *PlaywrightLauncher {
	return &PlaywrightLauncher{headless: headless}
}

func (l *PlaywrightLauncher) driver() (*playwright.Playwright, error) {
	l.once.Do(func() {
		opts := &playwright.RunOptions{
			Verbose: false,
			Stdout:  io.Discard,
			Stderr:  io.Discard,
		}
		if err := playwright.Install(opts); err != nil {
			l.err = fmt.Errorf("install playwright: %w", err)
			return
		}
		l.pw, l.err = playwright.Run(opts)
		if l.err != nil {
			l.err = fmt.Errorf("start playwright: %w", l.err)
		}
	})
	return l.pw, l.err
}

func (l *PlaywrightLauncher) Launch(ctx context.Context) (Engine, error) {
	pw, err := l.driver()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.headless),
		Args:     chromiumArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &pwEngine{browser: browser}, nil
}

// Stop tears down the shared driver. Call only after every launched engine
// has been closed.
func (l *PlaywrightLauncher) Stop() error {
	if l.pw == nil {
		return nil
	}
	return l.pw.Stop()
}

type pwEngine struct {
	browser playwright.Browser
}

func (e *pwEngine) NewContext(ctx context.Context, opts ContextOptions) (BrowsingContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bc, err := e.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(opts.UserAgent),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	return &pwContext{ctx: bc}, nil
}

func (e *pwEngine) Close() error {
	return e.browser.Close()
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &pwPage{page: page}, nil
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(url string) error {
	_, err := p.page.Goto(url)
	return err
}

func (p *pwPage) Title() (string, error) {
	return p.page.Title()
}

func (p *pwPage) Content() (string, error) {
	return p.page.Content()
}

func (p *pwPage) Close() error {
	return p.page.Close()
}
