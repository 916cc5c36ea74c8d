package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Lifecycle event emitted when at most two connections have been open for
// 500ms. Matches puppeteer's "networkidle2".
const networkIdleEvent = "networkAlmostIdle"

// ChromeEngine drives a local headless Chrome over the DevTools protocol.
type ChromeEngine struct {
	opts Options
}

// NewChromeEngine creates a chromedp engine.
func NewChromeEngine(opts Options) *ChromeEngine {
	return &ChromeEngine{opts: opts}
}

// Open launches the browser. The session outlives ctx's cancellation; it is
// torn down only by Close.
func (e *ChromeEngine) Open(ctx context.Context) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", e.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if e.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(e.opts.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser. It must use browserCtx itself: a
	// derived timeout would kill the whole browser when it fires.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &chromeSession{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		opts:          e.opts,
	}, nil
}

type chromeSession struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	opts          Options

	closeOnce sync.Once
	closeErr  error
}

// NewPage opens a new tab.
func (s *chromeSession) NewPage(_ context.Context) (Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)

	p := &chromePage{
		ctx:    tabCtx,
		cancel: cancelTab,
		opts:   s.opts,
		idle:   make(chan cdp.FrameID, 32),
	}
	chromedp.ListenTarget(tabCtx, p.onEvent)

	// As with the browser, the tab is created by the first Run on its own
	// context.
	if err := chromedp.Run(tabCtx, page.SetLifecycleEventsEnabled(true)); err != nil {
		cancelTab()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		p.mu.Lock()
		p.mainFrame = cdp.FrameID(c.Target.TargetID)
		p.mu.Unlock()
	}

	return p, nil
}

// Close shuts the browser down. Safe to call more than once.
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.browserCtx)
		s.cancelBrowser()
		s.cancelAlloc()
		if errors.Is(s.closeErr, context.Canceled) {
			s.closeErr = nil
		}
	})
	return s.closeErr
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options

	mu        sync.Mutex
	mainFrame cdp.FrameID

	idle chan cdp.FrameID
}

func (p *chromePage) onEvent(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || e.Name != networkIdleEvent {
		return
	}
	select {
	case p.idle <- e.FrameID:
	default:
	}
}

func (p *chromePage) isMainFrame(id cdp.FrameID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mainFrame == "" || p.mainFrame == id
}

// drainIdle discards idle events left over from the previous document.
func (p *chromePage) drainIdle() {
	for {
		select {
		case <-p.idle:
		default:
			return
		}
	}
}

// Navigate loads url and waits for the main frame's network to go idle.
func (p *chromePage) Navigate(ctx context.Context, target string) error {
	runCtx, cancel := boundedContext(p.ctx, ctx, p.opts.NavigationTimeout)
	defer cancel()

	p.drainIdle()
	if err := chromedp.Run(runCtx, chromedp.Navigate(target)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", target, err)
	}

	for {
		select {
		case frame := <-p.idle:
			if p.isMainFrame(frame) {
				return nil
			}
		case <-runCtx.Done():
			return fmt.Errorf("timed out waiting for network idle on %s: %w", target, runCtx.Err())
		}
	}
}

func (p *chromePage) WaitFor(ctx context.Context, selector string) error {
	runCtx, cancel := boundedContext(p.ctx, ctx, p.opts.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSelectorNotFound, selector, err)
	}
	return nil
}

func (p *chromePage) Document(ctx context.Context) (*goquery.Document, error) {
	runCtx, cancel := boundedContext(p.ctx, ctx, p.opts.NavigationTimeout)
	defer cancel()

	var location, html string
	err := chromedp.Run(runCtx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read DOM: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if u, err := url.Parse(location); err == nil {
		doc.Url = u
	}

	return doc, nil
}

// Close closes the tab.
func (p *chromePage) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
