// Package browser abstracts the rendering engine used to load listing and
// article pages. A Session is one browser process; a Page is one tab inside
// it. Pages expose the rendered DOM as a goquery document so extraction code
// never touches the engine directly.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Custom errors for browser operations
var (
	ErrSelectorNotFound = errors.New("selector did not appear")
	ErrNoDocument       = errors.New("page has not been navigated")
	ErrUnknownEngine    = errors.New("engine must be chromedp or http")
)

// Engine names accepted by New.
const (
	EngineChrome = "chromedp"
	EngineHTTP   = "http"
)

// Engine starts browser sessions.
type Engine interface {
	Open(ctx context.Context) (Session, error)
}

// Session owns the browser for the duration of one run.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single navigable tab.
type Page interface {
	// Navigate loads url and returns once the network is idle.
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until selector matches an element in the current
	// document. It returns ErrSelectorNotFound if it never does.
	WaitFor(ctx context.Context, selector string) error
	// Document snapshots the current DOM. The document's Url is the page's
	// final location.
	Document(ctx context.Context) (*goquery.Document, error)
	Close() error
}

// Options configures an engine.
type Options struct {
	Headless bool
	// UserAgent overrides the engine's default User-Agent header.
	UserAgent string
	// NavigationTimeout bounds each Navigate and WaitFor call. Zero means
	// the caller's context is the only bound.
	NavigationTimeout time.Duration
	// HTTPClient is used by the http engine. Defaults to a client with a
	// NavigationTimeout timeout.
	HTTPClient *http.Client
}

// DefaultOptions returns options for a headless browser with a 30 second
// navigation budget.
func DefaultOptions() Options {
	return Options{
		Headless:          true,
		NavigationTimeout: 30 * time.Second,
	}
}

// New returns the engine registered under name.
func New(name string, opts Options) (Engine, error) {
	switch name {
	case EngineChrome:
		return NewChromeEngine(opts), nil
	case EngineHTTP:
		return NewHTTPEngine(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
}

// boundedContext derives a context from parent that is cancelled after
// timeout (when positive) or when ctx is done, whichever comes first.
// parent carries engine state; ctx carries the caller's deadline.
func boundedContext(parent, ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(parent, timeout)
	} else {
		runCtx, cancel = context.WithCancel(parent)
	}

	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}
