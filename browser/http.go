package browser

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

const defaultUserAgent = "harvest/1.0 (incremental article harvester)"

// HTTPEngine loads pages with plain GET requests. Scripts are not executed,
// so the document is final as soon as the response body is parsed.
type HTTPEngine struct {
	client    *http.Client
	userAgent string
}

// NewHTTPEngine creates an http engine.
func NewHTTPEngine(opts Options) *HTTPEngine {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.NavigationTimeout}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &HTTPEngine{client: client, userAgent: userAgent}
}

// Open returns a session sharing the engine's client.
func (e *HTTPEngine) Open(_ context.Context) (Session, error) {
	return &httpSession{engine: e}, nil
}

type httpSession struct {
	engine *HTTPEngine
}

func (s *httpSession) NewPage(_ context.Context) (Page, error) {
	return &httpPage{engine: s.engine}, nil
}

func (s *httpSession) Close() error {
	s.engine.client.CloseIdleConnections()
	return nil
}

type httpPage struct {
	engine *HTTPEngine

	mu  sync.Mutex
	doc *goquery.Document
}

// Navigate fetches url and parses the response.
func (p *httpPage) Navigate(ctx context.Context, url string) error {
	doc, err := p.fetch(ctx, url)
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
	return err
}

func (p *httpPage) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.engine.userAgent)

	resp, err := p.engine.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Redirects are followed, so resolve links against where we landed.
	doc.Url = resp.Request.URL

	return doc, nil
}

// WaitFor checks the already loaded document; there is nothing to wait for
// without scripts.
func (p *httpPage) WaitFor(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.doc == nil {
		return ErrNoDocument
	}
	if p.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", ErrSelectorNotFound, selector)
	}
	return nil
}

func (p *httpPage) Document(_ context.Context) (*goquery.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.doc == nil {
		return nil, ErrNoDocument
	}
	return p.doc, nil
}

func (p *httpPage) Close() error {
	p.mu.Lock()
	p.doc = nil
	p.mu.Unlock()
	return nil
}
