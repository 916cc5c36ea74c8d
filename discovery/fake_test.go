package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/harvest/browser"
	"github.com/pevans/harvest/seen"
	"github.com/pevans/harvest/store"
)

// fakeEngine serves canned HTML by URL. Navigating to a URL that is not in
// pages fails; a URL listed in hang blocks until the context is done.
type fakeEngine struct {
	pages map[string]string
	hang  map[string]bool

	mu          sync.Mutex
	navigations []string
	pagesOpened int
	sessions    []*fakeSession
}

func newFakeEngine(pages map[string]string) *fakeEngine {
	return &fakeEngine{pages: pages, hang: map[string]bool{}}
}

func (e *fakeEngine) Open(_ context.Context) (browser.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &fakeSession{engine: e}
	e.sessions = append(e.sessions, s)
	return s, nil
}

func (e *fakeEngine) navigated() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.navigations))
	copy(out, e.navigations)
	return out
}

func (e *fakeEngine) allSessionsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sessions {
		if !s.closed {
			return false
		}
	}
	return len(e.sessions) > 0
}

type fakeSession struct {
	engine *fakeEngine
	closed bool
}

func (s *fakeSession) NewPage(_ context.Context) (browser.Page, error) {
	s.engine.mu.Lock()
	s.engine.pagesOpened++
	s.engine.mu.Unlock()
	return &fakePage{engine: s.engine}, nil
}

func (s *fakeSession) Close() error {
	s.engine.mu.Lock()
	s.closed = true
	s.engine.mu.Unlock()
	return nil
}

type fakePage struct {
	engine *fakeEngine
	doc    *goquery.Document
}

func (p *fakePage) Navigate(ctx context.Context, target string) error {
	p.engine.mu.Lock()
	p.engine.navigations = append(p.engine.navigations, target)
	html, ok := p.engine.pages[target]
	hang := p.engine.hang[target]
	p.engine.mu.Unlock()

	p.doc = nil
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", target)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	doc.Url, _ = url.Parse(target)
	p.doc = doc
	return nil
}

func (p *fakePage) WaitFor(_ context.Context, selector string) error {
	if p.doc == nil {
		return browser.ErrNoDocument
	}
	if p.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", browser.ErrSelectorNotFound, selector)
	}
	return nil
}

func (p *fakePage) Document(_ context.Context) (*goquery.Document, error) {
	if p.doc == nil {
		return nil, browser.ErrNoDocument
	}
	return p.doc, nil
}

func (p *fakePage) Close() error { return nil }

// failingRepo loads an empty set and fails every write.
type failingRepo struct{}

var errRepoDown = errors.New("repository unavailable")

func (failingRepo) Load(context.Context) (*seen.Set, error) { return seen.NewSet(), nil }

func (failingRepo) Save(context.Context, *seen.Set) error { return errRepoDown }

func (failingRepo) SaveBatch(context.Context, []string) error { return errRepoDown }

// recordingPublisher keeps every published batch.
type recordingPublisher struct {
	runID     string
	published []store.Article
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, runID string, articles []store.Article) error {
	p.runID = runID
	p.published = append(p.published, articles...)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// Test helpers: HTML builders
func listingHTML(hrefs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="articles1-body">`)
	for i, h := range hrefs {
		fmt.Fprintf(&b, `<div class="item"><h3 class="title"><a href="%s">Item %d</a></h3></div>`, h, i)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func articleHTML(title string, children ...string) string {
	return `<html><head><meta property="og:image" content="https://cdn.example.com/` + title + `.jpg"></head><body>` +
		`<h1 class="uk-article-title">` + title + `</h1>` +
		`<div class="uk-article-meta"><span>14 October 2026</span></div>` +
		`<div class="article-body no-wide-image">` + strings.Join(children, "") + `</div>` +
		`</body></html>`
}
