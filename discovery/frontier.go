package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/harvest/browser"
	"github.com/pevans/harvest/scraper"
	"github.com/pevans/harvest/seen"
)

// Frontier finds listing URLs that have not been processed by an earlier
// run.
type Frontier struct {
	config scraper.ListingConfig
	repo   seen.Repository
}

// NewFrontier creates a frontier. A nil repo disables the seen set: every
// discovered URL is new and nothing is persisted.
func NewFrontier(config scraper.ListingConfig, repo seen.Repository) *Frontier {
	return &Frontier{config: config, repo: repo}
}

// Discovery is the outcome of reading one listing page.
type Discovery struct {
	ListingURL string
	// Found holds every link on the listing page, in document order.
	Found []string
	// New holds the links absent from the prior seen set, in document
	// order. This is the batch handed to extraction.
	New []string
	// Skipped counts links that were already seen.
	Skipped int

	seen *seen.Set
}

// TotalSeen returns the size of the seen set after this discovery, or zero
// when the frontier has no repository.
func (d *Discovery) TotalSeen() int {
	if d.seen == nil {
		return 0
	}
	return d.seen.Len()
}

// Discover plans and commits in one step.
func (f *Frontier) Discover(ctx context.Context, page browser.Page, listingURL string) (*Discovery, error) {
	d, err := f.Plan(ctx, page, listingURL)
	if err != nil {
		return nil, err
	}
	if err := f.Commit(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Plan reads the listing page and diffs it against the seen set without
// persisting anything.
func (f *Frontier) Plan(ctx context.Context, page browser.Page, listingURL string) (*Discovery, error) {
	if err := page.Navigate(ctx, listingURL); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	if err := page.WaitFor(ctx, f.config.ContainerSelector); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	doc, err := page.Document(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	found := ExtractLinks(doc, f.config)

	d := &Discovery{
		ListingURL: listingURL,
		Found:      found,
		New:        []string{},
	}

	if f.repo == nil {
		// Without a seen set each URL is still only batched once per page.
		batch := seen.NewSet(found...)
		d.New = batch.URLs()
		d.Skipped = len(found) - batch.Len()
		return d, nil
	}

	prior, err := f.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	d.seen = prior.Clone()
	for _, u := range found {
		if d.seen.Add(u) {
			d.New = append(d.New, u)
		} else {
			d.Skipped++
		}
	}

	return d, nil
}

// Commit persists the batch and the updated seen set. The batch goes first:
// if the seen set write then fails, the next run rediscovers the same URLs
// instead of losing them.
func (f *Frontier) Commit(ctx context.Context, d *Discovery) error {
	if f.repo == nil || d.seen == nil {
		return nil
	}

	if err := f.repo.SaveBatch(ctx, d.New); err != nil {
		return fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	if err := f.repo.Save(ctx, d.seen); err != nil {
		return fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	return nil
}

// ExtractLinks returns the absolute URL of every link inside the listing
// container, in document order. Relative hrefs are resolved against the
// document's URL.
func ExtractLinks(doc *goquery.Document, config scraper.ListingConfig) []string {
	links := []string{}
	doc.Find(config.ContainerSelector).Find(config.LinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		links = append(links, resolveURL(doc.Url, href))
	})
	return links
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
