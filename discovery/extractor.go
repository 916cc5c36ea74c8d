package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/harvest/browser"
	"github.com/pevans/harvest/scraper"
	"github.com/pevans/harvest/store"
)

// Extractor turns item pages into articles.
type Extractor struct {
	config scraper.ArticleConfig
}

// NewExtractor creates an extractor using config's selectors.
func NewExtractor(config scraper.ArticleConfig) *Extractor {
	return &Extractor{config: config}
}

// Extract navigates page to itemURL and extracts the article. It returns an
// error wrapping ErrNavigation if the page could not be loaded and ErrNoBody
// if the page has no article body.
func (e *Extractor) Extract(ctx context.Context, page browser.Page, itemURL string) (*store.Article, error) {
	if err := page.Navigate(ctx, itemURL); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNavigation, err)
	}

	doc, err := page.Document(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNavigation, err)
	}

	return ExtractArticle(doc, e.config, itemURL)
}

// ExtractArticle extracts an article from a rendered item page. Missing
// title, date and image yield empty strings; a missing body container yields
// ErrNoBody.
func ExtractArticle(doc *goquery.Document, config scraper.ArticleConfig, articleURL string) (*store.Article, error) {
	body := doc.Find(config.BodySelector).First()
	if body.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBody, articleURL)
	}

	image, _ := doc.Find(config.ImageSelector).First().Attr(config.ImageAttr)

	fragment, err := truncateBody(body, config)
	if err != nil {
		return nil, err
	}

	return &store.Article{
		URL:   articleURL,
		Title: collapseText(doc.Find(config.TitleSelector).First()),
		Date:  collapseText(doc.Find(config.DateSelector).First()),
		Image: strings.TrimSpace(image),
		Body:  fragment,
	}, nil
}

// truncateBody joins the outer HTML of body's element children, stopping
// once SectionLimit section-opening children have been included. The child
// that reaches the limit is itself included.
func truncateBody(body *goquery.Selection, config scraper.ArticleConfig) (string, error) {
	var parts []string
	sections := 0

	var renderErr error
	body.Children().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		html, err := goquery.OuterHtml(child)
		if err != nil {
			renderErr = fmt.Errorf("failed to render body element: %w", err)
			return false
		}
		parts = append(parts, html)

		if isSectionStart(child, config) {
			sections++
		}
		return sections < config.SectionLimit
	})
	if renderErr != nil {
		return "", renderErr
	}

	return strings.Join(parts, "\n"), nil
}

func isSectionStart(el *goquery.Selection, config scraper.ArticleConfig) bool {
	return strings.EqualFold(goquery.NodeName(el), config.SectionTag) &&
		el.Find(config.SectionMarker).Length() > 0
}

// collapseText returns the selection's text with runs of whitespace
// collapsed to single spaces.
func collapseText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
