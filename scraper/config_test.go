package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNewScraperConfig verifies every default selector is set
func TestNewScraperConfig(t *testing.T) {
	cfg := NewScraperConfig()

	assert.Equal(t, "#articles1-body", cfg.Listing.ContainerSelector)
	assert.Equal(t, "h3.title a", cfg.Listing.LinkSelector)
	assert.Equal(t, ".article-body.no-wide-image", cfg.Article.BodySelector)
	assert.Equal(t, "h1.uk-article-title", cfg.Article.TitleSelector)
	assert.Equal(t, ".uk-article-meta span", cfg.Article.DateSelector)
	assert.Equal(t, `meta[property="og:image"]`, cfg.Article.ImageSelector)
	assert.Equal(t, "content", cfg.Article.ImageAttr)
	assert.Equal(t, "p", cfg.Article.SectionTag)
	assert.Equal(t, "b", cfg.Article.SectionMarker)
	assert.Equal(t, 3, cfg.Article.SectionLimit)
}

// TestApplyDefaults_KeepsOverrides verifies explicit values are not replaced
func TestApplyDefaults_KeepsOverrides(t *testing.T) {
	cfg := ScraperConfig{
		Listing: ListingConfig{LinkSelector: "a.headline"},
		Article: ArticleConfig{SectionMarker: "strong", SectionLimit: 5},
	}

	cfg.ApplyDefaults()

	assert.Equal(t, "a.headline", cfg.Listing.LinkSelector)
	assert.Equal(t, DefaultContainerSelector, cfg.Listing.ContainerSelector)
	assert.Equal(t, "strong", cfg.Article.SectionMarker)
	assert.Equal(t, 5, cfg.Article.SectionLimit)
	assert.Equal(t, DefaultBodySelector, cfg.Article.BodySelector)
}

// TestApplyDefaults_NonPositiveLimit verifies a zero or negative limit is
// replaced
func TestApplyDefaults_NonPositiveLimit(t *testing.T) {
	cfg := ScraperConfig{Article: ArticleConfig{SectionLimit: -1}}
	cfg.ApplyDefaults()
	assert.Equal(t, DefaultSectionLimit, cfg.Article.SectionLimit)
}
