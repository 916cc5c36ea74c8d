package scraper

// ScraperConfig defines how to discover and extract articles from one
// website.
type ScraperConfig struct {
	Listing ListingConfig `json:"listing" yaml:"listing"`
	Article ArticleConfig `json:"article" yaml:"article"`
}

// ListingConfig defines how to find item links on the listing page.
type ListingConfig struct {
	// ContainerSelector must match before links are read. Its absence means
	// the listing never rendered.
	ContainerSelector string `json:"container_selector" yaml:"container_selector"`
	// LinkSelector is evaluated inside the container; one URL per match.
	LinkSelector string `json:"link_selector" yaml:"link_selector"`
}

// ArticleConfig defines how to extract a record from an item page.
type ArticleConfig struct {
	BodySelector  string `json:"body_selector" yaml:"body_selector"`
	TitleSelector string `json:"title_selector" yaml:"title_selector"`
	DateSelector  string `json:"date_selector" yaml:"date_selector"`
	ImageSelector string `json:"image_selector" yaml:"image_selector"`
	ImageAttr     string `json:"image_attr" yaml:"image_attr"`

	// A body child named SectionTag that contains SectionMarker starts a
	// section. Accumulation stops once SectionLimit sections are included.
	SectionTag    string `json:"section_tag" yaml:"section_tag"`
	SectionMarker string `json:"section_marker" yaml:"section_marker"`
	SectionLimit  int    `json:"section_limit" yaml:"section_limit"`
}

// Default selectors for the unread.today category pages.
const (
	DefaultContainerSelector = "#articles1-body"
	DefaultLinkSelector      = "h3.title a"
	DefaultBodySelector      = ".article-body.no-wide-image"
	DefaultTitleSelector     = "h1.uk-article-title"
	DefaultDateSelector      = ".uk-article-meta span"
	DefaultImageSelector     = `meta[property="og:image"]`
	DefaultImageAttr         = "content"
	DefaultSectionTag        = "p"
	DefaultSectionMarker     = "b"
	DefaultSectionLimit      = 3
)

// NewScraperConfig returns a configuration with every default selector set.
func NewScraperConfig() ScraperConfig {
	var cfg ScraperConfig
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in any empty field with its default.
func (c *ScraperConfig) ApplyDefaults() {
	l := &c.Listing
	setDefault(&l.ContainerSelector, DefaultContainerSelector)
	setDefault(&l.LinkSelector, DefaultLinkSelector)

	a := &c.Article
	setDefault(&a.BodySelector, DefaultBodySelector)
	setDefault(&a.TitleSelector, DefaultTitleSelector)
	setDefault(&a.DateSelector, DefaultDateSelector)
	setDefault(&a.ImageSelector, DefaultImageSelector)
	setDefault(&a.ImageAttr, DefaultImageAttr)
	setDefault(&a.SectionTag, DefaultSectionTag)
	setDefault(&a.SectionMarker, DefaultSectionMarker)
	if a.SectionLimit <= 0 {
		a.SectionLimit = DefaultSectionLimit
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
