package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/harvest/browser"
	"github.com/pevans/harvest/events"
	"github.com/pevans/harvest/store"
)

// HarvestConfig holds configuration for a harvest run.
type HarvestConfig struct {
	// Listing page whose links are harvested
	ListingURL string
	// Discover and extract, but write nothing
	DryRun bool
	// Upper bound on the whole run; zero means unbounded
	MaxRunDuration time.Duration
	// Log every item
	Verbose bool
}

// Stages recorded in ItemError.
const (
	StageNavigate = "navigate"
	StageExtract  = "extract"
	StagePersist  = "persist"
)

// ItemError records a per-item failure. The run continues past it.
type ItemError struct {
	URL   string
	Stage string
	Err   error
}

// Summary is the observable result of one run.
type Summary struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time

	Found     int
	New       int
	Skipped   int
	TotalSeen int
	Success   int
	Duplicate int
	Failed    int

	DryRun bool
	// TimedOut is set when MaxRunDuration stopped extraction early.
	TimedOut bool
	// Interrupted is set when the caller's context stopped extraction early.
	Interrupted bool

	Errors []ItemError
}

func (s *Summary) recordFailure(url, stage string, err error) {
	s.Failed++
	s.Errors = append(s.Errors, ItemError{URL: url, Stage: stage, Err: err})
}

// Harvester runs discovery, extraction and persistence for one listing over
// a single browser session.
type Harvester struct {
	engine    browser.Engine
	frontier  *Frontier
	extractor *Extractor
	store     store.Store
	publisher events.Publisher
	config    *HarvestConfig
}

// NewHarvester creates a harvester. publisher may be nil.
func NewHarvester(
	engine browser.Engine,
	frontier *Frontier,
	extractor *Extractor,
	st store.Store,
	publisher events.Publisher,
	config *HarvestConfig,
) *Harvester {
	if config == nil {
		config = &HarvestConfig{}
	}

	return &Harvester{
		engine:    engine,
		frontier:  frontier,
		extractor: extractor,
		store:     st,
		publisher: publisher,
		config:    config,
	}
}

// Run performs one harvest. On a run-level failure (session, discovery,
// flush) it returns the partial summary alongside the error. Per-item
// failures only show up in the summary.
func (h *Harvester) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		DryRun:    h.config.DryRun,
	}
	defer func() { summary.FinishedAt = time.Now() }()

	runCtx, cancel := h.runContext(ctx)
	defer cancel()

	log.Printf("INFO: Run %s starting for %s", summary.RunID, h.config.ListingURL)

	session, err := h.engine.Open(runCtx)
	if err != nil {
		return summary, fmt.Errorf("failed to open browser session: %w", err)
	}
	sessionOpen := true
	closeSession := func() {
		if !sessionOpen {
			return
		}
		sessionOpen = false
		if err := session.Close(); err != nil {
			log.Printf("WARN: Failed to close browser session: %v", err)
		}
	}
	defer closeSession()

	batch, err := h.discover(runCtx, session, summary)
	if err != nil {
		return summary, err
	}
	if len(batch) == 0 {
		log.Printf("INFO: No new URLs to harvest")
		return summary, nil
	}

	accepted, err := h.extractAll(ctx, runCtx, session, batch, summary)
	closeSession()
	if err != nil {
		return summary, err
	}

	if h.config.DryRun {
		return summary, nil
	}

	// Flush even if the run context expired; partial results are kept.
	flushCtx := context.WithoutCancel(ctx)
	if err := h.store.Flush(flushCtx); err != nil {
		return summary, fmt.Errorf("failed to flush store: %w", err)
	}

	h.publish(flushCtx, summary.RunID.String(), accepted)

	return summary, nil
}

func (h *Harvester) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.config.MaxRunDuration > 0 {
		return context.WithTimeout(ctx, h.config.MaxRunDuration)
	}
	return context.WithCancel(ctx)
}

// discover runs the frontier on its own page, which is closed before
// extraction starts.
func (h *Harvester) discover(ctx context.Context, session browser.Session, summary *Summary) ([]string, error) {
	page, err := session.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open listing page: %w", ErrDiscovery, err)
	}
	defer page.Close()

	var d *Discovery
	if h.config.DryRun {
		d, err = h.frontier.Plan(ctx, page, h.config.ListingURL)
	} else {
		d, err = h.frontier.Discover(ctx, page, h.config.ListingURL)
	}
	if err != nil {
		return nil, err
	}

	summary.Found = len(d.Found)
	summary.New = len(d.New)
	summary.Skipped = d.Skipped
	summary.TotalSeen = d.TotalSeen()

	log.Printf("INFO: Found %d URLs on %s: %d new, %d skipped", summary.Found, h.config.ListingURL, summary.New, summary.Skipped)

	return d.New, nil
}

// extractAll extracts and stores each URL in order on one reused page. It
// returns the articles the store accepted.
func (h *Harvester) extractAll(
	parent, ctx context.Context,
	session browser.Session,
	batch []string,
	summary *Summary,
) ([]store.Article, error) {
	page, err := session.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open item page: %w", err)
	}
	defer page.Close()

	var accepted []store.Article
	for i, itemURL := range batch {
		if ctx.Err() != nil {
			h.markStopped(parent, summary, len(batch)-i)
			break
		}

		if h.config.Verbose {
			log.Printf("INFO: Harvesting %d/%d: %s", i+1, len(batch), itemURL)
		}

		article, err := h.extractor.Extract(ctx, page, itemURL)
		if err != nil {
			stage := StageNavigate
			if errors.Is(err, ErrNoBody) {
				stage = StageExtract
			}
			summary.recordFailure(itemURL, stage, err)
			log.Printf("WARN: Failed to harvest %s: %v", itemURL, err)
			continue
		}

		if h.config.DryRun {
			summary.Success++
			continue
		}

		outcome, err := h.store.Accept(ctx, *article)
		if err != nil {
			summary.recordFailure(itemURL, StagePersist, err)
			log.Printf("ERROR: Failed to store %s: %v", itemURL, err)
			continue
		}

		switch outcome {
		case store.DuplicateSkipped:
			summary.Duplicate++
			if h.config.Verbose {
				log.Printf("INFO: Duplicate skipped: %s", itemURL)
			}
		default:
			summary.Success++
			accepted = append(accepted, *article)
			if h.config.Verbose {
				log.Printf("INFO: Stored: %s", article.Title)
			}
		}
	}

	return accepted, nil
}

func (h *Harvester) markStopped(parent context.Context, summary *Summary, remaining int) {
	if parent.Err() != nil {
		summary.Interrupted = true
		log.Printf("WARN: Run interrupted with %d URLs remaining", remaining)
		return
	}
	summary.TimedOut = true
	log.Printf("WARN: Run exceeded %v with %d URLs remaining", h.config.MaxRunDuration, remaining)
}

func (h *Harvester) publish(ctx context.Context, runID string, accepted []store.Article) {
	if h.publisher == nil || len(accepted) == 0 {
		return
	}
	if err := h.publisher.Publish(ctx, runID, accepted); err != nil {
		log.Printf("WARN: Failed to publish %d articles: %v", len(accepted), err)
	}
}
