package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pevans/harvest/jsonfile"
	"github.com/pevans/harvest/scraper"
	"github.com/pevans/harvest/seen"
	"github.com/pevans/harvest/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: wire a harvester over a fake engine with a ledger store and a
// file seen repository in a temp dir
type harvestFixture struct {
	engine    *fakeEngine
	dir       string
	ledger    *store.LedgerStore
	repo      *seen.FileRepository
	publisher *recordingPublisher
	config    *HarvestConfig
}

func newHarvestFixture(t *testing.T, pages map[string]string) *harvestFixture {
	dir := t.TempDir()
	ledger, err := store.OpenLedgerStore(filepath.Join(dir, "articles.json"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	return &harvestFixture{
		engine:    newFakeEngine(pages),
		dir:       dir,
		ledger:    ledger,
		repo:      seen.NewFileRepository(dir),
		publisher: &recordingPublisher{},
		config:    &HarvestConfig{ListingURL: listingURL},
	}
}

func (f *harvestFixture) harvester(st store.Store, repo seen.Repository) *Harvester {
	cfg := scraper.NewScraperConfig()
	return NewHarvester(
		f.engine,
		NewFrontier(cfg.Listing, repo),
		NewExtractor(cfg.Article),
		st,
		f.publisher,
		f.config,
	)
}

func (f *harvestFixture) run(t *testing.T) *Summary {
	summary, err := f.harvester(f.ledger, f.repo).Run(context.Background())
	require.NoError(t, err)
	return summary
}

func (f *harvestFixture) storedArticles(t *testing.T) []store.Article {
	var articles []store.Article
	_, err := jsonfile.Read(filepath.Join(f.dir, "articles.json"), &articles)
	require.NoError(t, err)
	return articles
}

func itemURL(path string) string {
	return "https://unread.today" + path
}

// TestHarvester_FailureIsolation verifies a bad item does not stop the run
func TestHarvester_FailureIsolation(t *testing.T) {
	pages := map[string]string{
		listingURL:      listingHTML("/a/1", "/a/2", "/a/3", "/a/4", "/a/5"),
		itemURL("/a/1"): articleHTML("one", `<p>1</p>`),
		itemURL("/a/2"): articleHTML("two", `<p>2</p>`),
		itemURL("/a/3"): `<html><body><h1 class="uk-article-title">three</h1></body></html>`,
		itemURL("/a/4"): articleHTML("four", `<p>4</p>`),
		itemURL("/a/5"): articleHTML("five", `<p>5</p>`),
	}
	f := newHarvestFixture(t, pages)

	summary := f.run(t)

	assert.Equal(t, 5, summary.Found)
	assert.Equal(t, 5, summary.New)
	assert.Equal(t, 4, summary.Success)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Duplicate)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, itemURL("/a/3"), summary.Errors[0].URL)
	assert.Equal(t, StageExtract, summary.Errors[0].Stage)
	assert.ErrorIs(t, summary.Errors[0].Err, ErrNoBody)

	assert.Equal(t, []string{
		listingURL,
		itemURL("/a/1"), itemURL("/a/2"), itemURL("/a/3"), itemURL("/a/4"), itemURL("/a/5"),
	}, f.engine.navigated(), "items after the failure are still visited in order")

	stored := f.storedArticles(t)
	require.Len(t, stored, 4)
	assert.Equal(t, "one", stored[0].Title)
	assert.Equal(t, "five", stored[3].Title)
	assert.True(t, f.engine.allSessionsClosed())
}

func TestHarvester_NavigationFailureStage(t *testing.T) {
	f := newHarvestFixture(t, map[string]string{
		listingURL:      listingHTML("/a/1", "/gone"),
		itemURL("/a/1"): articleHTML("one", `<p>1</p>`),
	})

	summary := f.run(t)

	assert.Equal(t, 1, summary.Success)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, StageNavigate, summary.Errors[0].Stage)
	assert.ErrorIs(t, summary.Errors[0].Err, ErrNavigation)
}

// TestHarvester_DuplicateIsNotFailure verifies a constraint store's
// duplicate rejection is counted separately from failures
func TestHarvester_DuplicateIsNotFailure(t *testing.T) {
	f := newHarvestFixture(t, map[string]string{
		listingURL:      listingHTML("/a/1", "/a/2"),
		itemURL("/a/1"): articleHTML("one", `<p>1</p>`),
		itemURL("/a/2"): articleHTML("two", `<p>2</p>`),
	})

	db, err := store.NewSQLiteStore(filepath.Join(f.dir, "harvest.db"))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Accept(context.Background(), store.Article{URL: itemURL("/a/1"), Body: "<p>earlier</p>"})
	require.NoError(t, err)

	summary, err := f.harvester(db, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.New, "constraint stores re-batch every listed URL")
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Duplicate)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, summary.Errors)

	_, total, err := db.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

// TestHarvester_EmptyBatch verifies nothing is extracted and the session is
// released when there is nothing new
func TestHarvester_EmptyBatch(t *testing.T) {
	f := newHarvestFixture(t, map[string]string{
		listingURL: listingHTML(),
	})

	summary := f.run(t)

	assert.Equal(t, 0, summary.Found)
	assert.Equal(t, 0, summary.New)
	assert.Equal(t, 0, summary.Success+summary.Duplicate+summary.Failed)
	assert.Equal(t, []string{listingURL}, f.engine.navigated())
	assert.True(t, f.engine.allSessionsClosed())
	assert.Nil(t, f.publisher.published)
}

// TestHarvester_SecondRunIsIncremental verifies already seen URLs are not
// fetched again and the ledger has no duplicates
func TestHarvester_SecondRunIsIncremental(t *testing.T) {
	pages := map[string]string{
		listingURL:      listingHTML("/a/1", "/a/2"),
		itemURL("/a/1"): articleHTML("one", `<p>1</p>`),
		itemURL("/a/2"): articleHTML("two", `<p>2</p>`),
	}
	f := newHarvestFixture(t, pages)

	first := f.run(t)
	assert.Equal(t, 2, first.Success)
	assert.Equal(t, 2, first.TotalSeen)

	pages[listingURL] = listingHTML("/a/3", "/a/1", "/a/2")
	pages[itemURL("/a/3")] = articleHTML("three", `<p>3</p>`)

	second := f.run(t)
	assert.Equal(t, 3, second.Found)
	assert.Equal(t, 1, second.New)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 1, second.Success)
	assert.Equal(t, 3, second.TotalSeen)

	stored := f.storedArticles(t)
	require.Len(t, stored, 3)
	assert.Equal(t, []string{itemURL("/a/1"), itemURL("/a/2"), itemURL("/a/3")},
		[]string{stored[0].URL, stored[1].URL, stored[2].URL})
	assert.NotEqual(t, first.RunID, second.RunID)
}

// TestHarvester_RunDeadline verifies the run stops at MaxRunDuration and
// keeps what was already extracted
func TestHarvester_RunDeadline(t *testing.T) {
	f := newHarvestFixture(t, map[string]string{
		listingURL:      listingHTML("/a/1", "/slow", "/a/3"),
		itemURL("/a/1"): articleHTML("one", `<p>1</p>`),
		itemURL("/a/3"): articleHTML("three", `<p>3</p>`),
	})
	f.engine.hang[itemURL("/slow")] = true
	f.config.MaxRunDuration = 200 * time.Millisecond

	summary := f.run(t)

	assert.True(t, summary.TimedOut)
	assert.False(t, summary.Interrupted)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Failed)
	assert.NotContains(t, f.engine.navigated(), itemURL("/a/3"))

	stored := f.storedArticles(t)
	require.Len(t, stored, 1, "articles accepted before the deadline are flushed")
	assert.Equal(t, itemURL("/a/1"), stored[0].URL)
	assert.True(t, f.engine.allSessionsClosed())
}

func TestHarvester_Interrupted(t *testing.T) {
	f := newHarvestFixture(t, map[string]string{
		listingURL:      listingHTML("/a/1", "/slow", "/a/3"),
		itemURL("/a/1"): articleHTML("one", `<p>1</p>`),
		itemURL("/a/3"): articleHTML("three", `<p>3</p>`),
	})
	f.engine.hang[itemURL("/slow")] = true

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	summary, err := f.harvester(f.ledger, f.repo).Run(ctx)
	require.NoError(t, err)

	assert.True(t, summary.Interrupted)
	assert.False(t, summary.TimedOut)
	assert.Len(t, f.storedArticles(t), 1)
}

// TestHarvester_DryRun verifies nothing is written
func TestHarvester_DryRun(t *testing.T) {
	f := newHarvestFixture(t, map[string]string{
		listingURL:      listingHTML("/a/1", "/a/2"),
		itemURL("/a/1"): articleHTML("one", `<p>1</p>`),
	})
	f.config.DryRun = true

	summary := f.run(t)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.New)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Failed)

	for _, name := range []string{seen.SeenFileName, seen.BatchFileName, "articles.json"} {
		_, err := os.Stat(filepath.Join(f.dir, name))
		assert.True(t, os.IsNotExist(err), "%s must not be written", name)
	}
	assert.Nil(t, f.publisher.published)
}

func TestHarvester_PublishesAcceptedArticles(t *testing.T) {
	f := newHarvestFixture(t, map[string]string{
		listingURL:      listingHTML("/a/1", "/a/2"),
		itemURL("/a/1"): articleHTML("one", `<p>1</p>`),
		itemURL("/a/2"): `<html><body></body></html>`,
	})

	summary := f.run(t)

	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, itemURL("/a/1"), f.publisher.published[0].URL)
	assert.Equal(t, summary.RunID.String(), f.publisher.runID)
}

func TestHarvester_PublishFailureIsNotFatal(t *testing.T) {
	f := newHarvestFixture(t, map[string]string{
		listingURL:      listingHTML("/a/1"),
		itemURL("/a/1"): articleHTML("one", `<p>1</p>`),
	})
	f.publisher.err = assert.AnError

	summary := f.run(t)
	assert.Equal(t, 1, summary.Success)
	assert.Len(t, f.storedArticles(t), 1)
}

// TestHarvester_DiscoveryFailure verifies a broken listing aborts the run
// before any item work
func TestHarvester_DiscoveryFailure(t *testing.T) {
	f := newHarvestFixture(t, map[string]string{
		listingURL: `<html><body>down for maintenance</body></html>`,
	})

	summary, err := f.harvester(f.ledger, f.repo).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiscovery)
	require.NotNil(t, summary)
	assert.Equal(t, []string{listingURL}, f.engine.navigated())
	assert.True(t, f.engine.allSessionsClosed())
}

func TestHarvester_PersistFailure(t *testing.T) {
	f := newHarvestFixture(t, map[string]string{
		listingURL:      listingHTML("/a/1"),
		itemURL("/a/1"): articleHTML("one", `<p>1</p>`),
	})
	require.NoError(t, f.ledger.Close())

	summary, err := f.harvester(f.ledger, f.repo).Run(context.Background())
	require.NoError(t, err, "a persist failure is per item")

	assert.Equal(t, 0, summary.Success)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, StagePersist, summary.Errors[0].Stage)
	var persistErr *store.PersistError
	assert.ErrorAs(t, summary.Errors[0].Err, &persistErr)
}
