package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pevans/harvest/jsonfile"
)

// LedgerStore keeps the whole collection in memory and writes it to a single
// JSON file on Flush. The file is replaced atomically, so a crash loses the
// current run's articles but never corrupts earlier ones.
//
// A lock file next to the ledger keeps a second run from opening it, since
// the full rewrite would otherwise be last-writer-wins.
type LedgerStore struct {
	path     string
	lockPath string

	mu       sync.Mutex
	articles []Article
	index    map[string]struct{}
	dirty    bool
	closed   bool
}

// OpenLedgerStore locks and loads the ledger at path. A missing file is an
// empty collection.
func OpenLedgerStore(path string) (*LedgerStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	lockPath := path + ".lock"
	if err := acquireLock(lockPath); err != nil {
		return nil, err
	}

	articles, err := readLedger(path)
	if err != nil {
		os.Remove(lockPath)
		return nil, err
	}

	index := make(map[string]struct{}, len(articles))
	for _, a := range articles {
		index[a.URL] = struct{}{}
	}

	return &LedgerStore{
		path:     path,
		lockPath: lockPath,
		articles: articles,
		index:    index,
	}, nil
}

func acquireLock(lockPath string) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: remove %s if no run is in progress", ErrLocked, lockPath)
	}
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		os.Remove(lockPath)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

func readLedger(path string) ([]Article, error) {
	articles := []Article{}
	if _, err := jsonfile.Read(path, &articles); err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return articles, nil
}

// Accept appends article in memory. Nothing touches disk until Flush.
func (l *LedgerStore) Accept(_ context.Context, article Article) (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Accepted, &PersistError{URL: article.URL, Err: errors.New("ledger is closed")}
	}

	// The frontier already filtered seen URLs; this only guards against the
	// seen set and the ledger drifting apart.
	if _, ok := l.index[article.URL]; ok {
		return DuplicateSkipped, nil
	}

	l.index[article.URL] = struct{}{}
	l.articles = append(l.articles, article)
	l.dirty = true
	return Accepted, nil
}

// Flush writes the full collection if anything was accepted since the last
// flush.
func (l *LedgerStore) Flush(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.dirty {
		return nil
	}
	if err := jsonfile.Write(l.path, l.articles); err != nil {
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	l.dirty = false
	return nil
}

// Close releases the lock. Unflushed articles are discarded.
func (l *LedgerStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if err := os.Remove(l.lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (l *LedgerStore) List(_ context.Context, limit, offset int) ([]Article, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return page(l.articles, limit, offset), len(l.articles), nil
}

func (l *LedgerStore) Get(_ context.Context, url string) (*Article, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return findArticle(l.articles, url), nil
}

// Len returns the number of articles held, flushed or not.
func (l *LedgerStore) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.articles)
}

// LedgerReader serves reads from a ledger file without locking it.
type LedgerReader struct {
	path string
}

// NewLedgerReader creates a reader for the ledger at path.
func NewLedgerReader(path string) *LedgerReader {
	return &LedgerReader{path: path}
}

func (r *LedgerReader) List(_ context.Context, limit, offset int) ([]Article, int, error) {
	articles, err := readLedger(r.path)
	if err != nil {
		return nil, 0, err
	}
	return page(articles, limit, offset), len(articles), nil
}

func (r *LedgerReader) Get(_ context.Context, url string) (*Article, error) {
	articles, err := readLedger(r.path)
	if err != nil {
		return nil, err
	}
	return findArticle(articles, url), nil
}

func findArticle(articles []Article, url string) *Article {
	for i := range articles {
		if articles[i].URL == url {
			a := articles[i]
			return &a
		}
	}
	return nil
}
