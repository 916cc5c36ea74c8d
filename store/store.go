// Package store persists extracted articles. Two strategies satisfy the same
// Store contract: the ledger keeps a JSON snapshot and trusts the frontier to
// have removed duplicates, while the constraint stores insert each article
// and let a unique key on url reject repeats.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Custom errors for store operations
var (
	ErrUnknownType = errors.New("store type must be ledger, sqlite or postgres")
	ErrLocked      = errors.New("ledger is locked by another run")
)

// Store types accepted by Open.
const (
	TypeLedger   = "ledger"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// Article is one extracted record. The JSON field names match the
// articles.json ledger format.
type Article struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Date  string `json:"date"`
	Image string `json:"image"`
	Body  string `json:"body"`
}

// Outcome classifies a successful Accept call.
type Outcome int

const (
	// Accepted means the article was added to the collection.
	Accepted Outcome = iota
	// DuplicateSkipped means an article with the same URL already exists.
	DuplicateSkipped
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case DuplicateSkipped:
		return "duplicate"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Store accepts articles for durable storage.
type Store interface {
	// Accept adds article to the collection. A non-nil error is always a
	// *PersistError and leaves previously accepted articles untouched.
	Accept(ctx context.Context, article Article) (Outcome, error)
	// Flush makes every accepted article durable. Stores that write on
	// Accept treat it as a no-op.
	Flush(ctx context.Context) error
	Close() error
}

// Lister reads the collection back.
type Lister interface {
	// List returns up to limit articles starting at offset in acceptance
	// order, plus the total number stored. A limit <= 0 means no limit.
	List(ctx context.Context, limit, offset int) ([]Article, int, error)
	// Get returns the article stored under url, or nil if there is none.
	Get(ctx context.Context, url string) (*Article, error)
}

// PersistError reports a storage failure for one article.
type PersistError struct {
	URL string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.URL, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// IsConstraintType reports whether kind resolves duplicates at write time.
func IsConstraintType(kind string) bool {
	return kind == TypeSQLite || kind == TypePostgres
}

// Open returns the store for kind. For the ledger dsn is the articles.json
// path; for sqlite a database path; for postgres a connection string.
func Open(ctx context.Context, kind, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch kind {
	case TypeLedger:
		s, err = OpenLedgerStore(dsn)
	case TypeSQLite:
		s, err = NewSQLiteStore(dsn)
	case TypePostgres:
		s, err = NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenLister returns a read-only view of the collection for kind. The ledger
// view re-reads the file on every call and never takes the run lock.
func OpenLister(ctx context.Context, kind, dsn string) (Lister, func() error, error) {
	switch kind {
	case TypeLedger:
		return NewLedgerReader(dsn), func() error { return nil }, nil
	case TypeSQLite:
		s, err := NewSQLiteStore(dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case TypePostgres:
		s, err := NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
}

// page slices articles for List.
func page(articles []Article, limit, offset int) []Article {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(articles) {
		return []Article{}
	}
	end := len(articles)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]Article, end-offset)
	copy(out, articles[offset:end])
	return out
}
