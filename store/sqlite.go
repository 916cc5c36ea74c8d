package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore inserts each article into a table keyed uniquely on url.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new article store with the given database path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the articles table if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		url TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Accept inserts article. A url collision is DuplicateSkipped.
func (s *SQLiteStore) Accept(ctx context.Context, article Article) (Outcome, error) {
	query := `
		INSERT INTO articles (url, title, date, image, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		article.URL,
		article.Title,
		article.Date,
		article.Image,
		article.Body,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return DuplicateSkipped, nil
		}
		return Accepted, &PersistError{URL: article.URL, Err: err}
	}

	return Accepted, nil
}

// isSQLiteUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// Flush is a no-op; every Accept is already committed.
func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]Article, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count articles: %w", err)
	}

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT url, title, date, image, body
		FROM articles
		ORDER BY rowid
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	articles := []Article{}
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.URL, &a.Title, &a.Date, &a.Image, &a.Body); err != nil {
			return nil, 0, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate articles: %w", err)
	}

	return articles, total, nil
}

func (s *SQLiteStore) Get(ctx context.Context, url string) (*Article, error) {
	query := "SELECT url, title, date, image, body FROM articles WHERE url = ?"

	var a Article
	err := s.db.QueryRowContext(ctx, query, url).Scan(&a.URL, &a.Title, &a.Date, &a.Image, &a.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query article: %w", err)
	}
	return &a, nil
}
