package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore inserts each article into a Postgres table keyed uniquely on
// url. The schema matches a Supabase "articles" table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the articles table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		url TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Accept inserts article. SQLSTATE 23505 is DuplicateSkipped.
func (s *PostgresStore) Accept(ctx context.Context, article Article) (Outcome, error) {
	query := `
		INSERT INTO articles (url, title, date, image, body)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		article.URL,
		article.Title,
		article.Date,
		article.Image,
		article.Body,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return DuplicateSkipped, nil
		}
		return Accepted, &PersistError{URL: article.URL, Err: err}
	}

	return Accepted, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if err == nil || !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation
}

// Flush is a no-op; every Accept is already committed.
func (s *PostgresStore) Flush(_ context.Context) error {
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]Article, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM articles").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count articles: %w", err)
	}

	if offset < 0 {
		offset = 0
	}

	// LIMIT NULL is no limit in Postgres.
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}

	query := `
		SELECT url, title, date, image, body
		FROM articles
		ORDER BY created_at, url
		LIMIT $1 OFFSET $2
	`
	rows, err := s.pool.Query(ctx, query, limitArg, offset)
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

func (s *PostgresStore) Get(ctx context.Context, url string) (*Article, error) {
	query := "SELECT url, title, date, image, body FROM articles WHERE url = $1"

	var a Article
	err := s.pool.QueryRow(ctx, query, url).Scan(&a.URL, &a.Title, &a.Date, &a.Image, &a.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query article: %w", err)
	}
	return &a, nil
}
