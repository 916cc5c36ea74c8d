package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPgUniqueViolation(t *testing.T) {
	assert.True(t, isPgUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isPgUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isPgUniqueViolation(&pgconn.PgError{Code: "23502"}), "not_null_violation is a real failure")
	assert.False(t, isPgUniqueViolation(errors.New("duplicate key value")))
	assert.False(t, isPgUniqueViolation(nil))
}

// TestPostgresStore_Accept runs against a live database only when one is
// configured.
func TestPostgresStore_Accept(t *testing.T) {
	dsn := os.Getenv("HARVEST_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HARVEST_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	url := "https://example.com/" + uuid.NewString()
	t.Cleanup(func() {
		store.pool.Exec(context.Background(), "DELETE FROM articles WHERE url = $1", url)
	})

	outcome, err := store.Accept(ctx, sampleArticle(url))
	require.NoError(t, err)
	assert.Equal(t, Accepted, outcome)

	outcome, err = store.Accept(ctx, sampleArticle(url))
	require.NoError(t, err)
	assert.Equal(t, DuplicateSkipped, outcome)

	got, err := store.Get(ctx, url)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sampleArticle(url), *got)
}
