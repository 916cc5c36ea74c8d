package seen

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/pevans/harvest/jsonfile"
)

// ErrUnknownType is returned by Open for an unsupported repository type.
var ErrUnknownType = errors.New("seen repository type must be file, redis or none")

// Repository types accepted by Open.
const (
	TypeFile  = "file"
	TypeRedis = "redis"
	TypeNone  = "none"
)

// Repository persists the seen set and the most recent batch of new URLs.
// Both are written as full snapshots.
type Repository interface {
	// Load returns the persisted set, or an empty set if nothing has been
	// stored yet.
	Load(ctx context.Context) (*Set, error)
	// Save replaces the persisted set with snapshot.
	Save(ctx context.Context, snapshot *Set) error
	// SaveBatch replaces the persisted new-URL batch.
	SaveBatch(ctx context.Context, batch []string) error
}

// Open returns the repository for kind. TypeNone yields a nil Repository,
// meaning every discovered URL is treated as new.
func Open(kind, dsn string) (Repository, error) {
	switch kind {
	case TypeFile:
		return NewFileRepository(dsn), nil
	case TypeRedis:
		return NewRedisRepository(dsn, DefaultRedisPrefix), nil
	case TypeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
}

// File names used inside a FileRepository directory.
const (
	SeenFileName  = "seen.json"
	BatchFileName = "new_urls.json"
)

// FileRepository stores the set and the batch as JSON arrays in a directory.
type FileRepository struct {
	dir string
}

// NewFileRepository creates a repository rooted at dir. The directory is
// created on first save.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{dir: dir}
}

// Load reads seen.json. A missing file yields an empty set.
func (r *FileRepository) Load(_ context.Context) (*Set, error) {
	var urls []string
	if _, err := jsonfile.Read(r.seenPath(), &urls); err != nil {
		return nil, fmt.Errorf("failed to load seen set: %w", err)
	}
	return NewSet(urls...), nil
}

func (r *FileRepository) Save(_ context.Context, snapshot *Set) error {
	if err := jsonfile.Write(r.seenPath(), snapshot.URLs()); err != nil {
		return fmt.Errorf("failed to save seen set: %w", err)
	}
	return nil
}

func (r *FileRepository) SaveBatch(_ context.Context, batch []string) error {
	if batch == nil {
		batch = []string{}
	}
	if err := jsonfile.Write(filepath.Join(r.dir, BatchFileName), batch); err != nil {
		return fmt.Errorf("failed to save new URL batch: %w", err)
	}
	return nil
}

// LoadBatch reads the most recently saved batch.
func (r *FileRepository) LoadBatch(_ context.Context) ([]string, error) {
	batch := []string{}
	if _, err := jsonfile.Read(filepath.Join(r.dir, BatchFileName), &batch); err != nil {
		return nil, fmt.Errorf("failed to load new URL batch: %w", err)
	}
	return batch, nil
}

func (r *FileRepository) seenPath() string {
	return filepath.Join(r.dir, SeenFileName)
}
