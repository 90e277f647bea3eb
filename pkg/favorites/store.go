// Package favorites persists user-saved images together with their cached bytes.
package favorites

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/dixieflatline76/wallsource/pkg/fetch"
	"github.com/dixieflatline76/wallsource/pkg/storage"
	"github.com/dixieflatline76/wallsource/util"
	"github.com/dixieflatline76/wallsource/util/log"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no favorite has the requested id.
var ErrNotFound = errors.New("favorite not found")

// Favorite is a saved image. LocalPath is empty when no bytes are cached.
type Favorite struct {
	ID           string    `json:"id"`
	SourceKey    string    `json:"sourceKey"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	URL          string    `json:"url"`
	Extension    string    `json:"extension"`
	AspectRatio  float64   `json:"aspectRatio"`
	Description  string    `json:"description,omitempty"`
	Uploader     string    `json:"uploader,omitempty"`
	UploaderURL  string    `json:"uploaderUrl,omitempty"`
	LocalPath    string    `json:"localPath,omitempty"`
	SavedAt      time.Time `json:"savedAt"`
}

// FromItem converts a browsed item into a Favorite.
func FromItem(item fetch.ImageItem) Favorite {
	return Favorite{
		ID:           item.ID,
		SourceKey:    item.SourceKey,
		ThumbnailURL: item.ThumbnailURL,
		URL:          item.URL,
		Extension:    item.Extension,
		AspectRatio:  item.AspectRatio,
		Description:  item.Description,
		Uploader:     item.Uploader,
		UploaderURL:  item.UploaderURL,
	}
}

// Store keeps favorites in SQLite and their bytes in a FileCache.
type Store struct {
	db    *sql.DB
	files *storage.FileCache
	limit int
	now   func() time.Time

	mu       sync.Mutex
	revision *util.Observable[uint64]
}

// New opens the database at dbPath (":memory:" for tests). A positive limit
// caps the number of favorites, evicting the oldest first.
func New(dbPath string, files *storage.FileCache, limit int) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:       db,
		files:    files,
		limit:    limit,
		now:      time.Now,
		revision: util.NewObservable[uint64](0),
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS favorites (
		id TEXT PRIMARY KEY,
		source_key TEXT NOT NULL,
		thumbnail_url TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		extension TEXT NOT NULL DEFAULT '',
		aspect_ratio REAL NOT NULL DEFAULT 0.75,
		description TEXT NOT NULL DEFAULT '',
		uploader TEXT NOT NULL DEFAULT '',
		uploader_url TEXT NOT NULL DEFAULT '',
		local_name TEXT,
		saved_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_favorites_saved_at ON favorites(saved_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// fileName derives a cache file name that is safe for any source id.
func fileName(f Favorite) string {
	sum := sha256.Sum256([]byte(f.SourceKey + "\x00" + f.ID))
	ext := unsafeChars.ReplaceAllString(f.Extension, "")
	if ext == "" {
		ext = fetch.DefaultExtension
	}
	return unsafeChars.ReplaceAllString(f.SourceKey, "_") + "_" + hex.EncodeToString(sum[:12]) + "." + ext
}

// OnChange registers fn to run after favorites are added or removed.
func (s *Store) OnChange(fn func()) (cancel func()) {
	return s.revision.Subscribe(func(uint64) { fn() })
}

func (s *Store) changed() {
	s.revision.Set(s.revision.Get() + 1)
}

// Add saves f. When data is non-empty it is cached and owned by the store.
// Adding an existing id keeps the original entry and only fills in missing bytes.
func (s *Store) Add(ctx context.Context, f Favorite, data []byte) (Favorite, error) {
	if f.ID == "" || f.URL == "" {
		return Favorite{}, errors.New("favorite needs an id and a url")
	}

	s.mu.Lock()
	existing, err := s.get(ctx, f.ID)
	switch {
	case err == nil:
		s.mu.Unlock()
		if existing.LocalPath == "" && len(data) > 0 {
			return s.Recache(ctx, f.ID, data)
		}
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		s.mu.Unlock()
		return Favorite{}, err
	}

	var localName sql.NullString
	if len(data) > 0 {
		name := fileName(f)
		if _, err := s.files.Write(name, data); err != nil {
			log.Printf("Favorites: Failed to cache %s, saving without local copy: %v", f.ID, err)
		} else {
			localName = sql.NullString{String: name, Valid: true}
		}
	}

	f.SavedAt = s.now()
	_, err = s.db.ExecContext(ctx, `INSERT INTO favorites
		(id, source_key, thumbnail_url, url, extension, aspect_ratio, description, uploader, uploader_url, local_name, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.SourceKey, f.ThumbnailURL, f.URL, f.Extension, f.AspectRatio,
		f.Description, f.Uploader, f.UploaderURL, localName, f.SavedAt.UnixNano())
	if err != nil {
		if localName.Valid {
			_ = s.files.Delete(localName.String)
		}
		s.mu.Unlock()
		return Favorite{}, fmt.Errorf("failed to insert favorite: %w", err)
	}

	evicted, err := s.evict(ctx)
	s.mu.Unlock()
	if err != nil {
		log.Printf("Favorites: Failed to enforce limit: %v", err)
	}
	for _, id := range evicted {
		log.Printf("Favorites: Removed oldest favorite %s (limit %d)", id, s.limit)
	}

	s.changed()
	return s.Get(ctx, f.ID)
}

// evict removes the oldest favorites beyond the limit. Callers hold s.mu.
func (s *Store) evict(ctx context.Context) ([]string, error) {
	if s.limit <= 0 {
		return nil, nil
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM favorites").Scan(&count); err != nil {
		return nil, err
	}
	if count <= s.limit {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM favorites ORDER BY saved_at ASC, rowid ASC LIMIT ?", count-s.limit)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := s.remove(ctx, id); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// Remove deletes the favorite and its cached file.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	err := s.remove(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.changed()
	return nil
}

func (s *Store) remove(ctx context.Context, id string) error {
	var localName sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT local_name FROM favorites WHERE id = ?", id).Scan(&localName)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up favorite: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM favorites WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete favorite: %w", err)
	}
	if localName.Valid {
		if err := s.files.Delete(localName.String); err != nil {
			log.Printf("Favorites: Failed to delete cached file for %s: %v", id, err)
		}
	}
	return nil
}

// Recache stores data as the favorite's local copy and returns the updated entry.
func (s *Store) Recache(ctx context.Context, id string, data []byte) (Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.get(ctx, id)
	if err != nil {
		return Favorite{}, err
	}
	name := fileName(f)
	path, err := s.files.Write(name, data)
	if err != nil {
		return Favorite{}, err
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE favorites SET local_name = ? WHERE id = ?", name, id); err != nil {
		return Favorite{}, fmt.Errorf("failed to update favorite: %w", err)
	}
	f.LocalPath = path
	return f, nil
}

// Get returns the favorite with id.
func (s *Store) Get(ctx context.Context, id string) (Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx, id)
}

const selectColumns = `SELECT id, source_key, thumbnail_url, url, extension, aspect_ratio,
	description, uploader, uploader_url, local_name, saved_at FROM favorites`

func (s *Store) get(ctx context.Context, id string) (Favorite, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	f, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Favorite{}, ErrNotFound
	}
	return f, err
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(row scanner) (Favorite, error) {
	var (
		f         Favorite
		localName sql.NullString
		savedAt   int64
	)
	err := row.Scan(&f.ID, &f.SourceKey, &f.ThumbnailURL, &f.URL, &f.Extension, &f.AspectRatio,
		&f.Description, &f.Uploader, &f.UploaderURL, &localName, &savedAt)
	if err != nil {
		return Favorite{}, err
	}
	if localName.Valid {
		if path, err := s.files.Path(localName.String); err == nil {
			f.LocalPath = path
		}
	}
	f.SavedAt = time.Unix(0, savedAt)
	return f, nil
}

// List returns all favorites, newest first.
func (s *Store) List(ctx context.Context) ([]Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY saved_at DESC, rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	out := []Favorite{}
	for rows.Next() {
		f, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// IsFavorite reports whether id is saved.
func (s *Store) IsFavorite(ctx context.Context, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// CleanupOrphans deletes cached files that no favorite references.
func (s *Store) CleanupOrphans(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT local_name FROM favorites WHERE local_name IS NOT NULL")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return 0, err
		}
		known[name] = true
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return s.files.CleanupOrphans(known), nil
}
