package favorites

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dixieflatline76/wallsource/pkg/fetch"
	"github.com/dixieflatline76/wallsource/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, limit int) (*Store, *storage.FileCache) {
	t.Helper()
	files := storage.NewFileCache(filepath.Join(t.TempDir(), "favorites"))
	s, err := New(":memory:", files, limit)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// Deterministic, strictly increasing timestamps
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s, files
}

func fav(id string) Favorite {
	return FromItem(fetch.ImageItem{
		ID:           id,
		SourceKey:    "wallhaven",
		URL:          "https://w.example/" + id + ".jpg",
		ThumbnailURL: "https://w.example/th/" + id + ".jpg",
		Extension:    "jpg",
		AspectRatio:  0.5625,
		Uploader:     "neo",
	})
}

func TestStore_AddGetListRemove(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	changes := 0
	s.OnChange(func() { changes++ })

	added, err := s.Add(ctx, fav("a"), []byte("jpeg-a"))
	require.NoError(t, err)
	assert.NotEmpty(t, added.LocalPath)
	assert.False(t, added.SavedAt.IsZero())

	data, err := os.ReadFile(added.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-a"), data)

	_, err = s.Add(ctx, fav("b"), nil)
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "newest first")
	assert.Empty(t, list[0].LocalPath)
	assert.Equal(t, 0.5625, list[1].AspectRatio)
	assert.Equal(t, "neo", list[1].Uploader)

	ok, err := s.IsFavorite(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Remove(ctx, "a"))
	_, err = os.Stat(added.LocalPath)
	assert.True(t, os.IsNotExist(err), "cached file is deleted with the row")

	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Remove(ctx, "a"), ErrNotFound)

	assert.Equal(t, 3, changes)
}

func TestStore_AddExistingIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	first, err := s.Add(ctx, fav("a"), nil)
	require.NoError(t, err)

	again, err := s.Add(ctx, fav("a"), []byte("bytes"))
	require.NoError(t, err)
	assert.Equal(t, first.SavedAt, again.SavedAt)
	assert.NotEmpty(t, again.LocalPath, "missing bytes are filled in")

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_LimitEvictsOldest(t *testing.T) {
	s, files := newTestStore(t, 2)
	ctx := context.Background()

	a, err := s.Add(ctx, fav("a"), []byte("a"))
	require.NoError(t, err)
	_, err = s.Add(ctx, fav("b"), nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, fav("c"), nil)
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, []string{list[0].ID, list[1].ID})
	assert.False(t, files.Exists(filepath.Base(a.LocalPath)))
}

func TestStore_Recache(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	_, err := s.Add(ctx, fav("tag:example.com,2024:photo/1"), nil)
	require.NoError(t, err)

	f, err := s.Recache(ctx, "tag:example.com,2024:photo/1", []byte("fresh"))
	require.NoError(t, err)
	assert.Equal(t, "wallhaven", filepath.Base(f.LocalPath)[:9])

	got, err := s.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.LocalPath, got.LocalPath)

	_, err = s.Recache(ctx, "missing", []byte("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CleanupOrphans(t *testing.T) {
	s, files := newTestStore(t, 0)
	ctx := context.Background()

	_, err := s.Add(ctx, fav("a"), []byte("a"))
	require.NoError(t, err)
	_, err = files.Write("stray.jpg", []byte("x"))
	require.NoError(t, err)

	n, err := s.CleanupOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, files.Exists("stray.jpg"))
}

func TestStore_RejectsIncomplete(t *testing.T) {
	s, _ := newTestStore(t, 0)
	_, err := s.Add(context.Background(), Favorite{ID: "x"}, nil)
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	name := fileName(Favorite{ID: "../../etc/passwd", SourceKey: "we/ird", Extension: "p/ng"})
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, "..")
	assert.Equal(t, filepath.Ext(name), ".png")
}
