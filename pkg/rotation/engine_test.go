package rotation

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dixieflatline76/wallsource/pkg/favorites"
	"github.com/dixieflatline76/wallsource/pkg/fetch"
	"github.com/dixieflatline76/wallsource/pkg/source"
	"github.com/dixieflatline76/wallsource/pkg/wallpaper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type staticSettings struct{ st Setting }

func (s staticSettings) Get() Setting { return s.st }

type MockFavorites struct{ mock.Mock }

func (m *MockFavorites) List(ctx context.Context) ([]favorites.Favorite, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]favorites.Favorite)
	return list, args.Error(1)
}

func (m *MockFavorites) Recache(ctx context.Context, id string, data []byte) (favorites.Favorite, error) {
	args := m.Called(ctx, id, data)
	return args.Get(0).(favorites.Favorite), args.Error(1)
}

type MockFetcher struct{ mock.Mock }

func (m *MockFetcher) Fetch(ctx context.Context, src source.ConfiguredSource, req fetch.Request) (fetch.PageResult, error) {
	args := m.Called(ctx, src.UniqueKey, req)
	return args.Get(0).(fetch.PageResult), args.Error(1)
}

func (m *MockFetcher) Download(ctx context.Context, rawURL string) ([]byte, error) {
	args := m.Called(ctx, rawURL)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

type MockApplier struct{ mock.Mock }

func (m *MockApplier) Apply(ctx context.Context, data []byte, ext string, target wallpaper.Target) error {
	return m.Called(ctx, data, ext, target).Error(0)
}

type staticSources []source.ConfiguredSource

func (s staticSources) ConfiguredSources() []source.ConfiguredSource { return s }

func configured(key string, requireKey bool, apiKey string) source.ConfiguredSource {
	return source.ConfiguredSource{
		Definition: source.Definition{UniqueKey: key, RequireAPIKey: requireKey},
		APIKey:     apiKey,
	}
}

type fixture struct {
	favs    *MockFavorites
	fetcher *MockFetcher
	applier *MockApplier
	engine  *Engine
}

func newFixture(st Setting, sources staticSources) *fixture {
	f := &fixture{
		favs:    &MockFavorites{},
		fetcher: &MockFetcher{},
		applier: &MockApplier{},
	}
	f.engine = NewEngine(staticSettings{st}, f.favs, sources, f.fetcher, f.applier)
	f.engine.pick = func(int) int { return 0 }
	return f
}

func enabled(mode Mode, keys ...string) Setting {
	st := DefaultSetting()
	st.Enabled = true
	st.Source = mode
	st.CustomSourceKeys = keys
	st.Target = wallpaper.TargetBoth
	return st
}

func TestRunCycle_DisabledDoesNoIO(t *testing.T) {
	f := newFixture(DefaultSetting(), nil)

	outcome, err := f.engine.RunCycle(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, Skip, outcome)
	assert.True(t, outcome.Succeeded())
	f.favs.AssertNotCalled(t, "List", mock.Anything)
	f.fetcher.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
	f.applier.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_FavoritesUsesLocalFile(t *testing.T) {
	img := pngBytes(t)
	path := filepath.Join(t.TempDir(), "fav.png")
	require.NoError(t, os.WriteFile(path, img, 0600))

	f := newFixture(enabled(ModeFavorites), nil)
	f.favs.On("List", mock.Anything).Return([]favorites.Favorite{
		{ID: "a", SourceKey: "wallhaven", URL: "https://example.com/a.png", LocalPath: path},
	}, nil)
	f.applier.On("Apply", mock.Anything, img, "png", wallpaper.TargetBoth).Return(nil)

	outcome, err := f.engine.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Success, outcome)
	f.fetcher.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
	f.applier.AssertExpectations(t)

	last := f.engine.LastResult()
	assert.Equal(t, Success, last.Outcome)
	assert.Equal(t, "a", last.ImageID)
	assert.NotEmpty(t, last.ID)
}

func TestRunCycle_FavoritesMissingFileDownloadsAndRecaches(t *testing.T) {
	img := pngBytes(t)
	fav := favorites.Favorite{ID: "a", SourceKey: "wallhaven", URL: "https://example.com/a.png",
		LocalPath: filepath.Join(t.TempDir(), "gone.png")}

	f := newFixture(enabled(ModeFavorites), nil)
	f.favs.On("List", mock.Anything).Return([]favorites.Favorite{fav}, nil)
	f.fetcher.On("Download", mock.Anything, fav.URL).Return(img, nil)
	f.favs.On("Recache", mock.Anything, "a", img).Return(fav, nil)
	f.applier.On("Apply", mock.Anything, img, "png", wallpaper.TargetBoth).Return(nil)

	outcome, err := f.engine.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Success, outcome)
	f.favs.AssertExpectations(t)
	f.fetcher.AssertExpectations(t)
}

func TestRunCycle_FavoritesRecacheFailureStillApplies(t *testing.T) {
	img := pngBytes(t)
	fav := favorites.Favorite{ID: "a", URL: "https://example.com/a.png"}

	f := newFixture(enabled(ModeFavorites), nil)
	f.favs.On("List", mock.Anything).Return([]favorites.Favorite{fav}, nil)
	f.fetcher.On("Download", mock.Anything, fav.URL).Return(img, nil)
	f.favs.On("Recache", mock.Anything, "a", img).Return(favorites.Favorite{}, errors.New("disk full"))
	f.applier.On("Apply", mock.Anything, img, "png", wallpaper.TargetBoth).Return(nil)

	outcome, err := f.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Success, outcome)
}

func TestRunCycle_NoFavoritesSkips(t *testing.T) {
	f := newFixture(enabled(ModeFavorites), nil)
	f.favs.On("List", mock.Anything).Return([]favorites.Favorite{}, nil)

	outcome, err := f.engine.RunCycle(context.Background())

	assert.Equal(t, Skip, outcome)
	assert.ErrorIs(t, err, ErrNoCandidates)
	f.applier.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_FavoriteDownloadFailureRetries(t *testing.T) {
	fav := favorites.Favorite{ID: "a", URL: "https://example.com/a.png"}
	f := newFixture(enabled(ModeFavorites), nil)
	f.favs.On("List", mock.Anything).Return([]favorites.Favorite{fav}, nil)
	f.fetcher.On("Download", mock.Anything, fav.URL).Return(nil, fetch.ErrNetworkUnreachable)

	outcome, err := f.engine.RunCycle(context.Background())

	assert.Equal(t, RetryLater, outcome)
	assert.False(t, outcome.Succeeded())
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, fetch.ErrNetworkUnreachable)
}

func TestRunCycle_CustomSourcesNoneConfiguredSkips(t *testing.T) {
	sources := staticSources{
		configured("pexels", true, ""),
		configured("wallhaven", false, ""),
	}
	f := newFixture(enabled(ModeCustomSources, "pexels"), sources)

	outcome, err := f.engine.RunCycle(context.Background())

	assert.Equal(t, Skip, outcome)
	assert.ErrorIs(t, err, ErrNoCandidates)
	f.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_CustomSourcesFetchFailureRetries(t *testing.T) {
	sources := staticSources{configured("wallhaven", false, "")}
	f := newFixture(enabled(ModeCustomSources, "wallhaven"), sources)
	f.fetcher.On("Fetch", mock.Anything, "wallhaven", fetch.Request{Page: 1}).
		Return(fetch.PageResult{}, fetch.ErrServerError)

	outcome, err := f.engine.RunCycle(context.Background())

	assert.Equal(t, RetryLater, outcome)
	assert.ErrorIs(t, err, ErrTransient)
	f.applier.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_CustomSourcesEmptyPageSkips(t *testing.T) {
	sources := staticSources{configured("wallhaven", false, "")}
	f := newFixture(enabled(ModeCustomSources, "wallhaven"), sources)
	f.fetcher.On("Fetch", mock.Anything, "wallhaven", fetch.Request{Page: 1}).Return(fetch.PageResult{}, nil)

	outcome, err := f.engine.RunCycle(context.Background())

	assert.Equal(t, Skip, outcome)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestRunCycle_CustomSourcesApplies(t *testing.T) {
	img := pngBytes(t)
	sources := staticSources{
		configured("pexels", true, "secret"),
		configured("unsplash", true, ""),
	}
	f := newFixture(enabled(ModeCustomSources, "pexels", "unsplash"), sources)
	f.fetcher.On("Fetch", mock.Anything, "pexels", fetch.Request{Page: 1}).Return(fetch.PageResult{
		Items: []fetch.ImageItem{{ID: "p1", URL: "https://images.example.com/p1.jpeg", SourceKey: "pexels"}},
	}, nil)
	f.fetcher.On("Download", mock.Anything, "https://images.example.com/p1.jpeg").Return(img, nil)
	f.applier.On("Apply", mock.Anything, img, "png", wallpaper.TargetBoth).Return(nil)

	outcome, err := f.engine.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Success, outcome)
	assert.Equal(t, "pexels", f.engine.LastResult().Source)
}

func TestRunCycle_NonImageBytesRetry(t *testing.T) {
	sources := staticSources{configured("wallhaven", false, "")}
	f := newFixture(enabled(ModeCustomSources, "wallhaven"), sources)
	f.fetcher.On("Fetch", mock.Anything, "wallhaven", fetch.Request{Page: 1}).Return(fetch.PageResult{
		Items: []fetch.ImageItem{{ID: "w1", URL: "https://w.example.com/w1.jpg"}},
	}, nil)
	f.fetcher.On("Download", mock.Anything, "https://w.example.com/w1.jpg").Return([]byte("<html>blocked</html>"), nil)

	outcome, err := f.engine.RunCycle(context.Background())

	assert.Equal(t, RetryLater, outcome)
	assert.ErrorIs(t, err, ErrTransient)
	f.applier.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_ApplyFailureRetries(t *testing.T) {
	img := pngBytes(t)
	path := filepath.Join(t.TempDir(), "fav.png")
	require.NoError(t, os.WriteFile(path, img, 0600))

	f := newFixture(enabled(ModeFavorites), nil)
	f.favs.On("List", mock.Anything).Return([]favorites.Favorite{{ID: "a", LocalPath: path}}, nil)
	f.applier.On("Apply", mock.Anything, img, "png", wallpaper.TargetBoth).Return(errors.New("no desktop"))

	outcome, err := f.engine.RunCycle(context.Background())

	assert.Equal(t, RetryLater, outcome)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, RetryLater, f.engine.LastResult().Outcome)
	assert.Contains(t, f.engine.LastResult().Error, "no desktop")
}

// blockingApplier holds Apply until released.
type blockingApplier struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingApplier) Apply(context.Context, []byte, string, wallpaper.Target) error {
	close(b.entered)
	<-b.release
	return nil
}

func TestRunCycle_NotReentrant(t *testing.T) {
	img := pngBytes(t)
	path := filepath.Join(t.TempDir(), "fav.png")
	require.NoError(t, os.WriteFile(path, img, 0600))

	favs := &MockFavorites{}
	favs.On("List", mock.Anything).Return([]favorites.Favorite{{ID: "a", LocalPath: path}}, nil)
	applier := &blockingApplier{entered: make(chan struct{}), release: make(chan struct{})}
	engine := NewEngine(staticSettings{enabled(ModeFavorites)}, favs, nil, &MockFetcher{}, applier)

	var (
		wg    sync.WaitGroup
		first Outcome
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = engine.RunCycle(context.Background())
	}()

	select {
	case <-applier.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle did not reach Apply")
	}

	second, err := engine.RunCycle(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, Skip, second)

	close(applier.release)
	wg.Wait()
	assert.Equal(t, Success, first)
	favs.AssertNumberOfCalls(t, "List", 1)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "skip", Skip.String())
	assert.Equal(t, "retry_later", RetryLater.String())
}
