package browse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dixieflatline76/wallsource/pkg/fetch"
	"github.com/dixieflatline76/wallsource/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockFetcher is a testify mock for the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, src source.ConfiguredSource, req fetch.Request) (fetch.PageResult, error) {
	args := m.Called(ctx, src, req)
	return args.Get(0).(fetch.PageResult), args.Error(1)
}

var testSource = source.ConfiguredSource{Definition: source.Definition{UniqueKey: "wallhaven"}}

func items(ids ...string) []fetch.ImageItem {
	out := make([]fetch.ImageItem, len(ids))
	for i, id := range ids {
		out[i] = fetch.ImageItem{ID: id, URL: "https://x.example/" + id, SourceKey: "wallhaven", AspectRatio: 0.75}
	}
	return out
}

func ids(list []fetch.ImageItem) []string {
	out := make([]string, len(list))
	for i, it := range list {
		out[i] = it.ID
	}
	return out
}

func page(req fetch.Request) interface{} {
	return mock.MatchedBy(func(r fetch.Request) bool { return r.Page == req.Page && r.Query == req.Query })
}

func TestController_ConcatenatesPagesWithoutDuplicates(t *testing.T) {
	m := new(MockFetcher)
	m.On("Fetch", mock.Anything, mock.Anything, page(fetch.Request{Page: 1})).
		Return(fetch.PageResult{Items: items("1", "2", "3")}, nil).Once()
	m.On("Fetch", mock.Anything, mock.Anything, page(fetch.Request{Page: 2})).
		Return(fetch.PageResult{Items: items("3", "4", "5")}, nil).Once()
	m.On("Fetch", mock.Anything, mock.Anything, page(fetch.Request{Page: 3})).
		Return(fetch.PageResult{Items: items("6")}, nil).Once()

	c := NewController(m, testSource)
	ctx := context.Background()

	require.NoError(t, c.LoadInitial(ctx))
	require.NoError(t, c.LoadNextPage(ctx))
	require.NoError(t, c.LoadNextPage(ctx))

	st := c.State()
	assert.Equal(t, Loaded, st.Status)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, ids(st.Items))
	assert.Equal(t, 4, st.Page)
	assert.False(t, st.EndOfList)
	m.AssertExpectations(t)
}

func TestController_EndOfList(t *testing.T) {
	tests := []struct {
		name string
		res  fetch.PageResult
		want bool
	}{
		{name: "empty page", res: fetch.PageResult{Items: []fetch.ImageItem{}}, want: true},
		{name: "current equals last", res: fetch.PageResult{Items: items("a"), Meta: &fetch.PageInfo{CurrentPage: 3, LastPage: 3}}, want: true},
		{name: "current before last", res: fetch.PageResult{Items: items("a"), Meta: &fetch.PageInfo{CurrentPage: 2, LastPage: 3}}, want: false},
		{name: "no last page reported", res: fetch.PageResult{Items: items("a"), Meta: &fetch.PageInfo{CurrentPage: 3, Total: 3}}, want: false},
		{name: "no metadata", res: fetch.PageResult{Items: items("a")}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockFetcher)
			m.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(tt.res, nil)

			c := NewController(m, testSource)
			require.NoError(t, c.LoadInitial(context.Background()))
			assert.Equal(t, tt.want, c.State().EndOfList)
		})
	}
}

func TestController_NextPageIsNoOpAtEnd(t *testing.T) {
	m := new(MockFetcher)
	m.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return(fetch.PageResult{Items: items("a"), Meta: &fetch.PageInfo{CurrentPage: 1, LastPage: 1}}, nil).Once()

	c := NewController(m, testSource)
	require.NoError(t, c.LoadInitial(context.Background()))
	require.NoError(t, c.LoadNextPage(context.Background()))

	m.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestController_CursorFollowsMetadata(t *testing.T) {
	m := new(MockFetcher)
	m.On("Fetch", mock.Anything, mock.Anything, page(fetch.Request{Page: 1})).
		Return(fetch.PageResult{Items: items("a"), Meta: &fetch.PageInfo{CurrentPage: 4, LastPage: 9}}, nil).Once()
	m.On("Fetch", mock.Anything, mock.Anything, page(fetch.Request{Page: 5})).
		Return(fetch.PageResult{Items: items("b")}, nil).Once()

	c := NewController(m, testSource)
	require.NoError(t, c.LoadInitial(context.Background()))
	assert.Equal(t, 5, c.State().Page)
	require.NoError(t, c.LoadNextPage(context.Background()))
	m.AssertExpectations(t)
}

func TestController_ErrorKeepsItemsAndRetries(t *testing.T) {
	m := new(MockFetcher)
	m.On("Fetch", mock.Anything, mock.Anything, page(fetch.Request{Page: 1})).
		Return(fetch.PageResult{Items: items("a", "b")}, nil).Once()
	m.On("Fetch", mock.Anything, mock.Anything, page(fetch.Request{Page: 2})).
		Return(fetch.PageResult{}, &fetch.Error{Kind: fetch.RateLimited, Status: http.StatusTooManyRequests}).Once()
	m.On("Fetch", mock.Anything, mock.Anything, page(fetch.Request{Page: 2})).
		Return(fetch.PageResult{Items: items("c")}, nil).Once()

	c := NewController(m, testSource)
	ctx := context.Background()
	require.NoError(t, c.LoadInitial(ctx))

	err := c.LoadNextPage(ctx)
	assert.ErrorIs(t, err, fetch.ErrRateLimited)
	st := c.State()
	assert.Equal(t, Error, st.Status)
	assert.Equal(t, []string{"a", "b"}, ids(st.Items), "items survive a failed append")
	assert.Equal(t, 2, st.Page)
	assert.Equal(t, "rate_limited", st.ErrKind)
	assert.Contains(t, st.ErrMessage, "Rate limit")

	require.NoError(t, c.Retry(ctx))
	st = c.State()
	assert.Equal(t, Loaded, st.Status)
	assert.Equal(t, []string{"a", "b", "c"}, ids(st.Items))
	assert.Empty(t, st.ErrMessage)
	m.AssertExpectations(t)
}

func TestController_InitialFailureClearsAndRetryResets(t *testing.T) {
	m := new(MockFetcher)
	m.On("Fetch", mock.Anything, mock.Anything, page(fetch.Request{Page: 1, Query: "old"})).
		Return(fetch.PageResult{Items: items("x")}, nil).Once()
	m.On("Fetch", mock.Anything, mock.Anything, page(fetch.Request{Page: 1, Query: "new"})).
		Return(fetch.PageResult{}, &fetch.Error{Kind: fetch.NetworkUnreachable}).Once()
	m.On("Fetch", mock.Anything, mock.Anything, page(fetch.Request{Page: 1, Query: "new"})).
		Return(fetch.PageResult{Items: items("y")}, nil).Once()

	c := NewController(m, testSource)
	ctx := context.Background()
	require.NoError(t, c.Search(ctx, "old"))

	assert.Error(t, c.Search(ctx, "new"))
	st := c.State()
	assert.Equal(t, Error, st.Status)
	assert.Empty(t, st.Items)
	assert.Equal(t, 1, st.Page)

	require.NoError(t, c.Retry(ctx))
	assert.Equal(t, []string{"y"}, ids(c.State().Items))
	m.AssertExpectations(t)
}

func TestController_UnauthorizedMentionsAPIKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	src := source.ConfiguredSource{APIKey: "bad", Definition: source.Definition{
		UniqueKey:     "pexels",
		RequireAPIKey: true,
		API: source.API{
			BaseURL:        ts.URL,
			Endpoints:      source.Endpoints{Curated: "/curated", Search: "/search"},
			Authentication: source.Authentication{Type: source.AuthHeader, Key: "Authorization"},
			Pagination:     source.PaginationParams{PageParam: "page"},
		},
		ResponseMapping: source.ResponseMapping{
			ResultListPath: "photos",
			Image:          source.ImageMapping{IDPath: "id", ImageURLPath: "src.original"},
		},
	}}

	c := NewController(fetch.NewEngine(ts.Client()), src)
	err := c.LoadInitial(context.Background())
	assert.ErrorIs(t, err, fetch.ErrUnauthorized)

	st := c.State()
	assert.Equal(t, Error, st.Status)
	assert.Contains(t, st.ErrMessage, "API Key")
}

// gatedFetcher blocks each call until the test releases it.
type gatedFetcher struct {
	mu      sync.Mutex
	release map[string]chan fetch.PageResult
	started chan string
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{release: make(map[string]chan fetch.PageResult), started: make(chan string, 10)}
}

func key(req fetch.Request) string { return fmt.Sprintf("%s#%d", req.Query, req.Page) }

func (g *gatedFetcher) gate(k string) chan fetch.PageResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.release[k]
	if !ok {
		ch = make(chan fetch.PageResult, 1)
		g.release[k] = ch
	}
	return ch
}

func (g *gatedFetcher) Fetch(ctx context.Context, src source.ConfiguredSource, req fetch.Request) (fetch.PageResult, error) {
	k := key(req)
	ch := g.gate(k)
	g.started <- k
	// Ignores cancellation on purpose to simulate a late response.
	return <-ch, nil
}

func TestController_StaleResponseIsDiscarded(t *testing.T) {
	g := newGatedFetcher()
	c := NewController(g, testSource)
	ctx := context.Background()

	// Page 1 of "a" loads normally
	g.gate("a#1") <- fetch.PageResult{Items: items("a1")}
	require.NoError(t, c.Search(ctx, "a"))
	<-g.started

	// Page 2 of "a" is slow
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.LoadNextPage(ctx)
	}()
	assert.Equal(t, "a#2", <-g.started)

	// Search "b" supersedes it and completes first
	g.gate("b#1") <- fetch.PageResult{Items: items("b1", "b2")}
	require.NoError(t, c.Search(ctx, "b"))
	assert.Equal(t, "b#1", <-g.started)

	// The stale page arrives late
	g.gate("a#2") <- fetch.PageResult{Items: items("a2")}
	wg.Wait()

	st := c.State()
	assert.Equal(t, Loaded, st.Status)
	assert.Equal(t, "b", st.Query)
	assert.Equal(t, []string{"b1", "b2"}, ids(st.Items))
}

func TestController_LoadIgnoredWhileLoading(t *testing.T) {
	g := newGatedFetcher()
	c := NewController(g, testSource)

	done := make(chan struct{})
	go func() {
		_ = c.LoadInitial(context.Background())
		close(done)
	}()
	<-g.started
	assert.True(t, c.State().IsLoading())

	// A plain page load during Loading is ignored and returns at once
	require.NoError(t, c.LoadPage(context.Background(), 2, "", false, false))
	require.NoError(t, c.LoadNextPage(context.Background()))
	assert.Len(t, g.started, 0)

	g.gate("#1") <- fetch.PageResult{Items: items("1")}
	<-done
	assert.Equal(t, []string{"1"}, ids(c.State().Items))
}

func TestController_CloseDropsInFlight(t *testing.T) {
	g := newGatedFetcher()
	c := NewController(g, testSource)

	done := make(chan error)
	go func() { done <- c.LoadInitial(context.Background()) }()
	<-g.started

	c.Close()
	g.gate("#1") <- fetch.PageResult{Items: items("late")}

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("load did not return")
	}
	assert.Empty(t, c.State().Items)
	assert.Equal(t, Loading, c.State().Status, "no transition after close")

	// Further calls are no-ops
	require.NoError(t, c.LoadInitial(context.Background()))
}

func TestController_SetSortingAndSourceReset(t *testing.T) {
	m := new(MockFetcher)
	m.On("Fetch", mock.Anything, mock.Anything, mock.MatchedBy(func(r fetch.Request) bool { return r.Sorting == "" })).
		Return(fetch.PageResult{Items: items("1")}, nil)
	m.On("Fetch", mock.Anything, mock.Anything, mock.MatchedBy(func(r fetch.Request) bool { return r.Sorting == "toplist" })).
		Return(fetch.PageResult{Items: items("9")}, nil)

	var lastUsed []string
	c := NewController(m, testSource, WithLastUsedHook(func(k string) { lastUsed = append(lastUsed, k) }))
	ctx := context.Background()

	require.NoError(t, c.LoadInitial(ctx))
	require.NoError(t, c.SetSorting(ctx, "toplist"))
	assert.Equal(t, []string{"9"}, ids(c.State().Items))
	assert.Equal(t, "toplist", c.State().Sorting)

	other := source.ConfiguredSource{Definition: source.Definition{UniqueKey: "pexels"}}
	require.NoError(t, c.SetSource(ctx, other))
	st := c.State()
	assert.Equal(t, "pexels", st.SourceKey)
	assert.Equal(t, []string{"1"}, ids(st.Items))
	assert.Equal(t, "pexels", c.Source().UniqueKey)

	assert.Equal(t, []string{"wallhaven", "wallhaven", "pexels"}, lastUsed)
}

func TestController_WithSortingAppliesToFirstLoad(t *testing.T) {
	m := new(MockFetcher)
	m.On("Fetch", mock.Anything, mock.Anything, mock.MatchedBy(func(r fetch.Request) bool { return r.Sorting == "views" && r.Query == "sea" })).
		Return(fetch.PageResult{Items: items("3")}, nil)

	c := NewController(m, testSource, WithSorting("views"))
	assert.Equal(t, "views", c.State().Sorting)

	require.NoError(t, c.Search(context.Background(), "sea"))
	assert.Equal(t, []string{"3"}, ids(c.State().Items))
	m.AssertExpectations(t)
}
