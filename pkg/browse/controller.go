package browse

import (
	"context"
	"strings"
	"sync"

	"github.com/dixieflatline76/wallsource/pkg/fetch"
	"github.com/dixieflatline76/wallsource/pkg/source"
	"github.com/dixieflatline76/wallsource/util"
	"github.com/dixieflatline76/wallsource/util/log"
)

// Fetcher loads one page from a source. *fetch.Engine implements it.
type Fetcher interface {
	Fetch(ctx context.Context, src source.ConfiguredSource, req fetch.Request) (fetch.PageResult, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLastUsedHook calls fn with the source key after each successful first-page load.
func WithLastUsedHook(fn func(sourceKey string)) Option {
	return func(c *Controller) { c.onLoaded = fn }
}

// WithSorting sets the initial sort order.
func WithSorting(sorting string) Option {
	return func(c *Controller) {
		c.current.Sorting = sorting
		c.state.Set(c.current)
	}
}

// Controller owns the list state for one source. Its methods block until the
// resulting transition has been applied and may be called from any goroutine.
type Controller struct {
	fetcher  Fetcher
	onLoaded func(string)

	mu      sync.Mutex
	src     source.ConfiguredSource
	current State
	seen    map[string]struct{}
	gen     uint64
	cancel  context.CancelFunc
	closed  bool

	state *util.Observable[State]
}

// NewController creates an Idle controller for src.
func NewController(f Fetcher, src source.ConfiguredSource, opts ...Option) *Controller {
	initial := State{Status: Idle, Page: 1, SourceKey: src.UniqueKey, Items: []fetch.ImageItem{}}
	c := &Controller{
		fetcher: f,
		src:     src,
		current: initial,
		seen:    make(map[string]struct{}),
		state:   util.NewObservable(initial),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current snapshot.
func (c *Controller) State() State {
	return c.state.Get()
}

// Watch streams snapshots, starting with the current one.
func (c *Controller) Watch(ctx context.Context) <-chan State {
	return c.state.Watch(ctx)
}

// Source returns the source this list is bound to.
func (c *Controller) Source() source.ConfiguredSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.src
}

// publish must be called with c.mu held.
func (c *Controller) publish(st State) {
	c.current = st
	c.state.Set(st)
}

// LoadPage requests page for query. Unless isInitial or isReset it is ignored
// while another load is in flight. A reset supersedes any in-flight request,
// whose response is then dropped. The returned error is the fetch failure
// that was applied to the state, if any.
func (c *Controller) LoadPage(ctx context.Context, page int, query string, isInitial, isReset bool) error {
	replace := isInitial || isReset
	if page < 1 {
		page = 1
	}

	c.mu.Lock()
	if c.closed || (c.current.Status == Loading && !replace) {
		c.mu.Unlock()
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	reqCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	st := c.current
	st.Status = Loading
	st.Page = page
	st.Query = query
	st.Reset = replace
	st.ErrKind, st.ErrMessage = "", ""
	if replace {
		st.Items = []fetch.ImageItem{}
		st.EndOfList = false
		c.seen = make(map[string]struct{})
	}
	c.publish(st)
	src := c.src
	sorting := st.Sorting
	c.mu.Unlock()

	res, err := c.fetcher.Fetch(reqCtx, src, fetch.Request{Page: page, Query: query, Sorting: sorting})
	cancel()

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		log.Debugf("Browse: dropping stale response for %s page %d query=%q", src.UniqueKey, page, query)
		return nil
	}
	c.cancel = nil

	st = c.current
	if err != nil {
		st.Status = Error
		st.ErrKind = fetch.KindOf(err).String()
		st.ErrMessage = fetch.UserMessage(err)
		c.publish(st)
		c.mu.Unlock()
		log.Printf("Browse: %s page %d failed: %v", src.UniqueKey, page, err)
		return err
	}

	items := make([]fetch.ImageItem, len(st.Items), len(st.Items)+len(res.Items))
	copy(items, st.Items)
	for _, item := range res.Items {
		if _, dup := c.seen[item.ID]; dup {
			continue
		}
		c.seen[item.ID] = struct{}{}
		items = append(items, item)
	}

	st.Status = Loaded
	st.Items = items
	st.EndOfList = isEndOfList(res)
	st.Page = nextPage(page, res.Meta)
	c.publish(st)
	c.mu.Unlock()

	if replace && c.onLoaded != nil {
		c.onLoaded(src.UniqueKey)
	}
	return nil
}

// isEndOfList: an empty page, or metadata placing the page at (or past) the last one.
func isEndOfList(res fetch.PageResult) bool {
	if len(res.Items) == 0 {
		return true
	}
	return res.Meta.HasPosition() && res.Meta.CurrentPage >= res.Meta.LastPage
}

func nextPage(requested int, meta *fetch.PageInfo) int {
	if meta != nil && meta.CurrentPage > 0 {
		return meta.CurrentPage + 1
	}
	return requested + 1
}

// LoadInitial loads the first page of the current query, replacing the list.
func (c *Controller) LoadInitial(ctx context.Context) error {
	c.mu.Lock()
	query := c.current.Query
	c.mu.Unlock()
	return c.LoadPage(ctx, 1, query, true, false)
}

// Search resets the list and loads the first page for query.
func (c *Controller) Search(ctx context.Context, query string) error {
	return c.LoadPage(ctx, 1, strings.TrimSpace(query), false, true)
}

// LoadNextPage appends the next page. It does nothing while loading or at the end of the list.
func (c *Controller) LoadNextPage(ctx context.Context) error {
	c.mu.Lock()
	st := c.current
	c.mu.Unlock()
	if st.Status == Loading || st.EndOfList {
		return nil
	}
	return c.LoadPage(ctx, st.Page, st.Query, false, false)
}

// Retry reloads from scratch after a first-page failure, otherwise retries
// the next page.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	st := c.current
	c.mu.Unlock()
	if st.Page <= 1 {
		return c.LoadPage(ctx, 1, st.Query, false, true)
	}
	return c.LoadNextPage(ctx)
}

// SetSorting changes the sort order and reloads from the first page.
func (c *Controller) SetSorting(ctx context.Context, sorting string) error {
	c.mu.Lock()
	c.current.Sorting = sorting
	query := c.current.Query
	c.mu.Unlock()
	return c.LoadPage(ctx, 1, query, false, true)
}

// SetSource switches the list to src and loads its first page.
func (c *Controller) SetSource(ctx context.Context, src source.ConfiguredSource) error {
	c.mu.Lock()
	c.src = src
	c.current.SourceKey = src.UniqueKey
	c.current.Sorting = ""
	c.mu.Unlock()
	return c.LoadPage(ctx, 1, "", true, false)
}

// Close discards the list. Any in-flight response is dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
