package rotation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"os"
	"slices"
	"time"

	"github.com/dixieflatline76/wallsource/pkg/favorites"
	"github.com/dixieflatline76/wallsource/pkg/fetch"
	"github.com/dixieflatline76/wallsource/pkg/source"
	"github.com/dixieflatline76/wallsource/pkg/wallpaper"
	"github.com/dixieflatline76/wallsource/util"
	"github.com/dixieflatline76/wallsource/util/log"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// Outcome is the result of one rotation cycle.
type Outcome int

const (
	// Success means a new wallpaper was applied.
	Success Outcome = iota
	// Skip means there was nothing to do: disabled, no candidates, or a cycle already running.
	Skip
	// RetryLater means the cycle failed and should be retried sooner than the interval.
	RetryLater
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skip:
		return "skip"
	case RetryLater:
		return "retry_later"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	for _, v := range []Outcome{Success, Skip, RetryLater} {
		if v.String() == string(text) {
			*o = v
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Succeeded reports whether the scheduler should wait a full interval before the next cycle.
func (o Outcome) Succeeded() bool {
	return o != RetryLater
}

var (
	// ErrNoCandidates is returned with Skip when the selected pool is empty.
	ErrNoCandidates = errors.New("no rotation candidates")
	// ErrTransient is returned with RetryLater. It wraps the underlying failure.
	ErrTransient = errors.New("transient rotation failure")
)

// SettingsReader provides the current Setting.
type SettingsReader interface {
	Get() Setting
}

// FavoriteSource lists favorites and stores re-downloaded bytes.
type FavoriteSource interface {
	List(ctx context.Context) ([]favorites.Favorite, error)
	Recache(ctx context.Context, id string, data []byte) (favorites.Favorite, error)
}

// SourceLister returns the configured sources.
type SourceLister interface {
	ConfiguredSources() []source.ConfiguredSource
}

// ImageFetcher fetches pages and image bytes.
type ImageFetcher interface {
	Fetch(ctx context.Context, src source.ConfiguredSource, req fetch.Request) (fetch.PageResult, error)
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// Applier sets image bytes as the wallpaper.
type Applier interface {
	Apply(ctx context.Context, data []byte, ext string, target wallpaper.Target) error
}

// CycleResult records a finished cycle.
type CycleResult struct {
	ID       string    `json:"id"`
	Outcome  Outcome   `json:"outcome"`
	Error    string    `json:"error,omitempty"`
	ImageID  string    `json:"imageId,omitempty"`
	Source   string    `json:"source,omitempty"`
	Finished time.Time `json:"finished"`
}

// Engine runs rotation cycles. RunCycle is safe to call from several goroutines;
// an overlapping call returns Skip.
type Engine struct {
	settings SettingsReader
	favs     FavoriteSource
	sources  SourceLister
	fetcher  ImageFetcher
	applier  Applier

	running *util.SafeFlag
	last    *util.Observable[CycleResult]

	pick     func(n int) int
	readFile func(path string) ([]byte, error)
	now      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(settings SettingsReader, favs FavoriteSource, sources SourceLister, fetcher ImageFetcher, applier Applier) *Engine {
	return &Engine{
		settings: settings,
		favs:     favs,
		sources:  sources,
		fetcher:  fetcher,
		applier:  applier,
		running:  util.NewSafeBool(),
		last:     util.NewObservable(CycleResult{}),
		pick:     rand.Intn,
		readFile: os.ReadFile,
		now:      time.Now,
	}
}

// LastResult returns the most recent finished cycle. The zero value means none ran yet.
func (e *Engine) LastResult() CycleResult {
	return e.last.Get()
}

// WatchResults streams finished cycles until ctx is done.
func (e *Engine) WatchResults(ctx context.Context) <-chan CycleResult {
	return e.last.Watch(ctx)
}

// candidate is a resolved wallpaper ready for validation.
type candidate struct {
	id     string
	source string
	data   []byte
}

// RunCycle picks one wallpaper according to the current Setting and applies it.
func (e *Engine) RunCycle(ctx context.Context) (Outcome, error) {
	if !e.running.CompareAndSwap(false, true) {
		log.Debugf("Rotation: cycle already running, skipping")
		return Skip, nil
	}
	defer e.running.Set(false)

	id := uuid.NewString()
	st := e.settings.Get()
	if !st.Enabled {
		log.Debugf("Rotation [%s]: disabled", id)
		return Skip, nil
	}

	log.Printf("Rotation [%s]: starting cycle (source=%s, target=%s)", id, st.Source, st.Target)
	outcome, c, err := e.runCycle(ctx, id, st)

	res := CycleResult{ID: id, Outcome: outcome, Finished: e.now()}
	if c != nil {
		res.ImageID, res.Source = c.id, c.source
	}
	if err != nil {
		res.Error = err.Error()
	}
	e.last.Set(res)

	switch outcome {
	case Success:
		log.Printf("Rotation [%s]: applied %s from %s", id, c.id, c.source)
	case Skip:
		log.Printf("Rotation [%s]: skipped: %v", id, err)
	default:
		log.Printf("Rotation [%s]: failed, will retry: %v", id, err)
	}
	return outcome, err
}

func (e *Engine) runCycle(ctx context.Context, id string, st Setting) (Outcome, *candidate, error) {
	var (
		c   *candidate
		err error
	)
	switch st.Source {
	case ModeCustomSources:
		c, err = e.fromSources(ctx, id, st.CustomSourceKeys)
	default:
		c, err = e.fromFavorites(ctx, id)
	}
	if err != nil {
		if errors.Is(err, ErrNoCandidates) {
			return Skip, nil, err
		}
		return RetryLater, nil, transient(err)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(c.data))
	if err != nil {
		return RetryLater, c, transient(fmt.Errorf("downloaded data for %s is not an image: %w", c.id, err))
	}

	if err := e.applier.Apply(ctx, c.data, extensionFor(format), st.Target); err != nil {
		return RetryLater, c, transient(err)
	}
	return Success, c, nil
}

func transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func extensionFor(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

func (e *Engine) fromFavorites(ctx context.Context, id string) (*candidate, error) {
	list, err := e.favs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no favorites saved", ErrNoCandidates)
	}
	fav := list[e.pick(len(list))]

	if fav.LocalPath != "" {
		data, err := e.readFile(fav.LocalPath)
		if err == nil && len(data) > 0 {
			return &candidate{id: fav.ID, source: fav.SourceKey, data: data}, nil
		}
		log.Printf("Rotation [%s]: cached file for favorite %s unusable, downloading: %v", id, fav.ID, err)
	}

	data, err := e.fetcher.Download(ctx, fav.URL)
	if err != nil {
		return nil, fmt.Errorf("downloading favorite %s: %w", fav.ID, err)
	}
	if _, err := e.favs.Recache(ctx, fav.ID, data); err != nil {
		log.Printf("Rotation [%s]: failed to re-cache favorite %s: %v", id, fav.ID, err)
	}
	return &candidate{id: fav.ID, source: fav.SourceKey, data: data}, nil
}

func (e *Engine) fromSources(ctx context.Context, id string, keys []string) (*candidate, error) {
	var pool []source.ConfiguredSource
	for _, src := range e.sources.ConfiguredSources() {
		if src.IsConfigured() && slices.Contains(keys, src.UniqueKey) {
			pool = append(pool, src)
		}
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: none of the selected sources are configured", ErrNoCandidates)
	}
	src := pool[e.pick(len(pool))]

	page, err := e.fetcher.Fetch(ctx, src, fetch.Request{Page: 1})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", src.UniqueKey, err)
	}
	if len(page.Items) == 0 {
		return nil, fmt.Errorf("%w: %s returned no images", ErrNoCandidates, src.UniqueKey)
	}
	item := page.Items[e.pick(len(page.Items))]
	log.Debugf("Rotation [%s]: picked %s from %s", id, item.ID, src.UniqueKey)

	data, err := e.fetcher.Download(ctx, item.URL)
	if err != nil {
		return nil, fmt.Errorf("downloading %s from %s: %w", item.ID, src.UniqueKey, err)
	}
	return &candidate{id: item.ID, source: src.UniqueKey, data: data}, nil
}
