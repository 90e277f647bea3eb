package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dixieflatline76/wallsource/util"
	"github.com/dixieflatline76/wallsource/util/log"
)

// ErrUnknownSource is returned when a key does not name a loaded source.
var ErrUnknownSource = errors.New("unknown source")

// Registry joins the ConfigStore definitions with the CredentialStore state and
// republishes the result whenever either store changes. Every published slice
// is immutable.
type Registry struct {
	configs *ConfigStore
	creds   *CredentialStore

	mu       sync.Mutex
	sources  *util.Observable[[]ConfiguredSource]
	lastUsed *util.Observable[*ConfiguredSource]
	cancels  []func()
}

// NewRegistry builds the initial view and subscribes to both stores.
func NewRegistry(ctx context.Context, configs *ConfigStore, creds *CredentialStore) (*Registry, error) {
	r := &Registry{
		configs:  configs,
		creds:    creds,
		sources:  util.NewObservable[[]ConfiguredSource](nil),
		lastUsed: util.NewObservable[*ConfiguredSource](nil),
	}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	r.cancels = append(r.cancels,
		configs.OnChange(r.onUpstreamChange),
		creds.OnChange(r.onUpstreamChange),
	)
	return r, nil
}

// Close detaches the registry from its stores.
func (r *Registry) Close() {
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
}

func (r *Registry) onUpstreamChange() {
	if err := r.Refresh(context.Background()); err != nil {
		log.Printf("Registry: Keeping previous sources: %v", err)
	}
}

// Refresh recomputes the configured sources from both stores. The stores are
// read under r.mu so concurrent refreshes publish in the order they read.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs, err := r.configs.GetConfig(ctx)
	if err != nil {
		return err
	}

	defaultKey := r.creds.DefaultSourceKey()
	list := make([]ConfiguredSource, 0, len(defs))
	var def *ConfiguredSource
	for _, d := range defs {
		cs := ConfiguredSource{
			Definition: d,
			APIKey:     r.creds.APIKey(d.UniqueKey),
			IsDefault:  defaultKey != "" && d.UniqueKey == defaultKey,
		}
		if cs.IsDefault {
			def = &cs
			continue
		}
		list = append(list, cs)
	}
	if def != nil {
		list = append([]ConfiguredSource{*def}, list...)
	}

	r.sources.Set(list)

	var last *ConfiguredSource
	if key := r.creds.LastUsedSourceKey(); key != "" {
		if s, ok := find(list, key); ok {
			last = &s
		}
	}
	if !sameSource(r.lastUsed.Get(), last) {
		r.lastUsed.Set(last)
	}
	return nil
}

func sameSource(a, b *ConfiguredSource) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.UniqueKey == b.UniqueKey && a.APIKey == b.APIKey && a.IsDefault == b.IsDefault &&
		a.Label == b.Label && a.API.BaseURL == b.API.BaseURL
}

func find(list []ConfiguredSource, key string) (ConfiguredSource, bool) {
	for _, s := range list {
		if s.UniqueKey == key {
			return s, true
		}
	}
	return ConfiguredSource{}, false
}

// ConfiguredSources returns the current snapshot, default source first.
// The slice must not be modified.
func (r *Registry) ConfiguredSources() []ConfiguredSource {
	return r.sources.Get()
}

// WatchConfiguredSources streams snapshots, starting with the current one.
func (r *Registry) WatchConfiguredSources(ctx context.Context) <-chan []ConfiguredSource {
	return r.sources.Watch(ctx)
}

// Source returns the configured source named key.
func (r *Registry) Source(key string) (ConfiguredSource, bool) {
	return find(r.sources.Get(), key)
}

// DefaultSource returns the source marked as default, if any.
func (r *Registry) DefaultSource() (ConfiguredSource, bool) {
	for _, s := range r.sources.Get() {
		if s.IsDefault {
			return s, true
		}
	}
	return ConfiguredSource{}, false
}

// LastUsedSource returns the entry matching the last used key, if it still exists.
func (r *Registry) LastUsedSource() (ConfiguredSource, bool) {
	if s := r.lastUsed.Get(); s != nil {
		return *s, true
	}
	return ConfiguredSource{}, false
}

// WatchLastUsedSource streams the last used source; nil means none.
func (r *Registry) WatchLastUsedSource(ctx context.Context) <-chan *ConfiguredSource {
	return r.lastUsed.Watch(ctx)
}

// PreferredSource picks the source a new list should open with: last used,
// then default, then the first one.
func (r *Registry) PreferredSource() (ConfiguredSource, bool) {
	if s, ok := r.LastUsedSource(); ok {
		return s, true
	}
	list := r.sources.Get()
	if len(list) == 0 {
		return ConfiguredSource{}, false
	}
	// The default, when set, is already first.
	return list[0], true
}

// SetDefault marks key as the default source.
func (r *Registry) SetDefault(key string) error {
	if _, ok := r.Source(key); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, key)
	}
	return r.creds.SetDefaultSource(key)
}

// SetAPIKey stores the API key for key.
func (r *Registry) SetAPIKey(key, apiKey string) error {
	if _, ok := r.Source(key); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, key)
	}
	return r.creds.SetAPIKey(key, apiKey)
}

// SetLastUsed records key as the last used source.
func (r *Registry) SetLastUsed(key string) error {
	if _, ok := r.Source(key); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, key)
	}
	return r.creds.SetLastUsedSource(key)
}

// UpdateFromNetwork replaces the source document from url.
func (r *Registry) UpdateFromNetwork(ctx context.Context, url string) error {
	return r.configs.ReplaceFromNetwork(ctx, url)
}

// ImportFromFile replaces the source document from a local file.
func (r *Registry) ImportFromFile(ctx context.Context, path string) error {
	return r.configs.ImportFromFile(ctx, path)
}
