package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/dixieflatline76/wallsource/util"
	"github.com/dixieflatline76/wallsource/util/log"
	"golang.org/x/sync/singleflight"
)

// DocumentName is the name of the persisted source-definition document.
const DocumentName = "sources.json"

// maxDocumentSize bounds how much of a remote document is read.
const maxDocumentSize = 4 << 20

// DocumentStorage reads and writes named documents. storage.DocumentStore implements it.
type DocumentStorage interface {
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
}

// DocumentCache holds the last loaded definitions. It is owned by a
// ConfigStore and may be shared or replaced in tests.
type DocumentCache struct {
	mu    sync.RWMutex
	defs  []Definition
	valid bool
	gen   uint64
}

// NewDocumentCache creates an empty cache.
func NewDocumentCache() *DocumentCache {
	return &DocumentCache{}
}

// Get returns the cached definitions, if any.
func (c *DocumentCache) Get() ([]Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defs, c.valid
}

// Put caches defs.
func (c *DocumentCache) Put(defs []Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs = defs
	c.valid = true
}

// Invalidate drops the cached definitions so the next read reloads them.
func (c *DocumentCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs = nil
	c.valid = false
	c.gen++
}

func (c *DocumentCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// putAt caches defs unless the cache was invalidated after gen was read.
func (c *DocumentCache) putAt(gen uint64, defs []Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.defs = defs
	c.valid = true
}

// ConfigStore loads, caches and replaces the source-definition document.
type ConfigStore struct {
	docs    DocumentStorage
	bundled func() ([]byte, error)
	client  *http.Client
	cache   *DocumentCache

	group    singleflight.Group
	revision *util.Observable[uint64]
	writeMu  sync.Mutex
}

// NewConfigStore creates a ConfigStore. bundled returns the built-in default
// document; cache may be nil.
func NewConfigStore(docs DocumentStorage, bundled func() ([]byte, error), client *http.Client, cache *DocumentCache) *ConfigStore {
	if cache == nil {
		cache = NewDocumentCache()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ConfigStore{
		docs:     docs,
		bundled:  bundled,
		client:   client,
		cache:    cache,
		revision: util.NewObservable[uint64](0),
	}
}

// GetConfig returns the current definitions: cached, else persisted, else bundled.
func (cs *ConfigStore) GetConfig(ctx context.Context) ([]Definition, error) {
	if defs, ok := cs.cache.Get(); ok {
		return defs, nil
	}

	v, err, _ := cs.group.Do("config", func() (any, error) {
		if defs, ok := cs.cache.Get(); ok {
			return defs, nil
		}
		gen := cs.cache.generation()
		defs, err := cs.load()
		if err != nil {
			return nil, err
		}
		cs.cache.putAt(gen, defs)
		return defs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Definition), nil
}

func (cs *ConfigStore) load() ([]Definition, error) {
	raw, err := cs.docs.Read(DocumentName)
	switch {
	case err == nil:
		defs, perr := parseLenient(raw)
		if perr == nil {
			return defs, nil
		}
		log.Printf("ConfigStore: Persisted %s is unusable, using bundled default: %v", DocumentName, perr)
	case errors.Is(err, os.ErrNotExist):
		log.Debugf("ConfigStore: No persisted %s, using bundled default", DocumentName)
	default:
		log.Printf("ConfigStore: Failed to read %s, using bundled default: %v", DocumentName, err)
	}

	if cs.bundled == nil {
		return nil, configErr(Corrupt, "load", errors.New("no bundled document"))
	}
	raw, err = cs.bundled()
	if err != nil {
		return nil, configErr(Corrupt, "load", err)
	}
	defs, err := parseLenient(raw)
	if err != nil {
		return nil, configErr(Corrupt, "load", err)
	}
	return defs, nil
}

// ReplaceFromNetwork downloads, validates and persists a new document.
// On any failure the persisted document and the cache are left untouched.
func (cs *ConfigStore) ReplaceFromNetwork(ctx context.Context, url string) error {
	const op = "replace from network"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return configErr(Network, op, err)
	}
	resp, err := cs.client.Do(req)
	if err != nil {
		return configErr(Network, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return configErr(Network, op, fmt.Errorf("unexpected status %s", resp.Status))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return configErr(Network, op, err)
	}
	if len(raw) > maxDocumentSize {
		return configErr(Invalid, op, fmt.Errorf("document exceeds %d bytes", maxDocumentSize))
	}
	return cs.replace(op, raw)
}

// ImportFromFile validates and persists the document stored at path.
func (cs *ConfigStore) ImportFromFile(ctx context.Context, path string) error {
	const op = "import from file"
	if err := ctx.Err(); err != nil {
		return configErr(IO, op, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return configErr(IO, op, err)
	}
	return cs.replace(op, raw)
}

// ImportFromReader validates and persists a document read from r.
func (cs *ConfigStore) ImportFromReader(ctx context.Context, r io.Reader) error {
	const op = "import"
	if err := ctx.Err(); err != nil {
		return configErr(IO, op, err)
	}
	raw, err := io.ReadAll(io.LimitReader(r, maxDocumentSize+1))
	if err != nil {
		return configErr(IO, op, err)
	}
	if len(raw) > maxDocumentSize {
		return configErr(Invalid, op, fmt.Errorf("document exceeds %d bytes", maxDocumentSize))
	}
	return cs.replace(op, raw)
}

func (cs *ConfigStore) replace(op string, raw []byte) error {
	if _, err := parseStrict(raw); err != nil {
		return configErr(Invalid, op, err)
	}

	cs.writeMu.Lock()
	if err := cs.docs.Write(DocumentName, raw); err != nil {
		cs.writeMu.Unlock()
		return configErr(IO, op, err)
	}
	cs.cache.Invalidate()
	cs.group.Forget("config")
	rev := cs.revision.Get() + 1
	cs.writeMu.Unlock()

	log.Printf("ConfigStore: Source definitions replaced (%s)", op)
	cs.revision.Set(rev)
	return nil
}

// Invalidate drops the cached document.
func (cs *ConfigStore) Invalidate() {
	cs.cache.Invalidate()
}

// OnChange registers fn to run after each successful replace or import.
func (cs *ConfigStore) OnChange(fn func()) (cancel func()) {
	return cs.revision.Subscribe(func(uint64) { fn() })
}

func decode(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decoding source document: %w", err)
	}
	return doc, nil
}

// parseStrict accepts a document only if every source is valid.
func parseStrict(raw []byte) ([]Definition, error) {
	doc, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc.Sources, nil
}

// parseLenient drops mis-configured or duplicate sources with a warning and
// fails only when nothing usable remains.
func parseLenient(raw []byte) ([]Definition, error) {
	doc, err := decode(raw)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(doc.Sources))
	defs := make([]Definition, 0, len(doc.Sources))
	for _, d := range doc.Sources {
		if err := d.Validate(); err != nil {
			log.Printf("ConfigStore: Skipping mis-configured source: %v", err)
			continue
		}
		if seen[d.UniqueKey] {
			log.Printf("ConfigStore: Skipping duplicate source %q", d.UniqueKey)
			continue
		}
		seen[d.UniqueKey] = true
		defs = append(defs, d)
	}
	if len(defs) == 0 {
		return nil, errors.New("document has no usable sources")
	}
	return defs, nil
}
