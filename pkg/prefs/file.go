package prefs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dixieflatline76/wallsource/util/log"
	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
)

// FilePreferences is a Store persisted to a TOML file.
// Every write reaches the file before listeners fire. A plain Set that cannot
// be saved is logged and dropped; Update returns the error instead. Edits made
// to the file by another process are picked up by Watch.
type FilePreferences struct {
	*values
	path string

	writeMu     sync.Mutex
	lastWritten []byte
}

// NewFilePreferences opens (or creates) the preferences file at path.
func NewFilePreferences(path string) (*FilePreferences, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating preferences directory: %w", err)
	}

	p := &FilePreferences{
		values: newValues(),
		path:   path,
	}
	p.values.persist = p.save

	if err := p.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return p, nil
}

// Path returns the preferences file path.
func (p *FilePreferences) Path() string {
	return p.path
}

func (p *FilePreferences) load() error {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	data := make(map[string]any)
	if err := toml.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parsing preferences %s: %w", p.path, err)
	}
	p.replace(data)

	p.writeMu.Lock()
	p.lastWritten = raw
	p.writeMu.Unlock()
	return nil
}

// save writes data to disk with a tmp+rename swap.
func (p *FilePreferences) save(data map[string]any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	raw, err := toml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing preferences: %w", err)
	}
	p.lastWritten = raw
	return nil
}

// Watch reloads the file when another process changes it and notifies the
// change listeners. It blocks until ctx is cancelled.
func (p *FilePreferences) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating preferences watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: the file is replaced on every save, which drops
	// watches placed directly on it.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(p.path), err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(p.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, p.reloadIfChanged)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Prefs: watcher error: %v", err)
		}
	}
}

func (p *FilePreferences) reloadIfChanged() {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Prefs: Failed to read preferences: %v", err)
		}
		return
	}

	p.writeMu.Lock()
	same := bytes.Equal(raw, p.lastWritten)
	p.writeMu.Unlock()
	if same {
		return
	}

	if err := p.load(); err != nil {
		log.Printf("Prefs: Ignoring external change: %v", err)
		return
	}
	log.Debugf("Prefs: reloaded %s after external change", p.path)
	p.fire()
}
