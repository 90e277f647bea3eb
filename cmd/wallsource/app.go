package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dixieflatline76/wallsource/asset"
	"github.com/dixieflatline76/wallsource/config"
	"github.com/dixieflatline76/wallsource/pkg/favorites"
	"github.com/dixieflatline76/wallsource/pkg/fetch"
	"github.com/dixieflatline76/wallsource/pkg/prefs"
	"github.com/dixieflatline76/wallsource/pkg/rotation"
	"github.com/dixieflatline76/wallsource/pkg/source"
	"github.com/dixieflatline76/wallsource/pkg/storage"
	"github.com/dixieflatline76/wallsource/pkg/wallpaper"
	"github.com/dixieflatline76/wallsource/util/log"
)

// application holds every component, wired over one data directory.
type application struct {
	dataDir string

	prefs    *prefs.FilePreferences
	cfg      *config.AppConfig
	client   *http.Client
	configs  *source.ConfigStore
	creds    *source.CredentialStore
	registry *source.Registry
	engine   *fetch.Engine
	favs     *favorites.Store
	settings *rotation.SettingsStore
	applier  *wallpaper.Applier
	rotator  *rotation.Engine
}

// openApp wires the components. Callers must Close the result.
func openApp(ctx context.Context, dataDir string) (*application, error) {
	if dataDir == "" {
		dir, err := config.DataDir()
		if err != nil {
			return nil, fmt.Errorf("resolving data directory: %w", err)
		}
		dataDir = dir
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	a := &application{dataDir: dataDir}

	p, err := prefs.NewFilePreferences(filepath.Join(dataDir, config.PrefsFile))
	if err != nil {
		return nil, err
	}
	a.prefs = p
	a.cfg = config.NewAppConfig(p)

	a.client = fetch.NewHTTPClient(fetch.ClientOptions{
		UserAgent:      a.cfg.GetUserAgent(),
		RequestTimeout: a.cfg.GetRequestTimeout(),
		HostRate:       a.cfg.GetHostRate(),
	})

	docs := storage.NewDocumentStore(filepath.Join(dataDir, config.DocumentsDir))
	a.configs = source.NewConfigStore(docs, asset.NewManager().DefaultSources, a.client, nil)
	a.creds = source.NewCredentialStore(p)
	a.registry, err = source.NewRegistry(ctx, a.configs, a.creds)
	if err != nil {
		return nil, err
	}
	a.engine = fetch.NewEngine(a.client)

	favFiles := storage.NewFileCache(filepath.Join(dataDir, config.FavoritesDir))
	a.favs, err = favorites.New(filepath.Join(dataDir, config.DatabaseFile), favFiles, a.cfg.GetFavoritesLimit())
	if err != nil {
		a.registry.Close()
		return nil, err
	}
	if n, err := a.favs.CleanupOrphans(ctx); err != nil {
		log.Printf("Favorites: cleanup failed: %v", err)
	} else if n > 0 {
		log.Printf("Favorites: removed %d orphaned files", n)
	}

	a.settings = rotation.NewSettingsStore(p)
	a.applier = wallpaper.NewApplier(storage.NewFileCache(filepath.Join(dataDir, config.CacheDir)))
	a.rotator = rotation.NewEngine(a.settings, a.favs, a.registry, a.engine, a.applier)
	return a, nil
}

// Close releases the database and registry subscriptions.
func (a *application) Close() error {
	a.registry.Close()
	return a.favs.Close()
}

// sourceOrErr resolves a source key against the registry.
func (a *application) sourceOrErr(key string) (source.ConfiguredSource, error) {
	if key == "" {
		src, ok := a.registry.PreferredSource()
		if !ok {
			return source.ConfiguredSource{}, errors.New("no sources are configured")
		}
		return src, nil
	}
	src, ok := a.registry.Source(key)
	if !ok {
		return source.ConfiguredSource{}, fmt.Errorf("%w: %q", source.ErrUnknownSource, key)
	}
	return src, nil
}
