package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dixieflatline76/wallsource/pkg/prefs"
	"github.com/dixieflatline76/wallsource/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func newTestRegistry(t *testing.T, bundled string) (*Registry, *ConfigStore, *CredentialStore) {
	t.Helper()
	keyring.MockInit()
	configs := NewConfigStore(storage.NewDocumentStore(t.TempDir()), bundledOf(bundled), http.DefaultClient, nil)
	creds := NewCredentialStore(prefs.NewInMemory())
	r, err := NewRegistry(context.Background(), configs, creds)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r, configs, creds
}

func sourceKeys(list []ConfiguredSource) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.UniqueKey
	}
	return out
}

func TestRegistry_RequireAPIKeyFlipsConfigured(t *testing.T) {
	r, _, _ := newTestRegistry(t, documentJSON(sourceJSON("wallhaven", false), sourceJSON("pexels", true)))

	pexels, ok := r.Source("pexels")
	require.True(t, ok)
	assert.False(t, pexels.IsConfigured())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := r.WatchConfiguredSources(ctx)
	<-stream // current snapshot

	require.NoError(t, r.SetAPIKey("pexels", "secret"))

	select {
	case list := <-stream:
		s, ok := find(list, "pexels")
		require.True(t, ok)
		assert.True(t, s.IsConfigured())
		assert.Equal(t, "secret", s.APIKey)
	case <-time.After(time.Second):
		t.Fatal("no emission after key change")
	}
}

func TestRegistry_DefaultSourceFirst(t *testing.T) {
	r, _, _ := newTestRegistry(t, documentJSON(sourceJSON("a", false), sourceJSON("b", false), sourceJSON("c", false)))
	assert.Equal(t, []string{"a", "b", "c"}, sourceKeys(r.ConfiguredSources()))

	_, ok := r.DefaultSource()
	assert.False(t, ok)

	require.NoError(t, r.SetDefault("c"))
	assert.Equal(t, []string{"c", "a", "b"}, sourceKeys(r.ConfiguredSources()))

	def, ok := r.DefaultSource()
	require.True(t, ok)
	assert.Equal(t, "c", def.UniqueKey)
	assert.True(t, def.IsDefault)

	// Idempotent
	require.NoError(t, r.SetDefault("c"))
	assert.Equal(t, []string{"c", "a", "b"}, sourceKeys(r.ConfiguredSources()))

	assert.ErrorIs(t, r.SetDefault("missing"), ErrUnknownSource)
}

func TestRegistry_LastUsedFollowsDocument(t *testing.T) {
	r, _, _ := newTestRegistry(t, documentJSON(sourceJSON("wallhaven", false), sourceJSON("pexels", true)))

	_, ok := r.LastUsedSource()
	assert.False(t, ok)

	require.NoError(t, r.SetLastUsed("pexels"))
	last, ok := r.LastUsedSource()
	require.True(t, ok)
	assert.Equal(t, "pexels", last.UniqueKey)

	preferred, ok := r.PreferredSource()
	require.True(t, ok)
	assert.Equal(t, "pexels", preferred.UniqueKey)

	// A new document without pexels drops the last used source
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(documentJSON(sourceJSON("wallhaven", false))))
	}))
	defer ts.Close()
	require.NoError(t, r.UpdateFromNetwork(context.Background(), ts.URL))

	_, ok = r.LastUsedSource()
	assert.False(t, ok)
	assert.Equal(t, []string{"wallhaven"}, sourceKeys(r.ConfiguredSources()))
}

func TestRegistry_ConcurrentReadsSeeWholeSnapshots(t *testing.T) {
	r, _, _ := newTestRegistry(t, documentJSON(sourceJSON("a", false), sourceJSON("b", true)))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				list := r.ConfiguredSources()
				assert.Len(t, list, 2)
			}
		}()
	}

	for i := 0; i < 50; i++ {
		key := "a"
		if i%2 == 0 {
			key = "b"
		}
		require.NoError(t, r.SetDefault(key))
	}
	close(stop)
	wg.Wait()
}

func TestRegistry_RefreshRacingImportEndsOnNewDefinitions(t *testing.T) {
	r, _, _ := newTestRegistry(t, documentJSON(sourceJSON("old", false)))

	path := filepath.Join(t.TempDir(), "sources.json")
	require.NoError(t, os.WriteFile(path, []byte(documentJSON(sourceJSON("new", false))), 0600))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				assert.NoError(t, r.Refresh(context.Background()))
			}
		}()
	}

	require.NoError(t, r.ImportFromFile(context.Background(), path))
	close(stop)
	wg.Wait()

	assert.Equal(t, []string{"new"}, sourceKeys(r.ConfiguredSources()))
}
