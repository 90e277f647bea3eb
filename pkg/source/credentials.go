package source

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"strings"
	"sync"

	"github.com/dixieflatline76/wallsource/config"
	"github.com/dixieflatline76/wallsource/pkg/prefs"
	"github.com/dixieflatline76/wallsource/util"
	"github.com/dixieflatline76/wallsource/util/log"
	"github.com/zalando/go-keyring"
)

// Preference keys for source markers.
const (
	DefaultSourcePrefKey  = "source_default_key"
	LastUsedSourcePrefKey = "source_last_used_key"
)

// APIKeyServicePrefix is prepended to the source key to name its keyring entry.
const APIKeyServicePrefix = "wallsource_api_key_"

// CredentialStore keeps per-source API keys in the OS keyring and the
// default/last-used markers in preferences.
type CredentialStore struct {
	prefs  prefs.Store
	userid string

	mu       sync.Mutex
	keys     map[string]*util.Observable[string]
	def      *util.Observable[string]
	lastUsed *util.Observable[string]
	revision *util.Observable[uint64]
}

// NewCredentialStore creates a CredentialStore over p.
func NewCredentialStore(p prefs.Store) *CredentialStore {
	userid := config.AppName
	if u, err := user.Current(); err == nil {
		userid = u.Uid
	} else {
		log.Printf("CredentialStore: Failed to get current user, using %q: %v", userid, err)
	}

	cs := &CredentialStore{
		prefs:    p,
		userid:   userid,
		keys:     make(map[string]*util.Observable[string]),
		def:      util.NewObservable(p.String(DefaultSourcePrefKey)),
		lastUsed: util.NewObservable(p.String(LastUsedSourcePrefKey)),
		revision: util.NewObservable[uint64](0),
	}
	// External edits to the preferences file re-publish the markers.
	p.AddChangeListener(cs.syncMarkers)
	return cs
}

func (cs *CredentialStore) syncMarkers() {
	changed := false
	if v := cs.prefs.String(DefaultSourcePrefKey); v != cs.def.Get() {
		cs.def.Set(v)
		changed = true
	}
	if v := cs.prefs.String(LastUsedSourcePrefKey); v != cs.lastUsed.Get() {
		cs.lastUsed.Set(v)
		changed = true
	}
	if changed {
		cs.bump()
	}
}

func (cs *CredentialStore) bump() {
	cs.mu.Lock()
	rev := cs.revision.Get() + 1
	cs.mu.Unlock()
	cs.revision.Set(rev)
}

func serviceName(sourceKey string) string {
	return APIKeyServicePrefix + sourceKey
}

// keyObservable returns the cached observable for sourceKey, loading it from
// the keyring on first use.
func (cs *CredentialStore) keyObservable(sourceKey string) *util.Observable[string] {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if o, ok := cs.keys[sourceKey]; ok {
		return o
	}
	apiKey, err := keyring.Get(serviceName(sourceKey), cs.userid)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		log.Printf("failed to retrieve API key for %s from keyring: %v", sourceKey, err)
	}
	o := util.NewObservable(apiKey)
	cs.keys[sourceKey] = o
	return o
}

// APIKey returns the stored key for sourceKey, or "".
func (cs *CredentialStore) APIKey(sourceKey string) string {
	return cs.keyObservable(sourceKey).Get()
}

// SetAPIKey stores value for sourceKey. A blank value removes the entry.
// Subscribers are notified only after the keyring accepted the write.
func (cs *CredentialStore) SetAPIKey(sourceKey, value string) error {
	if sourceKey == "" {
		return fmt.Errorf("empty source key")
	}
	value = strings.TrimSpace(value)
	o := cs.keyObservable(sourceKey)

	if value == "" {
		err := keyring.Delete(serviceName(sourceKey), cs.userid)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to delete API key for %s: %w", sourceKey, err)
		}
	} else if err := keyring.Set(serviceName(sourceKey), cs.userid, value); err != nil {
		return fmt.Errorf("failed to save API key for %s: %w", sourceKey, err)
	}

	if o.Get() == value {
		return nil
	}
	o.Set(value)
	cs.bump()
	return nil
}

// WatchAPIKey streams the key for sourceKey, starting with the current one.
func (cs *CredentialStore) WatchAPIKey(ctx context.Context, sourceKey string) <-chan string {
	return cs.keyObservable(sourceKey).Watch(ctx)
}

// DefaultSourceKey returns the default source marker, or "".
func (cs *CredentialStore) DefaultSourceKey() string {
	return cs.def.Get()
}

// SetDefaultSource marks sourceKey as the default source.
func (cs *CredentialStore) SetDefaultSource(sourceKey string) error {
	return cs.setMarker(DefaultSourcePrefKey, cs.def, sourceKey)
}

// WatchDefaultSourceKey streams the default source marker.
func (cs *CredentialStore) WatchDefaultSourceKey(ctx context.Context) <-chan string {
	return cs.def.Watch(ctx)
}

// LastUsedSourceKey returns the last used source marker, or "".
func (cs *CredentialStore) LastUsedSourceKey() string {
	return cs.lastUsed.Get()
}

// SetLastUsedSource records sourceKey as the last used source.
func (cs *CredentialStore) SetLastUsedSource(sourceKey string) error {
	return cs.setMarker(LastUsedSourcePrefKey, cs.lastUsed, sourceKey)
}

// WatchLastUsedSourceKey streams the last used source marker.
func (cs *CredentialStore) WatchLastUsedSourceKey(ctx context.Context) <-chan string {
	return cs.lastUsed.Watch(ctx)
}

func (cs *CredentialStore) setMarker(prefKey string, o *util.Observable[string], sourceKey string) error {
	if cs.prefs.String(prefKey) == sourceKey && o.Get() == sourceKey {
		return nil
	}
	err := cs.prefs.Update(func(w prefs.Writer) {
		w.SetString(prefKey, sourceKey)
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", prefKey, err)
	}
	// syncMarkers usually published it already.
	if o.Get() != sourceKey {
		o.Set(sourceKey)
		cs.bump()
	}
	return nil
}

// OnChange registers fn to run after any key or marker change.
func (cs *CredentialStore) OnChange(fn func()) (cancel func()) {
	return cs.revision.Subscribe(func(uint64) { fn() })
}
