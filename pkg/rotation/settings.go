// Package rotation periodically replaces the wallpaper from favorites or a pool of sources.
package rotation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dixieflatline76/wallsource/pkg/prefs"
	"github.com/dixieflatline76/wallsource/pkg/wallpaper"
)

// Preference keys
const (
	prefsPrefix          = "rotation_"
	EnabledPrefKey       = prefsPrefix + "enabled"
	IntervalPrefKey      = prefsPrefix + "interval_minutes"
	SourcePrefKey        = prefsPrefix + "source"
	CustomSourcesPrefKey = prefsPrefix + "custom_source_keys"
	TargetPrefKey        = prefsPrefix + "target"
)

// Mode selects where rotation candidates come from.
type Mode string

const (
	ModeFavorites     Mode = "FAVORITES"
	ModeCustomSources Mode = "CUSTOM_SOURCES"
)

// Interval is a rotation interval in minutes.
type Interval int

// Allowed intervals
const (
	Interval15Minutes Interval = 15
	Interval30Minutes Interval = 30
	IntervalHourly    Interval = 60
	Interval3Hours    Interval = 180
	Interval6Hours    Interval = 360
	Interval12Hours   Interval = 720
	IntervalDaily     Interval = 1440
)

// DefaultInterval is used when no valid interval is stored.
const DefaultInterval = IntervalHourly

// Intervals returns every allowed interval, shortest first.
func Intervals() []Interval {
	return []Interval{
		Interval15Minutes,
		Interval30Minutes,
		IntervalHourly,
		Interval3Hours,
		Interval6Hours,
		Interval12Hours,
		IntervalDaily,
	}
}

// Valid reports whether i is one of the allowed intervals.
func (i Interval) Valid() bool {
	return slices.Contains(Intervals(), i)
}

// Duration returns the interval as a time.Duration.
func (i Interval) Duration() time.Duration {
	return time.Duration(i) * time.Minute
}

// String returns the string representation of an Interval
func (i Interval) String() string {
	switch i {
	case Interval15Minutes:
		return "Every 15 Minutes"
	case Interval30Minutes:
		return "Every 30 Minutes"
	case IntervalHourly:
		return "Hourly"
	case Interval3Hours:
		return "Every 3 Hours"
	case Interval6Hours:
		return "Every 6 Hours"
	case Interval12Hours:
		return "Every 12 Hours"
	case IntervalDaily:
		return "Daily"
	default:
		return "Unknown"
	}
}

// ErrInvalidSetting is returned by Validate for out-of-range values.
var ErrInvalidSetting = errors.New("invalid rotation setting")

// Setting is the user's rotation configuration.
type Setting struct {
	Enabled          bool             `json:"enabled"`
	Interval         Interval         `json:"interval"`
	Source           Mode             `json:"source"`
	CustomSourceKeys []string         `json:"customSourceKeys"`
	Target           wallpaper.Target `json:"target"`
}

// DefaultSetting returns the setting used before the user changes anything.
func DefaultSetting() Setting {
	return Setting{
		Enabled:          false,
		Interval:         DefaultInterval,
		Source:           ModeFavorites,
		CustomSourceKeys: []string{},
		Target:           wallpaper.TargetHome,
	}
}

// Validate checks every field against its allowed values.
func (s Setting) Validate() error {
	if !s.Interval.Valid() {
		return fmt.Errorf("%w: interval %d minutes is not one of %v", ErrInvalidSetting, s.Interval, Intervals())
	}
	if s.Source != ModeFavorites && s.Source != ModeCustomSources {
		return fmt.Errorf("%w: unknown source mode %q", ErrInvalidSetting, s.Source)
	}
	if !s.Target.Valid() {
		return fmt.Errorf("%w: unknown target %q", ErrInvalidSetting, s.Target)
	}
	return nil
}

// ParseMode parses a source mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if m != ModeFavorites && m != ModeCustomSources {
		return "", fmt.Errorf("%w: unknown source mode %q", ErrInvalidSetting, s)
	}
	return m, nil
}

// SettingsStore reads and writes the Setting in preferences.
type SettingsStore struct {
	prefs prefs.Store
}

// NewSettingsStore creates a SettingsStore over p.
func NewSettingsStore(p prefs.Store) *SettingsStore {
	return &SettingsStore{prefs: p}
}

// Get returns the stored setting. Invalid stored values fall back to their defaults.
func (s *SettingsStore) Get() Setting {
	p := s.prefs.Snapshot()
	def := DefaultSetting()
	st := Setting{
		Enabled:          p.BoolWithFallback(EnabledPrefKey, def.Enabled),
		Interval:         Interval(p.IntWithFallback(IntervalPrefKey, int(def.Interval))),
		Source:           Mode(p.StringWithFallback(SourcePrefKey, string(def.Source))),
		CustomSourceKeys: p.StringListWithFallback(CustomSourcesPrefKey, def.CustomSourceKeys),
		Target:           wallpaper.Target(p.StringWithFallback(TargetPrefKey, string(def.Target))),
	}
	if !st.Interval.Valid() {
		st.Interval = def.Interval
	}
	if st.Source != ModeFavorites && st.Source != ModeCustomSources {
		st.Source = def.Source
	}
	if !st.Target.Valid() {
		st.Target = def.Target
	}
	return st
}

// Update validates and stores st as a single change.
func (s *SettingsStore) Update(st Setting) error {
	if err := st.Validate(); err != nil {
		return err
	}
	keys := make([]string, 0, len(st.CustomSourceKeys))
	for _, k := range st.CustomSourceKeys {
		if k = strings.TrimSpace(k); k != "" && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}

	err := s.prefs.Update(func(w prefs.Writer) {
		w.SetBool(EnabledPrefKey, st.Enabled)
		w.SetInt(IntervalPrefKey, int(st.Interval))
		w.SetString(SourcePrefKey, string(st.Source))
		w.SetStringList(CustomSourcesPrefKey, keys)
		w.SetString(TargetPrefKey, string(st.Target))
	})
	if err != nil {
		return fmt.Errorf("saving rotation settings: %w", err)
	}
	return nil
}

// OnChange registers fn to run when any preference changes.
func (s *SettingsStore) OnChange(fn func()) {
	s.prefs.AddChangeListener(fn)
}
