// Package prefs provides durable key-value storage behind the fyne.Preferences interface.
package prefs

import (
	"sync"

	"fyne.io/fyne/v2"
	"github.com/dixieflatline76/wallsource/util/log"
)

// Ensure the implementations satisfy Store.
var (
	_ Store = (*InMemory)(nil)
	_ Store = (*FilePreferences)(nil)
)

// Store is a fyne.Preferences whose batched writes report persistence failures.
type Store interface {
	fyne.Preferences
	// Update applies every write made through w as one change: a single
	// save and a single round of change listeners. When the save fails
	// nothing is applied and the error is returned.
	Update(fn func(w Writer)) error
	// Snapshot returns a read-only view of the values as of one commit.
	Snapshot() fyne.Preferences
}

// Writer stages changes inside Store.Update.
type Writer interface {
	SetBool(key string, value bool)
	SetInt(key string, value int)
	SetString(key string, value string)
	SetStringList(key string, value []string)
	RemoveValue(key string)
}

// values is the shared map-backed core of both preference implementations.
// The map is copied on write, so a reader never sees half of a commit.
type values struct {
	mu        sync.RWMutex
	data      map[string]any
	listeners []func()

	// commitMu serializes writers; persist runs under it with the new map.
	commitMu sync.Mutex
	persist  func(data map[string]any) error
}

func newValues() *values {
	return &values{data: make(map[string]any)}
}

func (v *values) get(key string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.data[key]
	return val, ok
}

// commit applies ops to a copy of the data, persists it and swaps it in.
// Listeners fire only after a successful commit.
func (v *values) commit(ops []func(map[string]any)) error {
	if len(ops) == 0 {
		return nil
	}
	v.commitMu.Lock()
	v.mu.RLock()
	next := make(map[string]any, len(v.data)+len(ops))
	for k, val := range v.data {
		next[k] = val
	}
	v.mu.RUnlock()

	for _, op := range ops {
		op(next)
	}
	if v.persist != nil {
		if err := v.persist(next); err != nil {
			v.commitMu.Unlock()
			return err
		}
	}
	v.mu.Lock()
	v.data = next
	v.mu.Unlock()
	v.commitMu.Unlock()

	v.fire()
	return nil
}

func (v *values) set(key string, value any) {
	if err := v.commit([]func(map[string]any){setOp(key, value)}); err != nil {
		log.Printf("Prefs: Failed to save %s: %v", key, err)
	}
}

func (v *values) remove(key string) {
	if _, ok := v.get(key); !ok {
		return
	}
	if err := v.commit([]func(map[string]any){removeOp(key)}); err != nil {
		log.Printf("Prefs: Failed to remove %s: %v", key, err)
	}
}

func setOp(key string, value any) func(map[string]any) {
	return func(m map[string]any) { m[key] = value }
}

func removeOp(key string) func(map[string]any) {
	return func(m map[string]any) { delete(m, key) }
}

// Update implements Store.
func (v *values) Update(fn func(w Writer)) error {
	st := &staged{}
	fn(st)
	return v.commit(st.ops)
}

// staged records writes for Update.
type staged struct {
	ops []func(map[string]any)
}

func (s *staged) SetBool(key string, value bool) {
	s.ops = append(s.ops, setOp(key, value))
}

func (s *staged) SetInt(key string, value int) {
	s.ops = append(s.ops, setOp(key, int64(value)))
}

func (s *staged) SetString(key string, value string) {
	s.ops = append(s.ops, setOp(key, value))
}

func (s *staged) SetStringList(key string, value []string) {
	s.ops = append(s.ops, setOp(key, append([]string(nil), value...)))
}

func (s *staged) RemoveValue(key string) {
	s.ops = append(s.ops, removeOp(key))
}

func (v *values) fire() {
	for _, l := range v.ChangeListeners() {
		l()
	}
}

// Snapshot implements Store. Published maps are never mutated, so the view
// shares the current one. Writes to the view do not reach the store.
func (v *values) Snapshot() fyne.Preferences {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return &InMemory{values: &values{data: v.data}}
}

// replace swaps in data read from outside without persisting it.
func (v *values) replace(data map[string]any) {
	v.commitMu.Lock()
	defer v.commitMu.Unlock()
	v.mu.Lock()
	v.data = data
	v.mu.Unlock()
}

// AddChangeListener registers fn to be called after every change.
func (v *values) AddChangeListener(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listeners = append(v.listeners, fn)
}

// ChangeListeners returns a copy of the registered listeners.
func (v *values) ChangeListeners() []func() {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]func(), len(v.listeners))
	copy(out, v.listeners)
	return out
}

// RemoveValue deletes the value stored under key.
func (v *values) RemoveValue(key string) { v.remove(key) }

func (v *values) Bool(key string) bool { return v.BoolWithFallback(key, false) }

func (v *values) BoolWithFallback(key string, fallback bool) bool {
	val, ok := v.get(key)
	if !ok {
		return fallback
	}
	b, ok := val.(bool)
	if !ok {
		return fallback
	}
	return b
}

func (v *values) SetBool(key string, value bool) { v.set(key, value) }

func (v *values) Float(key string) float64 { return v.FloatWithFallback(key, 0) }

func (v *values) FloatWithFallback(key string, fallback float64) float64 {
	val, ok := v.get(key)
	if !ok {
		return fallback
	}
	switch f := val.(type) {
	case float64:
		return f
	case int64:
		return float64(f)
	case int:
		return float64(f)
	default:
		return fallback
	}
}

func (v *values) SetFloat(key string, value float64) { v.set(key, value) }

func (v *values) Int(key string) int { return v.IntWithFallback(key, 0) }

func (v *values) IntWithFallback(key string, fallback int) int {
	val, ok := v.get(key)
	if !ok {
		return fallback
	}
	// TOML integers are decoded as int64
	switch i := val.(type) {
	case int64:
		return int(i)
	case int:
		return i
	default:
		return fallback
	}
}

func (v *values) SetInt(key string, value int) { v.set(key, int64(value)) }

func (v *values) String(key string) string { return v.StringWithFallback(key, "") }

func (v *values) StringWithFallback(key string, fallback string) string {
	val, ok := v.get(key)
	if !ok {
		return fallback
	}
	s, ok := val.(string)
	if !ok {
		return fallback
	}
	return s
}

func (v *values) SetString(key string, value string) { v.set(key, value) }

func (v *values) StringList(key string) []string {
	return v.StringListWithFallback(key, []string{})
}

func (v *values) StringListWithFallback(key string, fallback []string) []string {
	val, ok := v.get(key)
	if !ok {
		return fallback
	}
	switch l := val.(type) {
	case []string:
		return append([]string(nil), l...)
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return fallback
	}
}

func (v *values) SetStringList(key string, value []string) {
	v.set(key, append([]string(nil), value...))
}

func (v *values) BoolList(key string) []bool {
	return v.BoolListWithFallback(key, []bool{})
}

func (v *values) BoolListWithFallback(key string, fallback []bool) []bool {
	val, ok := v.get(key)
	if !ok {
		return fallback
	}
	switch l := val.(type) {
	case []bool:
		return append([]bool(nil), l...)
	case []any:
		out := make([]bool, 0, len(l))
		for _, item := range l {
			if b, ok := item.(bool); ok {
				out = append(out, b)
			}
		}
		return out
	default:
		return fallback
	}
}

func (v *values) SetBoolList(key string, value []bool) {
	v.set(key, append([]bool(nil), value...))
}

func (v *values) FloatList(key string) []float64 {
	return v.FloatListWithFallback(key, []float64{})
}

func (v *values) FloatListWithFallback(key string, fallback []float64) []float64 {
	val, ok := v.get(key)
	if !ok {
		return fallback
	}
	switch l := val.(type) {
	case []float64:
		return append([]float64(nil), l...)
	case []any:
		out := make([]float64, 0, len(l))
		for _, item := range l {
			switch f := item.(type) {
			case float64:
				out = append(out, f)
			case int64:
				out = append(out, float64(f))
			}
		}
		return out
	default:
		return fallback
	}
}

func (v *values) SetFloatList(key string, value []float64) {
	v.set(key, append([]float64(nil), value...))
}

func (v *values) IntList(key string) []int {
	return v.IntListWithFallback(key, []int{})
}

func (v *values) IntListWithFallback(key string, fallback []int) []int {
	val, ok := v.get(key)
	if !ok {
		return fallback
	}
	switch l := val.(type) {
	case []int64:
		out := make([]int, len(l))
		for i, n := range l {
			out[i] = int(n)
		}
		return out
	case []any:
		out := make([]int, 0, len(l))
		for _, item := range l {
			if n, ok := item.(int64); ok {
				out = append(out, int(n))
			}
		}
		return out
	default:
		return fallback
	}
}

func (v *values) SetIntList(key string, value []int) {
	l := make([]int64, len(value))
	for i, n := range value {
		l[i] = int64(n)
	}
	v.set(key, l)
}

// InMemory is a non-durable fyne.Preferences, used in tests and as a fallback
// when the preferences file cannot be opened.
type InMemory struct {
	*values
}

// NewInMemory creates an empty in-memory preference set.
func NewInMemory() *InMemory {
	return &InMemory{values: newValues()}
}
