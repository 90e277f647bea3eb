// Package wallpaper applies image bytes to the desktop and lock screen.
package wallpaper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dixieflatline76/wallsource/pkg/storage"
	"github.com/dixieflatline76/wallsource/util/log"
)

// Target selects which surface a wallpaper is applied to.
type Target string

const (
	TargetHome Target = "HOME"
	TargetLock Target = "LOCK"
	TargetBoth Target = "BOTH"
)

// ErrUnsupportedTarget is returned when the platform cannot set the requested surface.
var ErrUnsupportedTarget = errors.New("wallpaper target not supported on this platform")

// ParseTarget parses a target name, case-insensitively.
func ParseTarget(s string) (Target, error) {
	t := Target(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown wallpaper target %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known targets.
func (t Target) Valid() bool {
	switch t {
	case TargetHome, TargetLock, TargetBoth:
		return true
	}
	return false
}

// Setter is the operating system specific surface.
type Setter interface {
	setDesktop(path string) error
	setLockScreen(path string) error
}

// Applier writes wallpaper bytes to the cache and hands the file to the OS setter.
type Applier struct {
	files  *storage.FileCache
	setter Setter

	mu   sync.Mutex
	slot int
}

// NewApplier creates an Applier for the current platform, storing files in files.
func NewApplier(files *storage.FileCache) *Applier {
	return newApplier(files, getSetter())
}

func newApplier(files *storage.FileCache, setter Setter) *Applier {
	return &Applier{files: files, setter: setter}
}

// Apply sets data as the wallpaper on target. ext is the file extension without a dot.
func (a *Applier) Apply(ctx context.Context, data []byte, ext string, target Target) error {
	if !target.Valid() {
		return fmt.Errorf("unknown wallpaper target %q", target)
	}
	if len(data) == 0 {
		return errors.New("empty wallpaper data")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Alternate between two file names; some desktops ignore a change when the path is unchanged.
	a.slot = 1 - a.slot
	name := fmt.Sprintf("current_%d.%s", a.slot, sanitizeExt(ext))
	path, err := a.files.Write(name, data)
	if err != nil {
		return fmt.Errorf("writing wallpaper file: %w", err)
	}

	switch target {
	case TargetHome:
		err = a.setter.setDesktop(path)
	case TargetLock:
		err = a.setter.setLockScreen(path)
	case TargetBoth:
		if err = a.setter.setDesktop(path); err != nil {
			break
		}
		if lockErr := a.setter.setLockScreen(path); lockErr != nil {
			if !errors.Is(lockErr, ErrUnsupportedTarget) {
				err = lockErr
				break
			}
			log.Debugf("Wallpaper: lock screen not supported, desktop only")
		}
	}
	if err != nil {
		return fmt.Errorf("setting %s wallpaper: %w", strings.ToLower(string(target)), err)
	}
	log.Debugf("Wallpaper: applied %s to %s", path, target)
	return nil
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	switch ext {
	case "jpg", "jpeg", "png", "gif", "webp", "bmp":
		return ext
	default:
		return "jpg"
	}
}
