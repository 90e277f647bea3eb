package wallpaper

import (
	"errors"
	"sync"
)

// ChromeOS implements Setter for Crostini, where the wallpaper can only be set
// by a browser extension connected over the local API.
type ChromeOS struct {
	mu             sync.Mutex
	bridgeCallback func(string) error
}

func (c *ChromeOS) setDesktop(path string) error {
	c.mu.Lock()
	cb := c.bridgeCallback
	c.mu.Unlock()

	if cb == nil {
		return errors.New("chrome extension bridge not connected")
	}
	return cb(path)
}

func (c *ChromeOS) setLockScreen(string) error {
	return ErrUnsupportedTarget
}

// RegisterBridge registers the callback that forwards a wallpaper path to the extension.
func (c *ChromeOS) RegisterBridge(cb func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bridgeCallback = cb
}

// Bridge returns the ChromeOS setter when running under Crostini.
func (a *Applier) Bridge() (*ChromeOS, bool) {
	c, ok := a.setter.(*ChromeOS)
	return c, ok
}
