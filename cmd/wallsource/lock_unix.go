//go:build !windows

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dixieflatline76/wallsource/config"
	"github.com/dixieflatline76/wallsource/util/log"
	"golang.org/x/sys/unix"
)

// acquireLock takes an exclusive file lock inside dir. The returned func releases it.
func acquireLock(dir string) (func(), error) {
	path := filepath.Join(dir, config.AppName+".lock")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	lk := unix.Flock_t{Type: unix.F_WRLCK}
	if err := unix.FcntlFlock(file.Fd(), unix.F_SETLK, &lk); err != nil {
		file.Close()
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EACCES) {
			return nil, errAlreadyRunning
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return func() {
		lk := unix.Flock_t{Type: unix.F_UNLCK}
		if err := unix.FcntlFlock(file.Fd(), unix.F_SETLK, &lk); err != nil {
			log.Debugf("Failed to unlock %s: %v", path, err)
		}
		file.Close()
		os.Remove(path)
	}, nil
}
