//go:build windows

package main

import (
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"

	"github.com/dixieflatline76/wallsource/config"
	"github.com/dixieflatline76/wallsource/util/log"
	"golang.org/x/sys/windows"
)

// acquireLock creates a named mutex derived from dir. The returned func releases it.
func acquireLock(dir string) (func(), error) {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(filepath.Clean(dir))))
	name, err := windows.UTF16PtrFromString(fmt.Sprintf("%s_%x_SingleInstanceMutex", config.AppName, h.Sum64()))
	if err != nil {
		return nil, err
	}

	mutex, err := windows.CreateMutex(nil, false, name)
	if err != nil {
		if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
			if mutex != 0 {
				windows.CloseHandle(mutex)
			}
			return nil, errAlreadyRunning
		}
		return nil, fmt.Errorf("failed to create mutex: %w", err)
	}

	return func() {
		if err := windows.ReleaseMutex(mutex); err != nil {
			log.Debugf("Failed to release mutex: %v", err)
		}
		if err := windows.CloseHandle(mutex); err != nil {
			log.Printf("Failed to close mutex handle: %v", err)
		}
	}, nil
}
