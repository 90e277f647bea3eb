//go:build windows
// +build windows

package wallpaper

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	systemParametersInfo = user32.NewProc("SystemParametersInfoW")
)

// Windows API constants
const (
	spiSetDeskWallpaper = 0x0014
	spifUpdateIniFile   = 0x01
	spifSendChange      = 0x02
)

// windowsSetter implements Setter for Windows.
type windowsSetter struct{}

func getSetter() Setter {
	return &windowsSetter{}
}

func (w *windowsSetter) setDesktop(imagePath string) error {
	p, err := windows.UTF16PtrFromString(imagePath)
	if err != nil {
		return err
	}
	if err := systemParametersInfo.Find(); err != nil {
		return fmt.Errorf("loading SystemParametersInfoW: %w", err)
	}

	ret, _, callErr := systemParametersInfo.Call(
		uintptr(spiSetDeskWallpaper),
		uintptr(0),
		uintptr(unsafe.Pointer(p)),
		uintptr(spifUpdateIniFile|spifSendChange),
	)
	if ret == 0 {
		return fmt.Errorf("SystemParametersInfoW: %w", callErr)
	}
	return nil
}

// setLockScreen needs the WinRT personalization API, which is not available here.
func (w *windowsSetter) setLockScreen(string) error {
	return ErrUnsupportedTarget
}
