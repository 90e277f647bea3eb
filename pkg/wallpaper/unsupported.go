//go:build !linux && !darwin && !windows

package wallpaper

import "errors"

type unsupportedSetter struct{}

func getSetter() Setter {
	return unsupportedSetter{}
}

func (unsupportedSetter) setDesktop(string) error {
	return errors.New("setting the wallpaper is not supported on this platform")
}

func (unsupportedSetter) setLockScreen(string) error {
	return ErrUnsupportedTarget
}
