//go:build darwin
// +build darwin

package wallpaper

import (
	"fmt"
	"os/exec"
	"strings"
)

// macOSSetter implements Setter through AppleScript.
type macOSSetter struct{}

func getSetter() Setter {
	return &macOSSetter{}
}

// setDesktop sets the picture on every desktop.
func (m *macOSSetter) setDesktop(imagePath string) error {
	script := fmt.Sprintf(`tell application "System Events"
	tell every desktop
		set picture to POSIX file "%s"
	end tell
end tell`, strings.ReplaceAll(imagePath, `"`, `\"`))

	out, err := exec.Command("osascript", "-e", script).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to set wallpaper: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// setLockScreen: macOS derives the lock screen from the desktop picture.
func (m *macOSSetter) setLockScreen(string) error {
	return ErrUnsupportedTarget
}
