//go:build linux
// +build linux

package wallpaper

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// linuxSetter implements Setter for X11 and some Wayland compositors.
type linuxSetter struct {
	run func(name string, args ...string) error
}

// getSetter returns the setter for the running desktop.
func getSetter() Setter {
	// Crostini exposes /dev/.cros_milestone
	if _, err := os.Stat("/dev/.cros_milestone"); err == nil {
		return &ChromeOS{}
	}
	return &linuxSetter{run: runCommand}
}

func runCommand(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func desktopEnv() string {
	env := os.Getenv("XDG_CURRENT_DESKTOP")
	if env == "" {
		env = os.Getenv("DESKTOP_SESSION")
	}
	return strings.ToLower(env)
}

// setDesktop sets the desktop wallpaper.
func (l *linuxSetter) setDesktop(imagePath string) error {
	env := desktopEnv()

	if os.Getenv("WAYLAND_DISPLAY") != "" {
		switch {
		case strings.Contains(env, "gnome") || strings.Contains(env, "mutter"):
			return l.setGNOME(imagePath)
		case strings.Contains(env, "sway"):
			return l.setSway(imagePath)
		default:
			return fmt.Errorf("unsupported Wayland compositor: %s", env)
		}
	}

	switch {
	case strings.Contains(env, "gnome") || strings.Contains(env, "unity") || strings.Contains(env, "cinnamon"):
		return l.setGNOME(imagePath)
	case strings.Contains(env, "kde"):
		return l.setKDE(imagePath)
	case strings.Contains(env, "xfce"):
		return l.setXFCE(imagePath)
	default:
		return fmt.Errorf("unsupported X11 desktop environment: %s", env)
	}
}

// setLockScreen is only available on GNOME, which keeps a separate screensaver picture.
func (l *linuxSetter) setLockScreen(imagePath string) error {
	env := desktopEnv()
	if !strings.Contains(env, "gnome") && !strings.Contains(env, "unity") {
		return ErrUnsupportedTarget
	}
	return l.run("gsettings", "set", "org.gnome.desktop.screensaver", "picture-uri", "file://"+imagePath)
}

func (l *linuxSetter) setGNOME(imagePath string) error {
	uri := "file://" + imagePath
	if err := l.run("gsettings", "set", "org.gnome.desktop.background", "picture-uri", uri); err != nil {
		return err
	}
	// Newer GNOME reads a separate key in dark mode. Older versions lack it.
	_ = l.run("gsettings", "set", "org.gnome.desktop.background", "picture-uri-dark", uri)
	return nil
}

func (l *linuxSetter) setKDE(imagePath string) error {
	script := fmt.Sprintf(`var allDesktops = desktops();
for (i=0;i<allDesktops.length;i++) {
    d = allDesktops[i];
    d.wallpaperPlugin = "org.kde.image";
    d.currentConfigGroup = Array("Wallpaper", "org.kde.image", "General");
    d.writeConfig("Image", "file://%s");
}`, imagePath)

	return l.run("dbus-send", "--session", "--dest=org.kde.plasmashell", "--type=method_call",
		"/PlasmaShell", "org.kde.PlasmaShell.evaluateScript", "string:"+script)
}

func (l *linuxSetter) setXFCE(imagePath string) error {
	cfg := filepath.Join(os.Getenv("HOME"), ".config", "xfce4", "xfconf", "xfce-perchannel-xml", "xfce4-desktop.xml")
	if _, err := os.Stat(cfg); err != nil {
		return fmt.Errorf("could not find XFCE desktop configuration file")
	}
	return l.run("xfconf-query",
		"--channel", "xfce4-desktop",
		"--property", "/backdrop/screen0/monitor0/workspace0/last-image",
		"--set", imagePath)
}

// setSway starts swaybg detached; it keeps running to paint the background.
func (l *linuxSetter) setSway(imagePath string) error {
	_ = exec.Command("pkill", "-x", "swaybg").Run()
	cmd := exec.Command("swaybg", "-i", imagePath, "-m", "fill")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting swaybg: %w", err)
	}
	return cmd.Process.Release()
}
