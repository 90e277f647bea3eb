package config

import (
	"os"
	"path/filepath"
	"strings"
)

// AppVersion is the version of the application, set at build time with -ldflags.
var AppVersion = "v0.1.0"

// AppName is the name of the application.
const AppName = "Wallsource"

// Directory names below the application data directory.
const (
	DocumentsDir = "documents"
	CacheDir     = "cache"
	FavoritesDir = "favorites"
	PrefsFile    = "preferences.toml"
	DatabaseFile = "favorites.db"
	LogsDir      = "logs"
	LogFile      = "wallsource.log"
)

// DataDir returns the root directory for application data.
// WALLSOURCE_HOME overrides the default of ~/.wallsource.
func DataDir() (string, error) {
	if dir := os.Getenv("WALLSOURCE_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, "."+strings.ToLower(AppName)), nil
}
