package log

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dixieflatline76/wallsource/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Release builds rotate at 5 MB and keep five compressed backups for two weeks.
const (
	maxLogSizeMB  = 5
	maxLogBackups = 5
	maxLogAgeDays = 14
)

// newRotatingFile returns a writer for <dataDir>/logs/wallsource.log.
func newRotatingFile(dataDir string) (*lumberjack.Logger, error) {
	dir := filepath.Join(dataDir, config.LogsDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, config.LogFile),
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		LocalTime:  true,
		Compress:   true,
	}, nil
}
