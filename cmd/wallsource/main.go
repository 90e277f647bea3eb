// Command wallsource browses wallpaper sources, manages favorites and rotates the desktop wallpaper.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dixieflatline76/wallsource/config"
	"github.com/dixieflatline76/wallsource/util/log"
	"github.com/spf13/cobra"
)

// dataDir overrides the application data directory.
var dataDir string

var rootCmd = &cobra.Command{
	Use:   "wallsource",
	Short: "Wallpaper sources, favorites and rotation",
	Long: `Wallsource browses wallpapers from configurable remote sources, keeps
favorites, and periodically replaces the desktop wallpaper.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Application data directory (default $WALLSOURCE_HOME or ~/.wallsource)")
}

// withApp opens the application for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *application) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, dataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("Failed to close %s: %v", config.AppName, err)
		}
	}()
	return fn(ctx, a)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
