package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dixieflatline76/wallsource/pkg/rotation"
	"github.com/dixieflatline76/wallsource/pkg/wallpaper"
	"github.com/spf13/cobra"
)

var (
	rotateServe      bool
	rotateAddr       string
	rotateRunOnStart bool

	settingEnabled  bool
	settingInterval int
	settingSource   string
	settingKeys     []string
	settingTarget   string
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate the desktop wallpaper",
	Long: `Runs a single rotation cycle, runs the rotation scheduler in the
foreground, or shows and changes the rotation settings.`,
}

var rotateOnceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run one rotation cycle now",
	RunE:  runRotateOnce,
}

var rotateRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the rotation scheduler until interrupted",
	Long: `Runs a cycle every configured interval, retrying failures with backoff.
Settings edited by another process take effect without a restart.`,
	RunE: runRotateRun,
}

var rotateSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change rotation settings",
	Long: `Without flags the current settings are printed. Flags change only the
given fields; the result is validated before it is stored.`,
	RunE: runRotateSettings,
}

func init() {
	rotateRunCmd.Flags().BoolVar(&rotateServe, "serve", false, "Also serve the local API")
	rotateRunCmd.Flags().StringVar(&rotateAddr, "addr", "", "API listen address (implies --serve)")
	rotateRunCmd.Flags().BoolVar(&rotateRunOnStart, "now", false, "Run a cycle immediately")

	f := rotateSettingsCmd.Flags()
	f.BoolVar(&settingEnabled, "enabled", false, "Enable rotation")
	f.IntVar(&settingInterval, "interval", 0, fmt.Sprintf("Interval in minutes, one of %v", rotation.Intervals()))
	f.StringVar(&settingSource, "source", "", "FAVORITES or CUSTOM_SOURCES")
	f.StringSliceVar(&settingKeys, "sources", nil, "Source keys used by CUSTOM_SOURCES")
	f.StringVar(&settingTarget, "target", "", "HOME, LOCK or BOTH")

	rotateCmd.AddCommand(rotateOnceCmd)
	rotateCmd.AddCommand(rotateRunCmd)
	rotateCmd.AddCommand(rotateSettingsCmd)
	rootCmd.AddCommand(rotateCmd)
}

func runRotateOnce(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *application) error {
		if !a.settings.Get().Enabled {
			cmd.Println("Rotation is disabled; enable it with: wallsource rotate settings --enabled")
			return nil
		}
		outcome, err := a.rotator.RunCycle(ctx)
		res := a.rotator.LastResult()
		switch outcome {
		case rotation.Success:
			cmd.Printf("Applied %s from %s\n", res.ImageID, res.Source)
			return nil
		case rotation.Skip:
			if errors.Is(err, rotation.ErrNoCandidates) {
				cmd.Printf("Nothing to rotate: %v\n", err)
			} else {
				cmd.Println("Skipped")
			}
			return nil
		default:
			return err
		}
	})
}

func runRotateRun(cmd *cobra.Command, _ []string) error {
	addr := rotateAddr
	if rotateServe && addr == "" {
		addr = defaultAPIAddr()
	}
	return withApp(cmd, func(ctx context.Context, a *application) error {
		return runDaemon(ctx, cmd, a, daemonOptions{addr: addr, runOnStart: rotateRunOnStart})
	})
}

func printSetting(cmd *cobra.Command, st rotation.Setting) {
	keys := "-"
	if len(st.CustomSourceKeys) > 0 {
		keys = strings.Join(st.CustomSourceKeys, ",")
	}
	cmd.Printf("enabled:  %t\n", st.Enabled)
	cmd.Printf("interval: %s\n", st.Interval)
	cmd.Printf("source:   %s\n", st.Source)
	cmd.Printf("sources:  %s\n", keys)
	cmd.Printf("target:   %s\n", st.Target)
}

func runRotateSettings(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(_ context.Context, a *application) error {
		st := a.settings.Get()
		f := cmd.Flags()
		changed := false

		if f.Changed("enabled") {
			st.Enabled = settingEnabled
			changed = true
		}
		if f.Changed("interval") {
			st.Interval = rotation.Interval(settingInterval)
			changed = true
		}
		if f.Changed("source") {
			m, err := rotation.ParseMode(settingSource)
			if err != nil {
				return err
			}
			st.Source = m
			changed = true
		}
		if f.Changed("sources") {
			st.CustomSourceKeys = settingKeys
			changed = true
		}
		if f.Changed("target") {
			t, err := wallpaper.ParseTarget(settingTarget)
			if err != nil {
				return err
			}
			st.Target = t
			changed = true
		}

		if changed {
			if err := a.settings.Update(st); err != nil {
				return err
			}
			st = a.settings.Get()
		}
		printSetting(cmd, st)
		return nil
	})
}
