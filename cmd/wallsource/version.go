package main

import (
	"context"

	"github.com/dixieflatline76/wallsource/config"
	"github.com/dixieflatline76/wallsource/util"
	"github.com/spf13/cobra"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("%s %s\n", config.AppName, config.AppVersion)
		if !versionCheck {
			return nil
		}
		return withApp(cmd, func(ctx context.Context, a *application) error {
			if !a.cfg.GetUpdateCheckEnabled() {
				cmd.Println("Update checks are disabled")
				return nil
			}
			res, err := util.CheckForUpdates(ctx, a.client)
			if err != nil {
				return err
			}
			if res.UpdateAvailable {
				cmd.Printf("Version %s is available: %s\n", res.LatestVersion, res.ReleaseURL)
			} else {
				cmd.Println("You are running the latest version")
			}
			return nil
		})
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check GitHub for a newer release")
	rootCmd.AddCommand(versionCmd)
}
