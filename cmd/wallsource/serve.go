package main

import (
	"context"

	"github.com/dixieflatline76/wallsource/pkg/api"
	"github.com/dixieflatline76/wallsource/pkg/rotation"
	"github.com/dixieflatline76/wallsource/util/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr     string
	serveNoRotate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local API for a UI process",
	Long: `Serves sources, browsing, favorites and rotation over REST and WebSocket
on a loopback address. The rotation scheduler runs alongside unless
--no-rotate is given.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default "+api.DefaultAddr+")")
	serveCmd.Flags().BoolVar(&serveNoRotate, "no-rotate", false, "Do not run the rotation scheduler")
	rootCmd.AddCommand(serveCmd)
}

func defaultAPIAddr() string {
	return api.DefaultAddr
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr := serveAddr
	if addr == "" {
		addr = defaultAPIAddr()
	}
	return withApp(cmd, func(ctx context.Context, a *application) error {
		return runDaemon(ctx, cmd, a, daemonOptions{addr: addr, noRotate: serveNoRotate})
	})
}

// daemonOptions select the long-running parts started by runDaemon.
type daemonOptions struct {
	addr       string // empty disables the API
	noRotate   bool
	runOnStart bool
}

func (a *application) apiDeps() api.Deps {
	return api.Deps{
		Sources:   a.registry,
		Fetcher:   a.engine,
		Favorites: a.favs,
		Settings:  a.settings,
		Rotator:   a.rotator,
	}
}

// runDaemon holds the data directory lock and runs the preferences watcher,
// the scheduler and the API server until ctx is cancelled or one of them fails.
func runDaemon(ctx context.Context, cmd *cobra.Command, a *application, opts daemonOptions) error {
	release, err := acquireLock(a.dataDir)
	if err != nil {
		return err
	}
	defer release()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.prefs.Watch(ctx)
	})

	if !opts.noRotate {
		sched := rotation.NewScheduler(a.rotator, a.settings)
		sched.RunOnStart = opts.runOnStart
		g.Go(func() error {
			return sched.Run(ctx)
		})
	}

	if opts.addr != "" {
		srv := api.NewServer(a.apiDeps())
		if bridge, ok := a.applier.Bridge(); ok {
			log.Print("ChromeOS detected, wallpapers are applied through the extension bridge")
			bridge.RegisterBridge(srv.BroadcastWallpaper)
		}
		cmd.Printf("Serving on http://%s\n", opts.addr)
		g.Go(func() error {
			return srv.ListenAndServe(ctx, opts.addr)
		})
	}

	err = g.Wait()
	cmd.Println("Stopped")
	return err
}
