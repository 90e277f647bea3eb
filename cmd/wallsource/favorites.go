package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dixieflatline76/wallsource/pkg/favorites"
	"github.com/dixieflatline76/wallsource/pkg/fetch"
	"github.com/dixieflatline76/wallsource/util/log"
	"github.com/spf13/cobra"
)

var favoriteURL string

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "Manage favorite images",
	RunE:  runFavoritesList,
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorites, newest first",
	RunE:  runFavoritesList,
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add [source] [image-id]",
	Short: "Save an image as a favorite",
	Long: `Looks the image up through the source's detail endpoint, downloads it and
saves it. Pass --url for sources without a detail endpoint.`,
	Args: cobra.ExactArgs(2),
	RunE: runFavoritesAdd,
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove [image-id]",
	Short: "Remove a favorite and its cached file",
	Args:  cobra.ExactArgs(1),
	RunE:  runFavoritesRemove,
}

func init() {
	favoritesAddCmd.Flags().StringVar(&favoriteURL, "url", "", "Full-size image URL")
	favoritesCmd.AddCommand(favoritesListCmd)
	favoritesCmd.AddCommand(favoritesAddCmd)
	favoritesCmd.AddCommand(favoritesRemoveCmd)
	rootCmd.AddCommand(favoritesCmd)
}

func runFavoritesList(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *application) error {
		list, err := a.favs.List(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			cmd.Println("No favorites saved")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tCACHED\tSAVED")
		for _, f := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, f.SourceKey, yesNo(f.LocalPath != ""), f.SavedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	})
}

func runFavoritesAdd(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *application) error {
		src, err := a.sourceOrErr(args[0])
		if err != nil {
			return err
		}

		item := fetch.ImageItem{ID: args[1], URL: favoriteURL, SourceKey: src.UniqueKey, AspectRatio: fetch.DefaultAspectRatio}
		if favoriteURL == "" {
			item, err = a.engine.GetSingleImage(ctx, src, args[1])
			if err != nil {
				return fmt.Errorf("%s", fetch.UserMessage(err))
			}
		}

		data, err := a.engine.Download(ctx, item.URL)
		if err != nil {
			log.Printf("Saving favorite %s without a cached copy: %v", item.ID, err)
			data = nil
		}
		fav, err := a.favs.Add(ctx, favorites.FromItem(item), data)
		if err != nil {
			return err
		}
		cmd.Printf("Saved favorite %s from %s\n", fav.ID, fav.SourceKey)
		return nil
	})
}

func runFavoritesRemove(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *application) error {
		if err := a.favs.Remove(ctx, args[0]); err != nil {
			return err
		}
		cmd.Printf("Removed favorite %s\n", args[0])
		return nil
	})
}
