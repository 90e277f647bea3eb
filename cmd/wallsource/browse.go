package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dixieflatline76/wallsource/pkg/browse"
	"github.com/dixieflatline76/wallsource/pkg/fetch"
	"github.com/dixieflatline76/wallsource/util/log"
	"github.com/spf13/cobra"
)

var (
	browseQuery   string
	browseSorting string
	browsePages   int
)

var browseCmd = &cobra.Command{
	Use:   "browse [source]",
	Short: "List images from a source",
	Long: `Loads pages from a source and prints the images. Without a source the
last used source is browsed, falling back to the default source.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBrowse,
}

func init() {
	browseCmd.Flags().StringVarP(&browseQuery, "query", "q", "", "Search query (curated images when empty)")
	browseCmd.Flags().StringVar(&browseSorting, "sort", "", "Sort order passed to the source")
	browseCmd.Flags().IntVarP(&browsePages, "pages", "p", 1, "Number of pages to load")
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *application) error {
		key := ""
		if len(args) == 1 {
			key = args[0]
		}
		src, err := a.sourceOrErr(key)
		if err != nil {
			return err
		}
		if !src.IsConfigured() {
			return fmt.Errorf("source %s requires an API key; run: wallsource sources set-key %s <key>", src.UniqueKey, src.UniqueKey)
		}

		c := browse.NewController(a.engine, src,
			browse.WithSorting(browseSorting),
			browse.WithLastUsedHook(func(k string) {
				if err := a.registry.SetLastUsed(k); err != nil {
					log.Printf("Failed to record last used source: %v", err)
				}
			}))
		defer c.Close()

		err = c.Search(ctx, browseQuery)
		for i := 1; err == nil && i < browsePages && !c.State().EndOfList; i++ {
			err = c.LoadNextPage(ctx)
		}

		st := c.State()
		printItems(cmd, st.Items)
		if err != nil {
			return fmt.Errorf("%s", fetch.UserMessage(err))
		}
		if st.EndOfList {
			cmd.Printf("End of list (%d images)\n", len(st.Items))
		}
		return nil
	})
}

func printItems(cmd *cobra.Command, items []fetch.ImageItem) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRATIO\tUPLOADER\tURL")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\n", item.ID, item.AspectRatio, item.Uploader, item.URL)
	}
	w.Flush()
}
