package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage image sources",
	Long:  `List sources, set API keys and the default source, or replace the source definitions.`,
	RunE:  runSourcesList,
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	RunE:  runSourcesList,
}

var sourcesSetKeyCmd = &cobra.Command{
	Use:   "set-key [source] [api-key]",
	Short: "Set or clear the API key of a source",
	Long:  `Stores the API key in the system keyring. Omit the key to remove it.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSourcesSetKey,
}

var sourcesSetDefaultCmd = &cobra.Command{
	Use:   "set-default [source]",
	Short: "Set the default source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesSetDefault,
}

var sourcesUpdateCmd = &cobra.Command{
	Use:   "update [url]",
	Short: "Replace source definitions from a URL",
	Long:  `Downloads a source definition document. The current definitions are kept if it is invalid.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesUpdate,
}

var sourcesImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Replace source definitions from a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesImport,
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesSetKeyCmd)
	sourcesCmd.AddCommand(sourcesSetDefaultCmd)
	sourcesCmd.AddCommand(sourcesUpdateCmd)
	sourcesCmd.AddCommand(sourcesImportCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printSources(cmd *cobra.Command, a *application) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tLABEL\tAPI KEY\tCONFIGURED\tDEFAULT")
	for _, src := range a.registry.ConfiguredSources() {
		apiKey := "-"
		switch {
		case src.HasAPIKey():
			apiKey = "set"
		case src.RequireAPIKey:
			apiKey = "required"
		case src.SupportAPIKey:
			apiKey = "optional"
		}
		def := ""
		if src.IsDefault {
			def = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", src.UniqueKey, src.Label, apiKey, yesNo(src.IsConfigured()), def)
	}
	return w.Flush()
}

func runSourcesList(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(_ context.Context, a *application) error {
		return printSources(cmd, a)
	})
}

func runSourcesSetKey(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(_ context.Context, a *application) error {
		apiKey := ""
		if len(args) == 2 {
			apiKey = args[1]
		}
		if err := a.registry.SetAPIKey(args[0], apiKey); err != nil {
			return err
		}
		if apiKey == "" {
			cmd.Printf("API key for %s removed\n", args[0])
		} else {
			cmd.Printf("API key for %s saved\n", args[0])
		}
		return nil
	})
}

func runSourcesSetDefault(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(_ context.Context, a *application) error {
		if err := a.registry.SetDefault(args[0]); err != nil {
			return err
		}
		cmd.Printf("Default source set to %s\n", args[0])
		return nil
	})
}

func runSourcesUpdate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *application) error {
		if err := a.registry.UpdateFromNetwork(ctx, args[0]); err != nil {
			return err
		}
		cmd.Printf("Source definitions updated from %s\n", args[0])
		return printSources(cmd, a)
	})
}

func runSourcesImport(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *application) error {
		if err := a.registry.ImportFromFile(ctx, args[0]); err != nil {
			return err
		}
		cmd.Printf("Source definitions imported from %s\n", args[0])
		return printSources(cmd, a)
	})
}
