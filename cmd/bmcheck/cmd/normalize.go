package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"bmcheck.local/internal/app/existing"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <url>...",
	Short: "Print the lookup key of each URL",
	Long: `Print the key used to cache and coalesce lookups when fuzzy URL matching
is on. URLs that differ only in scheme, a leading "www.", a trailing slash
or the fragment share one key.

Examples:
  bmcheck normalize https://www.example.com/a/
  bmcheck normalize http://example.com/a#intro`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, u := range args {
			fmt.Fprintln(cmd.OutOrStdout(), existing.NormalizeKey(u))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}
