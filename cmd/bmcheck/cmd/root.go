package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"bmcheck.local/internal/platform/config"
)

var (
	cfg     config.Config
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bmcheck",
	Short: "Check whether a page is already bookmarked",
	Long: `bmcheck asks the remote bookmark server whether a page has already been
saved, first by URL and then by title similarity.

Configuration is read from the environment (and .env), the same keys the
API server uses: REMOTE_BASE_URL, REMOTE_API_TOKEN, REMOTE_TIMEOUT, ...`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		cfg = config.Load()
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		return nil
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log remote calls to stderr")
}
