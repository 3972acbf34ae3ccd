package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"bmcheck.local/internal/platform/auth"
)

var tokenScope string

var tokenCmd = &cobra.Command{
	Use:   "token <client-id>",
	Short: "Sign an API token for a client",
	Long: `Sign a bearer token accepted by the API server. Uses JWT_SECRET,
JWT_ISSUER and JWT_TTL from the environment.

Examples:
  JWT_SECRET=... bmcheck token firefox-laptop
  JWT_SECRET=... bmcheck token ops --scope admin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, err := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
		if err != nil {
			return err
		}
		token, err := ts.Sign(args[0], tokenScope)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenScope, "scope", auth.ScopeCheck, "token scope: check or admin")
	rootCmd.AddCommand(tokenCmd)
}
