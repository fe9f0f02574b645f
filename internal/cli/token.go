package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tansive/reportformatsrv/internal/reportformats/config"
	"github.com/tansive/reportformatsrv/internal/reportformats/server"
)

func newTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the user given with --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asUser == "" {
				return fmt.Errorf("--user is required")
			}
			tok, err := server.IssueToken(config.Config().TokenSecret, asUser, asRoles, ttl)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(cmd, map[string]any{
					"token":      tok,
					"expires_at": time.Now().Add(ttl).UTC().Format(time.RFC3339),
				})
			} else {
				cmd.Println(tok)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Lifetime of the token")
	return cmd
}
