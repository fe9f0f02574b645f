package cli

import (
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile predefined report formats with the feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context())
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			report, aerr := a.feed.ReconcileAll(ctx)
			if aerr != nil {
				return aerr
			}
			if jsonOutput {
				printJSON(cmd, report)
			} else {
				cmd.Printf("created %d, updated %d, unchanged %d, removed %d\n",
					report.Created, report.Updated, report.Unchanged, report.Removed)
			}
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the startup integrity checks and feed sync, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context())
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			report, err := a.startup(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(cmd, map[string]any{"ok": true, "feed": report})
			} else if report == nil {
				cmd.Println("integrity checks passed, feed not available")
			} else {
				cmd.Printf("integrity checks passed, feed: created %d, updated %d, unchanged %d, removed %d\n",
					report.Created, report.Updated, report.Unchanged, report.Removed)
			}
			return nil
		},
	}
}
