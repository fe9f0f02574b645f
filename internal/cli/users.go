package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tansive/reportformatsrv/internal/reportformats/registry"
)

func newAlertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alerts ID",
		Short: "List the alerts that deliver or attach a report format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context())
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			uses, aerr := a.registry.AlertsUsing(ctx, principal(), args[0])
			if aerr != nil {
				return aerr
			}
			if uses == nil {
				uses = []registry.AlertUse{}
			}
			if jsonOutput {
				printJSON(cmd, uses)
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tREADABLE")
			for _, u := range uses {
				fmt.Fprintf(w, "%s\t%s\t%t\n", u.UUID, u.Name, u.Readable)
			}
			w.Flush()
			return nil
		},
	}
}

func newRemoveUserCmd() *cobra.Command {
	var inheritor string
	cmd := &cobra.Command{
		Use:   "remove-user USER",
		Short: "Delete the report formats of a user, or hand them to another user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context())
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if inheritor != "" {
				if aerr := a.registry.InheritFormats(ctx, principal(), args[0], inheritor); aerr != nil {
					return aerr
				}
				printResult(cmd, args[0], "transferred formats of")
				return nil
			}
			if aerr := a.registry.DeleteUserFormats(ctx, principal(), args[0]); aerr != nil {
				return aerr
			}
			printResult(cmd, args[0], "deleted formats of")
			return nil
		},
	}
	cmd.Flags().StringVar(&inheritor, "inheritor", "", "User that takes over the formats instead of deleting them")
	return cmd
}
