package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/internal/reportformats/registry"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func printResult(cmd *cobra.Command, id, verb string) {
	if jsonOutput {
		printJSON(cmd, map[string]any{"id": id, "code": registry.CodeOK})
	} else {
		cmd.Printf("%s %s\n", verb, id)
	}
}

func newCopyCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "copy SOURCE_ID",
		Short: "Create a user copy of a report format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context())
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			id, aerr := a.registry.Copy(ctx, principal(), name, args[0])
			if aerr != nil {
				return withCode(aerr, registry.CopyCode)
			}
			printCreated(cmd, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Name of the copy, defaults to the source name")
	return cmd
}

// modifyRequest builds the modify request from the flags that were set on
// cmd. Unset flags leave the field untouched.
func modifyRequest(cmd *cobra.Command, id string) (registry.ModifyRequest, error) {
	req := registry.ModifyRequest{ID: id}
	flags := cmd.Flags()
	if flags.Changed("name") {
		v, _ := flags.GetString("name")
		req.Name = &v
	}
	if flags.Changed("summary") {
		v, _ := flags.GetString("summary")
		req.Summary = &v
	}
	if flags.Changed("active") {
		v, _ := flags.GetBool("active")
		req.Active = &v
	}
	if flags.Changed("predefined") {
		v, _ := flags.GetString("predefined")
		req.Predefined = &v
	}
	req.ParamName, _ = flags.GetString("param")
	req.ParamValue, _ = flags.GetString("value")
	req.ParamValueBase64, _ = flags.GetBool("base64")
	if req.ParamName == "" && flags.Changed("value") {
		return req, fmt.Errorf("--value needs --param")
	}
	return req, nil
}

func newModifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modify ID",
		Short: "Change attributes or a param value of a report format",
		Long: `Change the name, summary, active state or predefined flag of a report
format, or set the value of one of its params.

Examples:
  reportformats modify 6c248850-1f62-11e1-b082-406186ea4fc5 --active --user alice
  reportformats modify 6c248850-1f62-11e1-b082-406186ea4fc5 --param Width --value 120 --user alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := modifyRequest(cmd, args[0])
			if err != nil {
				return err
			}
			ctx := commandContext(cmd.Context())
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if aerr := a.registry.Modify(ctx, principal(), req); aerr != nil {
				return withCode(aerr, registry.ModifyCode)
			}
			printResult(cmd, req.ID, "modified")
			return nil
		},
	}
	cmd.Flags().String("name", "", "New name")
	cmd.Flags().String("summary", "", "New summary")
	cmd.Flags().Bool("active", false, "Make the format active or inactive")
	cmd.Flags().String("predefined", "", "Predefined flag, 0 or 1")
	cmd.Flags().String("param", "", "Name of the param to set")
	cmd.Flags().String("value", "", "New param value")
	cmd.Flags().Bool("base64", false, "The param value is base64 encoded")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var ultimate bool
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Move a report format to the trash, or remove it for good",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context())
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if aerr := a.registry.Delete(ctx, principal(), args[0], ultimate); aerr != nil {
				return withCode(aerr, registry.DeleteCode)
			}
			printResult(cmd, args[0], "deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&ultimate, "ultimate", false, "Remove the format instead of moving it to the trash")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore TRASH_ID",
		Short: "Move a report format from the trash back to the active table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context())
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if aerr := a.registry.Restore(ctx, principal(), args[0]); aerr != nil {
				return withCode(aerr, registry.RestoreCode)
			}
			printResult(cmd, args[0], "restored")
			return nil
		},
	}
}

func newTrashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "Manage trashed report formats",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "empty",
		Short: "Remove every trashed report format of the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context())
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if aerr := a.registry.EmptyTrash(ctx, principal()); aerr != nil {
				return aerr
			}
			if jsonOutput {
				printJSON(cmd, map[string]any{"code": registry.CodeOK})
			} else {
				cmd.Println("trash emptied")
			}
			return nil
		},
	})
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify ID",
		Short: "Recompute the trust state of a report format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context())
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			state, aerr := a.trust.Verify(ctx, principal(), args[0])
			if aerr != nil {
				return aerr
			}
			if jsonOutput {
				printJSON(cmd, map[string]string{"id": args[0], "trust": state.String()})
			} else {
				cmd.Printf("%s trust: %s\n", args[0], state)
			}
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var trash bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List report formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context())
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			formats, aerr := a.registry.List(ctx, principal(), trash)
			if aerr != nil {
				return aerr
			}
			if formats == nil {
				formats = []models.ReportFormat{}
			}
			if jsonOutput {
				printJSON(cmd, formats)
				return nil
			}
			printFormatTable(cmd, formats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&trash, "trash", false, "List trashed formats instead")
	return cmd
}

func printFormatTable(cmd *cobra.Command, formats []models.ReportFormat) {
	title := cases.Title(language.English)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEXTENSION\tTRUST\tACTIVE")
	for _, f := range formats {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", f.UUID, f.Name, f.Extension, title.String(f.Trust.String()), f.Active())
	}
	w.Flush()
}
