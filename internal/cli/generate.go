package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tansive/reportformatsrv/internal/reportformats/generator"
)

func newGenerateCmd() *cobra.Command {
	var (
		report string
		dir    string
	)
	cmd := &cobra.Command{
		Use:   "generate ID --report FILE",
		Short: "Apply a report format to a report document",
		Long: `Apply a report format to a report document. FILE holds the report
without its closing tag; the format params and the closing tag are added
before the generate script runs. The output file is created in --dir and
its path is printed.

Example:
  reportformats generate a994b278-1f62-11e1-96ac-406186ea4fc5 --report start.xml --dir /tmp/out`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				var err error
				if dir, err = os.Getwd(); err != nil {
					return err
				}
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			start, err := filepath.Abs(report)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd.Context())
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			out, aerr := a.pipeline.Apply(ctx, principal(), generator.ApplyRequest{
				FormatID: args[0],
				XMLStart: start,
				XMLFile:  filepath.Join(abs, "report.xml"),
				XMLDir:   abs,
			})
			if aerr != nil {
				return aerr
			}
			if jsonOutput {
				printJSON(cmd, map[string]string{"id": args[0], "output": out})
			} else {
				cmd.Println(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&report, "report", "", "Report document without its closing tag")
	cmd.Flags().StringVar(&dir, "dir", "", "Directory for the output file, defaults to the working directory")
	cmd.MarkFlagRequired("report")
	return cmd
}
