package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tansive/reportformatsrv/internal/common/logtrace"
	"github.com/tansive/reportformatsrv/internal/reportformats/config"
	"github.com/tansive/reportformatsrv/internal/reportformats/server"
)

var (
	// Global flags
	jsonOutput bool
	configFile string
	asUser     string
	asRoles    []string
)

// NewRootCmd builds the command tree. Each call returns a fresh tree so
// flag state does not leak between invocations.
func NewRootCmd() *cobra.Command {
	jsonOutput, configFile, asUser, asRoles = false, "", "", nil
	cmd := &cobra.Command{
		Use:   "reportformats",
		Short: "Manage and apply report formats",
		Long: `reportformats manages report formats: script bundles with declared
parameters that turn a report document into an output file. It runs the
HTTP service and offers the same operations from the command line against
the configured database and state directories.`,
		PersistentPreRunE: preRunHandlePersistents,
		SilenceErrors:     true,
		SilenceUsage:      true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "", "", "Path to configuration file to override default")
	cmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	cmd.PersistentFlags().StringVarP(&asUser, "user", "u", "", "Act as this user instead of the system")
	cmd.PersistentFlags().StringSliceVar(&asRoles, "role", nil, "Role ids of the acting user")

	cmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newSyncCmd(),
		newCheckCmd(),
		newCreateCmd(),
		newCopyCmd(),
		newModifyCmd(),
		newDeleteCmd(),
		newRestoreCmd(),
		newTrashCmd(),
		newVerifyCmd(),
		newGenerateCmd(),
		newListCmd(),
		newAlertsCmd(),
		newRemoveUserCmd(),
		newTokenCmd(),
		newRemoteCmd(),
	)
	return cmd
}

// Execute runs the command line and exits with a non-zero status on error.
func Execute() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		printError(cmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	var rerr *resultError
	if jsonOutput {
		kv := map[string]any{
			"error": err.Error(),
		}
		if errors.As(err, &rerr) {
			kv["code"] = rerr.code
		}
		writeJSON(w, kv)
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func preRunHandlePersistents(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		configFile = GetDefaultConfigPath()
	}
	if err := config.LoadConfig(configFile); err != nil {
		return fmt.Errorf("unable to load config file: %w", err)
	}
	logtrace.InitLogger(config.Config().LogLevel)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of reportformats",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(cmd, map[string]string{
					"version":    server.ServerVersion,
					"apiVersion": server.ApiVersion,
				})
			} else {
				cmd.Println(server.ServerVersion)
			}
		},
	}
}

// resultError carries the numeric result code of a registry operation.
type resultError struct {
	err  error
	code int
}

func (e *resultError) Error() string {
	return fmt.Sprintf("%v (code %d)", e.err, e.code)
}

func (e *resultError) Unwrap() error {
	return e.err
}

// printJSON prints data as indented JSON to the command output
func printJSON(cmd *cobra.Command, data any) {
	writeJSON(cmd.OutOrStdout(), data)
}

func writeJSON(w io.Writer, data any) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(jsonData))
}
