package cli

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/registry"
	"gopkg.in/yaml.v3"
)

// formatFile is the on-disk description of a report format to import.
// Bundle files are given either inline as base64 or as a path relative to
// the description file.
type formatFile struct {
	ID          string               `yaml:"id"`
	Name        string               `yaml:"name"`
	Summary     string               `yaml:"summary"`
	Description string               `yaml:"description"`
	Extension   string               `yaml:"extension"`
	ContentType string               `yaml:"content_type"`
	Signature   string               `yaml:"signature"`
	Files       []formatFileEntry    `yaml:"files"`
	Params      []registry.ParamSpec `yaml:"params"`
}

type formatFileEntry struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

// loadFormatFile reads a YAML or JSON format description.
func loadFormatFile(filename string) (registry.CreateRequest, error) {
	var req registry.CreateRequest
	data, err := os.ReadFile(filename)
	if err != nil {
		return req, fmt.Errorf("unable to read %s: %w", filename, err)
	}
	var ff formatFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return req, fmt.Errorf("unable to parse %s: %w", filename, err)
	}
	req = registry.CreateRequest{
		ID:          ff.ID,
		Name:        ff.Name,
		Summary:     ff.Summary,
		Description: ff.Description,
		Extension:   ff.Extension,
		ContentType: ff.ContentType,
		Signature:   ff.Signature,
		Params:      ff.Params,
	}
	base := filepath.Dir(filename)
	for _, e := range ff.Files {
		var content []byte
		switch {
		case e.Path != "" && e.Content != "":
			return req, fmt.Errorf("file %q has both path and content", e.Name)
		case e.Path != "":
			p := e.Path
			if !filepath.IsAbs(p) {
				p = filepath.Join(base, p)
			}
			if content, err = os.ReadFile(p); err != nil {
				return req, fmt.Errorf("unable to read bundle file %q: %w", e.Name, err)
			}
		default:
			if content, err = base64.StdEncoding.DecodeString(e.Content); err != nil {
				return req, fmt.Errorf("content of bundle file %q is not base64: %w", e.Name, err)
			}
		}
		req.Files = append(req.Files, assets.File{Name: e.Name, Content: content})
	}
	return req, nil
}

func newCreateCmd() *cobra.Command {
	var filename string
	cmd := &cobra.Command{
		Use:   "create -f FILENAME",
		Short: "Import a report format from a description file",
		Long: `Import a report format from a YAML or JSON description file. Bundle
files are listed with a name and either a path relative to the description
file or base64 content.

Example:
  reportformats create -f txt/format.yaml --user alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := loadFormatFile(filename)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd.Context())
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			id, aerr := a.registry.Create(ctx, principal(), req)
			if aerr != nil {
				return withCode(aerr, registry.CreateCode)
			}
			printCreated(cmd, id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filename, "filename", "f", "", "Description file of the report format")
	cmd.MarkFlagRequired("filename")
	return cmd
}

func printCreated(cmd *cobra.Command, id string) {
	if jsonOutput {
		printJSON(cmd, map[string]any{"id": id, "code": registry.CodeOK})
	} else {
		cmd.Println(id)
	}
}
