// Package generator turns a report document into an output file by running
// the generate script of a report format. Formats may depend on other
// formats through report_format_list params; those are applied first into
// temporary directories and handed to the parent script as a files manifest
// whose base directory is the report's XML directory.
package generator

import (
	"context"
	"encoding/xml"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dberror"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/internal/reportformats/paramtypes"
	"github.com/tansive/reportformatsrv/internal/reportformats/runner"
	"github.com/tansive/reportformatsrv/pkg/types"
)

const (
	scriptName    = "generate"
	subreportName = "report.xml"
	shell         = "/bin/sh"
)

// ApplyRequest names the format to apply and the files it works on.
// XMLStart holds the report document without its closing tag; the
// terminal document is written to XMLFile and the output is created in
// XMLDir. Visited is the chain of formats being applied above this one.
type ApplyRequest struct {
	FormatID string   `json:"format_id"`
	XMLStart string   `json:"xml_start"`
	XMLFile  string   `json:"xml_file"`
	XMLDir   string   `json:"xml_dir"`
	Visited  []string `json:"visited,omitempty"`
}

type Pipeline struct {
	store      db.Store
	assets     *assets.Store
	authz      acl.Authorizer
	runner     runner.Runner
	runAs      string
	privileged func() bool
}

type Option func(*Pipeline)

// WithRunAs makes scripts run as account when the service is privileged.
func WithRunAs(account string) Option {
	return func(p *Pipeline) {
		p.runAs = account
	}
}

func New(store db.Store, a *assets.Store, authz acl.Authorizer, r runner.Runner, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		assets:     a,
		authz:      authz,
		runner:     r,
		privileged: runner.IsPrivileged,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply generates the output of a report format and returns its path. A
// format already on the Visited chain yields ErrDependencyCycle.
func (pl *Pipeline) Apply(ctx context.Context, p types.Principal, req ApplyRequest) (string, apperrors.Error) {
	start := time.Now()
	out, _, err := pl.apply(ctx, p, req)
	outcome := outcomeOf(err)
	generateTotal.WithLabelValues(outcome).Inc()
	generateDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return out, err
}

func (pl *Pipeline) apply(ctx context.Context, p types.Principal, req ApplyRequest) (string, *models.ReportFormat, apperrors.Error) {
	if slices.Contains(req.Visited, req.FormatID) {
		log.Ctx(ctx).Warn().Str("report_format", req.FormatID).Strs("visited", req.Visited).Msg("report format dependency cycle")
		return "", nil, ErrDependencyCycle.Msg("report format " + req.FormatID + " depends on itself")
	}

	f, params, err := pl.lookup(ctx, p, req.FormatID)
	if err != nil {
		return "", nil, err
	}
	dir := pl.assets.FormatDir(f)

	files := filesManifest{BaseDir: req.XMLDir}
	deps := dependencies(params)
	if len(deps) > 0 {
		scratch, err := os.MkdirTemp("", "report-format-deps-")
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("report_format", f.UUID).Msg("failed to create dependency scratch dir")
			return "", nil, ErrWorkspace.Err(err)
		}
		defer func() {
			if err := os.RemoveAll(scratch); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("dir", scratch).Msg("failed to remove dependency scratch dir")
			}
		}()
		visited := append(slices.Clone(req.Visited), f.UUID)
		for _, id := range deps {
			if file, ok := pl.applyDependency(ctx, p, req.XMLStart, scratch, id, visited); ok {
				files.Files = append(files.Files, file)
			}
		}
	}

	filesXML, errx := xml.Marshal(files)
	if errx != nil {
		return "", nil, ErrWorkspace.Err(errx)
	}

	output, err := createOutput(ctx, req.XMLDir, f)
	if err != nil {
		return "", nil, err
	}
	ok := false
	defer func() {
		if !ok {
			os.Remove(output)
		}
	}()

	if err := writeTerminalXML(ctx, req.XMLStart, req.XMLFile, params); err != nil {
		return "", nil, err
	}

	script := filepath.Join(dir, scriptName)
	if err := checkScript(ctx, script, f.UUID); err != nil {
		return "", nil, err
	}

	cmd := runner.Command{
		Path: shell,
		Args: []string{"-c", shellCommand(script, req.XMLFile, string(filesXML), output)},
		Dir:  dir,
	}
	if pl.runAs != "" && pl.privileged() {
		for _, path := range []string{req.XMLDir, req.XMLFile, output} {
			if err := runner.ChownToAccount(path, pl.runAs); err != nil {
				log.Ctx(ctx).Error().Err(err).Str("path", path).Msg("failed to hand report files to script account")
				return "", nil, err
			}
		}
		cmd.RunAs = pl.runAs
	}

	res, err := pl.runner.Run(ctx, cmd)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", f.UUID).Msg("failed to run generate script")
		return "", nil, ErrScriptFailed.Err(err)
	}
	if res.ExitCode != 0 {
		log.Ctx(ctx).Debug().Str("report_format", f.UUID).Int("exit_code", res.ExitCode).Msg("generate script exited with non-zero status")
	}
	ok = true
	return output, f, nil
}

// applyDependency applies format id into its own directory under scratch.
// Failures are logged and reported as not ok.
func (pl *Pipeline) applyDependency(ctx context.Context, p types.Principal, xmlStart, scratch, id string, visited []string) (manifestFile, bool) {
	dir, err := os.MkdirTemp(scratch, "dep-")
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("report_format", id).Msg("failed to create dependency dir")
		dependenciesTotal.WithLabelValues("error").Inc()
		return manifestFile{}, false
	}
	out, f, aerr := pl.apply(ctx, p, ApplyRequest{
		FormatID: id,
		XMLStart: xmlStart,
		XMLFile:  filepath.Join(dir, subreportName),
		XMLDir:   dir,
		Visited:  visited,
	})
	if aerr != nil {
		log.Ctx(ctx).Warn().Err(aerr).Str("report_format", id).Msg("skipping dependency report format")
		dependenciesTotal.WithLabelValues(outcomeOf(aerr)).Inc()
		return manifestFile{}, false
	}
	dependenciesTotal.WithLabelValues("ok").Inc()
	return manifestFile{ID: f.UUID, ContentType: f.ContentType, Name: f.Name, Path: out}, true
}

func (pl *Pipeline) lookup(ctx context.Context, p types.Principal, id string) (*models.ReportFormat, []models.Param, apperrors.Error) {
	var (
		f      *models.ReportFormat
		params []models.Param
	)
	err := pl.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		var err apperrors.Error
		f, err = tx.Formats().Get(ctx, id)
		if err != nil {
			if err.Is(dberror.ErrNotFound) {
				return ErrFormatNotFound.Msg("report format " + id + " not found")
			}
			return err
		}
		if !pl.authz.May(ctx, p, acl.OpGet, f) {
			return ErrPermissionDenied
		}
		if !f.Active() {
			return ErrFormatInactive.Msg("report format " + id + " is not active")
		}
		params, err = tx.Params().List(ctx, f.RowID, false)
		return err
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", id).Msg("unable to load report format for generation")
		return nil, nil, err
	}
	return f, params, nil
}

// dependencies returns the distinct format ids named by the
// report_format_list params, in declaration order.
func dependencies(params []models.Param) []string {
	var ids []string
	for _, p := range params {
		if p.Type != types.ParamTypeReportFormatList {
			continue
		}
		for _, id := range paramtypes.SplitFormatList(p.Value) {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func createOutput(ctx context.Context, dir string, f *models.ReportFormat) (string, apperrors.Error) {
	pattern := f.UUID + "-*"
	if f.Extension != "" {
		pattern += "." + f.Extension
	}
	out, err := os.CreateTemp(dir, pattern)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", f.UUID).Msg("failed to create output file")
		return "", ErrWorkspace.MsgErr("unable to create output file", err)
	}
	name := out.Name()
	if err := out.Close(); err != nil {
		os.Remove(name)
		return "", ErrWorkspace.Err(err)
	}
	return name, nil
}

// writeTerminalXML copies the report start to xmlFile and closes the
// document with the format params.
func writeTerminalXML(ctx context.Context, xmlStart, xmlFile string, params []models.Param) apperrors.Error {
	start, err := os.ReadFile(xmlStart)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("file", xmlStart).Msg("failed to read report start")
		return ErrWorkspace.MsgErr("unable to read report", err)
	}
	tail := terminalFormat{}
	for _, p := range params {
		tail.Params = append(tail.Params, terminalParam{Name: p.Name, Value: p.Value})
	}
	body, err := xml.Marshal(tail)
	if err != nil {
		return ErrWorkspace.Err(err)
	}
	doc := make([]byte, 0, len(start)+len(body)+len("</report>"))
	doc = append(doc, start...)
	doc = append(doc, body...)
	doc = append(doc, "</report>"...)
	if err := os.WriteFile(xmlFile, doc, 0600); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("file", xmlFile).Msg("failed to write report")
		return ErrWorkspace.MsgErr("unable to write report", err)
	}
	return nil
}

func checkScript(ctx context.Context, script, id string) apperrors.Error {
	info, err := os.Stat(script)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", id).Msg("generate script not found")
		return ErrScriptMissing.Msg("report format " + id + " has no generate script")
	}
	if info.IsDir() || info.Mode().Perm()&0111 == 0 {
		log.Ctx(ctx).Error().Str("report_format", id).Str("mode", info.Mode().String()).Msg("generate script is not executable")
		return ErrScriptNotExec.Msg("generate script of report format " + id + " is not executable")
	}
	return nil
}

// shellCommand builds the script invocation with every argument quoted for
// sh and stderr discarded.
func shellCommand(script, xmlFile, filesXML, output string) string {
	return strings.Join([]string{
		shellQuote(script),
		shellQuote(xmlFile),
		shellQuote(filesXML),
		">", shellQuote(output),
		"2>/dev/null",
	}, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

type filesManifest struct {
	XMLName xml.Name       `xml:"files"`
	BaseDir string         `xml:"basedir"`
	Files   []manifestFile `xml:"file"`
}

type manifestFile struct {
	ID          string `xml:"id,attr"`
	ContentType string `xml:"content_type,attr"`
	Name        string `xml:"report_format_name,attr"`
	Path        string `xml:",chardata"`
}

type terminalFormat struct {
	XMLName xml.Name        `xml:"report_format"`
	Params  []terminalParam `xml:"param"`
}

type terminalParam struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}
