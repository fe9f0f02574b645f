package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/httpx"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/internal/reportformats/generator"
	"github.com/tansive/reportformatsrv/internal/reportformats/registry"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// resultRsp reports the outcome of a mutating operation with its numeric
// result code.
type resultRsp struct {
	ID   string `json:"id,omitempty"`
	Code int    `json:"code"`
}

type bundleFile struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

type createBody struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Summary     string               `json:"summary"`
	Description string               `json:"description"`
	Extension   string               `json:"extension"`
	ContentType string               `json:"content_type"`
	Signature   string               `json:"signature"`
	Files       []bundleFile         `json:"files"`
	Params      []registry.ParamSpec `json:"params"`
}

type modifyBody struct {
	Name             *string `json:"name"`
	Summary          *string `json:"summary"`
	Active           *bool   `json:"active"`
	Predefined       *string `json:"predefined"`
	ParamName        string  `json:"param_name"`
	ParamValue       string  `json:"param_value"`
	ParamValueBase64 bool    `json:"param_value_base64"`
}

type copyBody struct {
	Name string `json:"name"`
}

type generateBody struct {
	Report string `json:"report"`
}

type verifyRsp struct {
	ID    string `json:"id"`
	Trust string `json:"trust"`
}

type generateRsp struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

func principal(r *http.Request) (types.Principal, error) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		return p, ErrNoPrincipal
	}
	return p, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, httpx.ErrInvalidRequest("invalid value for " + name)
	}
	return b, nil
}

func (s *ReportFormatServer) listFormats(r *http.Request) (*httpx.Response, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	trash, err := queryBool(r, "trash")
	if err != nil {
		return nil, err
	}
	formats, aerr := s.svc.Registry.List(r.Context(), p, trash)
	if aerr != nil {
		return nil, aerr
	}
	if formats == nil {
		formats = []models.ReportFormat{}
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: formats}, nil
}

func (s *ReportFormatServer) getFormat(r *http.Request) (*httpx.Response, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	f, aerr := s.svc.Registry.Get(r.Context(), p, chi.URLParam(r, "id"))
	if aerr != nil {
		return nil, aerr
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: f}, nil
}

func (s *ReportFormatServer) createFormat(r *http.Request) (*httpx.Response, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	var body createBody
	if err := decodeBody(r, createSchema, &body); err != nil {
		return nil, err
	}
	req := registry.CreateRequest{
		ID:          body.ID,
		Name:        body.Name,
		Summary:     body.Summary,
		Description: body.Description,
		Extension:   body.Extension,
		ContentType: body.ContentType,
		Signature:   body.Signature,
		Params:      body.Params,
	}
	for _, f := range body.Files {
		req.Files = append(req.Files, assets.File{Name: f.Name, Content: f.Content})
	}
	id, aerr := s.svc.Registry.Create(r.Context(), p, req)
	if aerr != nil {
		return nil, httpx.FromAppError(aerr, registry.CreateCode(aerr))
	}
	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Location:   "/report_formats/" + id,
		Response:   resultRsp{ID: id, Code: registry.CodeOK},
	}, nil
}

func (s *ReportFormatServer) copyFormat(r *http.Request) (*httpx.Response, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	var body copyBody
	if err := decodeBody(r, copySchema, &body); err != nil {
		return nil, err
	}
	id, aerr := s.svc.Registry.Copy(r.Context(), p, body.Name, chi.URLParam(r, "id"))
	if aerr != nil {
		return nil, httpx.FromAppError(aerr, registry.CopyCode(aerr))
	}
	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Location:   "/report_formats/" + id,
		Response:   resultRsp{ID: id, Code: registry.CodeOK},
	}, nil
}

func (s *ReportFormatServer) modifyFormat(r *http.Request) (*httpx.Response, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	var body modifyBody
	if err := decodeBody(r, modifySchema, &body); err != nil {
		return nil, err
	}
	id := chi.URLParam(r, "id")
	aerr := s.svc.Registry.Modify(r.Context(), p, registry.ModifyRequest{
		ID:               id,
		Name:             body.Name,
		Summary:          body.Summary,
		Active:           body.Active,
		Predefined:       body.Predefined,
		ParamName:        body.ParamName,
		ParamValue:       body.ParamValue,
		ParamValueBase64: body.ParamValueBase64,
	})
	if aerr != nil {
		return nil, httpx.FromAppError(aerr, registry.ModifyCode(aerr))
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: resultRsp{ID: id, Code: registry.CodeOK}}, nil
}

func (s *ReportFormatServer) deleteFormat(r *http.Request) (*httpx.Response, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	ultimate, err := queryBool(r, "ultimate")
	if err != nil {
		return nil, err
	}
	id := chi.URLParam(r, "id")
	if aerr := s.svc.Registry.Delete(r.Context(), p, id, ultimate); aerr != nil {
		return nil, httpx.FromAppError(aerr, registry.DeleteCode(aerr))
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: resultRsp{ID: id, Code: registry.CodeOK}}, nil
}

func (s *ReportFormatServer) restoreFormat(r *http.Request) (*httpx.Response, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	id := chi.URLParam(r, "id")
	if aerr := s.svc.Registry.Restore(r.Context(), p, id); aerr != nil {
		return nil, httpx.FromAppError(aerr, registry.RestoreCode(aerr))
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: resultRsp{ID: id, Code: registry.CodeOK}}, nil
}

func (s *ReportFormatServer) verifyFormat(r *http.Request) (*httpx.Response, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	id := chi.URLParam(r, "id")
	state, aerr := s.svc.Trust.Verify(r.Context(), p, id)
	if aerr != nil {
		return nil, aerr
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: verifyRsp{ID: id, Trust: state.String()}}, nil
}

func (s *ReportFormatServer) emptyTrash(r *http.Request) (*httpx.Response, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	if aerr := s.svc.Registry.EmptyTrash(r.Context(), p); aerr != nil {
		return nil, aerr
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: resultRsp{Code: registry.CodeOK}}, nil
}

func (s *ReportFormatServer) listAlerts(r *http.Request) (*httpx.Response, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	uses, aerr := s.svc.Registry.AlertsUsing(r.Context(), p, chi.URLParam(r, "id"))
	if aerr != nil {
		return nil, aerr
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: uses}, nil
}

// removeUserFormats drops the formats of a user that is going away, or
// hands them to the user named by the inheritor query parameter.
func (s *ReportFormatServer) removeUserFormats(r *http.Request) (*httpx.Response, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	user := chi.URLParam(r, "user")
	if heir := r.URL.Query().Get("inheritor"); heir != "" {
		if aerr := s.svc.Registry.InheritFormats(r.Context(), p, user, heir); aerr != nil {
			return nil, aerr
		}
		return &httpx.Response{StatusCode: http.StatusOK, Response: resultRsp{Code: registry.CodeOK}}, nil
	}
	if aerr := s.svc.Registry.DeleteUserFormats(r.Context(), p, user); aerr != nil {
		return nil, aerr
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: resultRsp{Code: registry.CodeOK}}, nil
}

func (s *ReportFormatServer) syncFeed(r *http.Request) (*httpx.Response, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	if !s.svc.Authz.May(r.Context(), p, acl.OpModify, nil) {
		return nil, ErrPermissionDenied.Msg("feed sync needs an administrator")
	}
	report, aerr := s.svc.Feed.ReconcileAll(r.Context())
	if aerr != nil {
		return nil, aerr
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: report}, nil
}

// generateReport applies a format to the report start sent in the body and
// returns the generated file inline. All files live in a per-request
// directory that is removed afterwards.
func (s *ReportFormatServer) generateReport(r *http.Request) (*httpx.Response, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	var body generateBody
	if err := decodeBody(r, generateSchema, &body); err != nil {
		return nil, err
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	f, aerr := s.svc.Registry.Get(ctx, p, id)
	if aerr != nil {
		return nil, aerr
	}

	work, err := os.MkdirTemp("", "report-")
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to create report work dir")
		return nil, generator.ErrWorkspace.Err(err)
	}
	defer os.RemoveAll(work)
	start := filepath.Join(work, "start.xml")
	if err := os.WriteFile(start, []byte(body.Report), 0600); err != nil {
		return nil, generator.ErrWorkspace.Err(err)
	}

	out, aerr := s.svc.Pipeline.Apply(ctx, p, generator.ApplyRequest{
		FormatID: id,
		XMLStart: start,
		XMLFile:  filepath.Join(work, "report.xml"),
		XMLDir:   work,
	})
	if aerr != nil {
		return nil, aerr
	}
	content, err := os.ReadFile(out)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", id).Msg("failed to read generated report")
		return nil, generator.ErrWorkspace.Err(err)
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: generateRsp{
		ID:          id,
		FileName:    filepath.Base(out),
		ContentType: f.ContentType,
		Content:     content,
	}}, nil
}
