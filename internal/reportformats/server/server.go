// Package server exposes the report format registry, trust checks, feed
// sync and report generation over HTTP.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/httpx"
	"github.com/tansive/reportformatsrv/internal/common/logtrace"
	"github.com/tansive/reportformatsrv/internal/common/middleware"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/config"
	"github.com/tansive/reportformatsrv/internal/reportformats/feed"
	"github.com/tansive/reportformatsrv/internal/reportformats/generator"
	"github.com/tansive/reportformatsrv/internal/reportformats/registry"
	"github.com/tansive/reportformatsrv/internal/reportformats/trust"
)

const (
	ServerVersion = "Report Format Server: 1.0.0"
	ApiVersion    = "v1"
)

// Services are the components the handlers call into.
type Services struct {
	Registry *registry.Registry
	Trust    *trust.Engine
	Feed     *feed.Syncer
	Pipeline *generator.Pipeline
	Authz    acl.Authorizer
}

type ReportFormatServer struct {
	Router *chi.Mux
	cfg    *config.ConfigParam
	svc    Services
}

func CreateNewServer(cfg *config.ConfigParam, svc Services) (*ReportFormatServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server needs a configuration")
	}
	if svc.Registry == nil || svc.Trust == nil || svc.Feed == nil || svc.Pipeline == nil || svc.Authz == nil {
		return nil, fmt.Errorf("server needs every service")
	}
	s := &ReportFormatServer{cfg: cfg, svc: svc}
	s.Router = chi.NewRouter()
	return s, nil
}

func (s *ReportFormatServer) MountHandlers() {
	s.Router.Use(middleware.RequestLogger)
	s.Router.Use(middleware.PanicHandler)
	s.Router.Use(MetricsMiddleware)
	if s.cfg.RequestTimeout > 0 {
		s.Router.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))
	}
	if s.cfg.HandleCORS {
		s.Router.Use(s.HandleCORS)
	}
	s.mountResourceHandlers(s.Router)
	if logtrace.IsTraceEnabled() {
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			log.Trace().Str("method", method).Str("route", route).Msg("route")
			return nil
		}
		if err := chi.Walk(s.Router, walkFunc); err != nil {
			log.Error().Err(err).Msg("Error walking router")
		}
	}
}

func (s *ReportFormatServer) mountResourceHandlers(r chi.Router) {
	r.Get("/version", s.getVersion)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(PrincipalMiddleware(s.cfg.TokenSecret))
		for _, h := range s.resourceHandlers() {
			r.Method(h.Method, h.Path, httpx.WrapHttpRsp(h.Handler))
		}
	})
}

func (s *ReportFormatServer) resourceHandlers() []httpx.ResponseHandlerParam {
	return []httpx.ResponseHandlerParam{
		{Method: http.MethodGet, Path: "/report_formats", Handler: s.listFormats},
		{Method: http.MethodPost, Path: "/report_formats", Handler: s.createFormat},
		{Method: http.MethodGet, Path: "/report_formats/{id}", Handler: s.getFormat},
		{Method: http.MethodPut, Path: "/report_formats/{id}", Handler: s.modifyFormat},
		{Method: http.MethodDelete, Path: "/report_formats/{id}", Handler: s.deleteFormat},
		{Method: http.MethodPost, Path: "/report_formats/{id}/copy", Handler: s.copyFormat},
		{Method: http.MethodPost, Path: "/report_formats/{id}/restore", Handler: s.restoreFormat},
		{Method: http.MethodPost, Path: "/report_formats/{id}/verify", Handler: s.verifyFormat},
		{Method: http.MethodPost, Path: "/report_formats/{id}/generate", Handler: s.generateReport},
		{Method: http.MethodGet, Path: "/report_formats/{id}/alerts", Handler: s.listAlerts},
		{Method: http.MethodDelete, Path: "/users/{user}/report_formats", Handler: s.removeUserFormats},
		{Method: http.MethodDelete, Path: "/trash/report_formats", Handler: s.emptyTrash},
		{Method: http.MethodPost, Path: "/feed/sync", Handler: s.syncFeed},
	}
}

type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
}

func (s *ReportFormatServer) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	rsp := &GetVersionRsp{
		ServerVersion: ServerVersion,
		ApiVersion:    ApiVersion,
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}

func (s *ReportFormatServer) HandleCORS(next http.Handler) http.Handler {
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Accept-Encoding", middleware.RequestIDHeader},
		ExposedHeaders:   []string{"Location", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           int((5 * time.Minute).Seconds()),
	})(next)
}
