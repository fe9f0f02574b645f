package server

import (
	"net/http"

	"github.com/tansive/reportformatsrv/internal/common/apperrors"
)

var (
	ErrServer             apperrors.Error = apperrors.New("report format server error").SetStatusCode(http.StatusInternalServerError)
	ErrInvalidToken       apperrors.Error = ErrServer.New("invalid token").SetStatusCode(http.StatusUnauthorized)
	ErrTokenSecretMissing apperrors.Error = ErrServer.New("token secret is not configured")
	ErrInvalidBody        apperrors.Error = ErrServer.New("invalid request body").SetStatusCode(http.StatusBadRequest)
	ErrPermissionDenied   apperrors.Error = ErrServer.New("permission denied").SetStatusCode(http.StatusForbidden)
	ErrNoPrincipal        apperrors.Error = ErrServer.New("request is not authenticated").SetStatusCode(http.StatusUnauthorized)
)
