package generator

import (
	"net/http"

	"github.com/tansive/reportformatsrv/internal/common/apperrors"
)

var (
	ErrGenerate         apperrors.Error = apperrors.New("report generation failed").SetStatusCode(http.StatusInternalServerError)
	ErrDependencyCycle  apperrors.Error = ErrGenerate.New("report format depends on itself").SetStatusCode(http.StatusConflict)
	ErrFormatNotFound   apperrors.Error = ErrGenerate.New("report format not found").SetStatusCode(http.StatusNotFound)
	ErrPermissionDenied apperrors.Error = ErrGenerate.New("permission denied").SetStatusCode(http.StatusForbidden)
	ErrFormatInactive   apperrors.Error = ErrGenerate.New("report format is not active").SetStatusCode(http.StatusConflict)
	ErrScriptMissing    apperrors.Error = ErrGenerate.New("generate script not found")
	ErrScriptNotExec    apperrors.Error = ErrGenerate.New("generate script is not executable")
	ErrWorkspace        apperrors.Error = ErrGenerate.New("unable to prepare report files")
	ErrScriptFailed     apperrors.Error = ErrGenerate.New("generate script could not be run")
)
