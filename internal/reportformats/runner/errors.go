package runner

import (
	"net/http"

	"github.com/tansive/reportformatsrv/internal/common/apperrors"
)

var (
	ErrRunner          apperrors.Error = apperrors.New("runner error").SetStatusCode(http.StatusInternalServerError)
	ErrSpawn           apperrors.Error = ErrRunner.New("failed to start command")
	ErrCancelled       apperrors.Error = ErrRunner.New("command cancelled")
	ErrUnknownAccount  apperrors.Error = ErrRunner.New("unknown account")
	ErrPrivilegeDrop   apperrors.Error = ErrRunner.New("unable to drop privileges")
	ErrUnsupportedDrop apperrors.Error = ErrPrivilegeDrop.New("dropping privileges is not supported on this platform")
)
