package feed

import (
	"net/http"

	"github.com/tansive/reportformatsrv/internal/common/apperrors"
)

var (
	ErrFeed               apperrors.Error = apperrors.New("feed sync failed").SetStatusCode(http.StatusInternalServerError)
	ErrFeedUnavailable    apperrors.Error = ErrFeed.New("feed directory is not available").SetStatusCode(http.StatusServiceUnavailable)
	ErrManifestUnreadable apperrors.Error = ErrFeed.New("report format manifest is unreadable")
	ErrManifestInvalid    apperrors.Error = ErrFeed.New("report format manifest is invalid").SetStatusCode(http.StatusUnprocessableEntity)
)
