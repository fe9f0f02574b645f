package registry

import (
	"errors"
	"net/http"

	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dberror"
)

var (
	ErrRegistry            apperrors.Error = apperrors.New("report format registry error").SetStatusCode(http.StatusInternalServerError)
	ErrFormatExists        apperrors.Error = ErrRegistry.New("report format exists already").SetStatusCode(http.StatusConflict)
	ErrEmptyFilename       apperrors.Error = ErrRegistry.New("bundle file name is empty").SetStatusCode(http.StatusBadRequest)
	ErrInvalidFilename     apperrors.Error = ErrRegistry.New("bundle file name must not contain a path").SetStatusCode(http.StatusBadRequest)
	ErrParamValueInvalid   apperrors.Error = ErrRegistry.New("parameter value is invalid").SetStatusCode(http.StatusBadRequest)
	ErrParamDefaultInvalid apperrors.Error = ErrRegistry.New("parameter default is invalid").SetStatusCode(http.StatusBadRequest)
	ErrParamDefaultMissing apperrors.Error = ErrRegistry.New("parameter default is missing").SetStatusCode(http.StatusBadRequest)
	ErrBoundsInvalid       apperrors.Error = ErrRegistry.New("parameter bound is invalid").SetStatusCode(http.StatusBadRequest)
	ErrParamTypeMissing    apperrors.Error = ErrRegistry.New("parameter type is missing").SetStatusCode(http.StatusBadRequest)
	ErrDuplicateParamName  apperrors.Error = ErrRegistry.New("duplicate parameter name").SetStatusCode(http.StatusBadRequest)
	ErrUnknownParamType    apperrors.Error = ErrRegistry.New("unknown parameter type").SetStatusCode(http.StatusBadRequest)
	ErrPermissionDenied    apperrors.Error = ErrRegistry.New("permission denied").SetStatusCode(http.StatusForbidden)
	ErrFormatUntrusted     apperrors.Error = ErrRegistry.New("report format signature does not verify").SetStatusCode(http.StatusBadRequest)
	ErrOwnerRequired       apperrors.Error = ErrRegistry.New("an owner is required").SetStatusCode(http.StatusBadRequest)
	ErrFormatNotFound      apperrors.Error = ErrRegistry.New("report format not found").SetStatusCode(http.StatusNotFound)
	ErrSourceNotFound      apperrors.Error = ErrRegistry.New("source report format not found").SetStatusCode(http.StatusNotFound)
	ErrIDRequired          apperrors.Error = ErrRegistry.New("report format id is required").SetStatusCode(http.StatusBadRequest)
	ErrParamNotFound       apperrors.Error = ErrRegistry.New("parameter not found").SetStatusCode(http.StatusNotFound)
	ErrBadPredefinedFlag   apperrors.Error = ErrRegistry.New("predefined flag must be 0 or 1").SetStatusCode(http.StatusBadRequest)
	ErrFormatInUse         apperrors.Error = ErrRegistry.New("report format is in use by an alert").SetStatusCode(http.StatusConflict)
	ErrFormatPredefined    apperrors.Error = ErrRegistry.New("predefined report formats cannot be deleted").SetStatusCode(http.StatusConflict)
	ErrNameCollision       apperrors.Error = ErrRegistry.New("a report format with this name exists").SetStatusCode(http.StatusConflict)
	ErrUUIDCollision       apperrors.Error = ErrRegistry.New("a report format with this id exists").SetStatusCode(http.StatusConflict)
	ErrAssets              apperrors.Error = ErrRegistry.New("report format files could not be updated")
)

// Result codes returned to callers that expect the numeric protocol.
const (
	CodeOK     = 0
	CodeError  = -1
	CodeDenied = 99
)

type codeMap []struct {
	err  error
	code int
}

func (m codeMap) code(err error) int {
	if err == nil {
		return CodeOK
	}
	for _, c := range m {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeError
}

var createCodes = codeMap{
	{ErrFormatExists, 1},
	{dberror.ErrAlreadyExists, 1},
	{ErrEmptyFilename, 2},
	{ErrInvalidFilename, 2},
	{ErrParamValueInvalid, 3},
	{ErrParamDefaultInvalid, 4},
	{ErrParamDefaultMissing, 5},
	{ErrBoundsInvalid, 6},
	{ErrParamTypeMissing, 7},
	{ErrDuplicateParamName, 8},
	{ErrUnknownParamType, 9},
	{ErrPermissionDenied, CodeDenied},
}

var copyCodes = codeMap{
	{ErrFormatExists, 1},
	{dberror.ErrAlreadyExists, 1},
	{ErrSourceNotFound, 2},
	{ErrPermissionDenied, CodeDenied},
}

var modifyCodes = codeMap{
	{ErrFormatNotFound, 1},
	{ErrIDRequired, 2},
	{ErrParamNotFound, 3},
	{ErrParamValueInvalid, 4},
	{ErrBadPredefinedFlag, 5},
	{ErrPermissionDenied, CodeDenied},
}

var deleteCodes = codeMap{
	{ErrFormatInUse, 1},
	{ErrFormatNotFound, 2},
	{ErrFormatPredefined, 3},
	{ErrPermissionDenied, CodeDenied},
}

var restoreCodes = codeMap{
	{ErrFormatNotFound, 2},
	{ErrNameCollision, 3},
	{ErrUUIDCollision, 4},
	{ErrPermissionDenied, CodeDenied},
}

func CreateCode(err error) int { return createCodes.code(err) }
func CopyCode(err error) int { return copyCodes.code(err) }
func ModifyCode(err error) int { return modifyCodes.code(err) }
func DeleteCode(err error) int { return deleteCodes.code(err) }
func RestoreCode(err error) int { return restoreCodes.code(err) }
