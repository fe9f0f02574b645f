package paramtypes

import (
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// String and text bounds apply to the length in bytes.
func validateLength(p *models.Param, value string) apperrors.Error {
	return checkRange(p, int64(len(value)))
}

func validateBoolean(*models.Param, string) apperrors.Error {
	return nil
}

func init() {
	Register(types.ParamTypeString, validateLength)
	Register(types.ParamTypeText, validateLength)
	Register(types.ParamTypeBoolean, validateBoolean)
}
