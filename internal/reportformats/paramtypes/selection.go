package paramtypes

import (
	"slices"
	"strconv"

	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/pkg/types"
)

func validateSelection(p *models.Param, value string) apperrors.Error {
	if slices.Contains(p.Options, value) {
		return nil
	}
	return ErrNotAnOption.Msg("value " + strconv.Quote(value) + " is not an option of " + p.Name)
}

func init() {
	Register(types.ParamTypeSelection, validateSelection)
}
