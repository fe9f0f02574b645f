package paramtypes

import (
	"strconv"
	"strings"

	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// Out of range values are rejected, not clamped.
func validateInteger(p *models.Param, value string) apperrors.Error {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 0, 64)
	if err != nil {
		return ErrNotAnInteger.Msg("value " + strconv.Quote(value) + " is not an integer")
	}
	return checkRange(p, n)
}

func init() {
	Register(types.ParamTypeInteger, validateInteger)
}
