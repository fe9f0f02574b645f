package paramtypes

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// formatListPattern accepts a comma separated list of format ids. The
// pattern is kept as deployed installations use it, so a leading empty
// entry (",a") is accepted while ",," is not.
var formatListPattern = regexp.MustCompile(`^(?:[[:alnum:]-_]+)?(?:,(?:[[:alnum:]-_])+)*$`)

func validateFormatList(_ *models.Param, value string) apperrors.Error {
	if !formatListPattern.MatchString(value) {
		return ErrInvalidList.Msg("value " + strconv.Quote(value) + " is not a report format list")
	}
	return nil
}

// SplitFormatList returns the distinct non-empty ids of a report format list
// in order of first appearance.
func SplitFormatList(value string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, id := range strings.Split(value, ",") {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func init() {
	Register(types.ParamTypeReportFormatList, validateFormatList)
}
