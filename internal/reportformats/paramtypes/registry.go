// Package paramtypes validates report format parameter values. Each declared
// parameter type registers its validator from an init function.
package paramtypes

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/pkg/types"
)

var (
	ErrInvalidValue    apperrors.Error = apperrors.New("invalid parameter value").SetStatusCode(http.StatusBadRequest)
	ErrValueBelowMin   apperrors.Error = ErrInvalidValue.New("value is below the minimum")
	ErrValueAboveMax   apperrors.Error = ErrInvalidValue.New("value is above the maximum")
	ErrNotAnInteger    apperrors.Error = ErrInvalidValue.New("value is not an integer")
	ErrNotAnOption     apperrors.Error = ErrInvalidValue.New("value is not one of the options")
	ErrInvalidList     apperrors.Error = ErrInvalidValue.New("value is not a report format list")
	ErrUnknownType     apperrors.Error = apperrors.New("unknown parameter type").SetStatusCode(http.StatusBadRequest)
	ErrInvalidBound    apperrors.Error = apperrors.New("invalid parameter bound").SetStatusCode(http.StatusBadRequest)
	ErrBoundIsExtreme  apperrors.Error = ErrInvalidBound.New("bound may not be the extreme value")
	ErrBoundNotInteger apperrors.Error = ErrInvalidBound.New("bound is not an integer")
)

// Validator checks value against the declaration of p.
type Validator func(p *models.Param, value string) apperrors.Error

var registry = make(map[types.ParamType]Validator)

func Register(t types.ParamType, v Validator) {
	registry[t] = v
}

func Known(t types.ParamType) bool {
	_, ok := registry[t]
	return ok
}

// Validate checks value against the declared type, bounds and options of p.
func Validate(p *models.Param, value string) apperrors.Error {
	v, ok := registry[p.Type]
	if !ok {
		return ErrUnknownType.Msg("unknown parameter type " + strconv.Itoa(int(p.Type)))
	}
	return v(p, value)
}

// ParseMin parses an optional lower bound. An empty string means unbounded.
func ParseMin(s string) (int64, apperrors.Error) {
	return parseBound(s, types.NoMin)
}

// ParseMax parses an optional upper bound. An empty string means unbounded.
func ParseMax(s string) (int64, apperrors.Error) {
	return parseBound(s, types.NoMax)
}

func parseBound(s string, absent int64) (int64, apperrors.Error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return absent, nil
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		// ParseInt saturates out of range input, which is as extreme as
		// the sentinel itself.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return 0, ErrBoundIsExtreme.Msg("bound " + s + " is out of range")
		}
		return 0, ErrBoundNotInteger.Msg("bound " + s + " is not an integer")
	}
	if n == absent {
		return 0, ErrBoundIsExtreme.Msg("bound " + s + " is reserved for an absent bound")
	}
	return n, nil
}

func checkRange(p *models.Param, n int64) apperrors.Error {
	if n < p.Min {
		return ErrValueBelowMin.Msg("value " + strconv.FormatInt(n, 10) + " is below " + strconv.FormatInt(p.Min, 10))
	}
	if n > p.Max {
		return ErrValueAboveMax.Msg("value " + strconv.FormatInt(n, 10) + " is above " + strconv.FormatInt(p.Max, 10))
	}
	return nil
}
