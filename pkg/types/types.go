package types

import (
	"math"
	"slices"
)

// TrustState is the signature verification classification of a report
// format bundle. The numeric values are persisted.
type TrustState int

const (
	TrustUnset   TrustState = 0
	TrustYes     TrustState = 1
	TrustNo      TrustState = 2
	TrustUnknown TrustState = 3
)

func (t TrustState) String() string {
	switch t {
	case TrustYes:
		return "yes"
	case TrustNo:
		return "no"
	case TrustUnknown:
		return "unknown"
	}
	return ""
}

// ParamType identifies the declared type of a report format parameter. The
// numeric values are persisted.
type ParamType int

const (
	ParamTypeBoolean          ParamType = 0
	ParamTypeInteger          ParamType = 1
	ParamTypeSelection        ParamType = 2
	ParamTypeString           ParamType = 3
	ParamTypeText             ParamType = 4
	ParamTypeReportFormatList ParamType = 5
	ParamTypeError            ParamType = 100
)

var paramTypeNames = map[ParamType]string{
	ParamTypeBoolean:          "boolean",
	ParamTypeInteger:          "integer",
	ParamTypeSelection:        "selection",
	ParamTypeString:           "string",
	ParamTypeText:             "text",
	ParamTypeReportFormatList: "report_format_list",
}

func (t ParamType) String() string {
	return paramTypeNames[t]
}

// ParamTypeFromName returns ParamTypeError for names that are not known.
func ParamTypeFromName(name string) ParamType {
	for t, n := range paramTypeNames {
		if n == name {
			return t
		}
	}
	return ParamTypeError
}

// Absent parameter bounds are stored as the extremes of int64. An explicit
// bound equal to one of these is rejected.
const (
	NoMin int64 = math.MinInt64
	NoMax int64 = math.MaxInt64
)

// Resource location of permission and tag references.
const (
	LocationTable = 0
	LocationTrash = 1
)

const ResourceTypeReportFormat = "report_format"

// Role ids that receive read access to predefined report formats.
const (
	RoleAdmin    = "7a8cb5b4-b74d-11e2-8187-406186ea4fc5"
	RoleGuest    = "cc9cac5e-39a3-11e4-abae-406186ea4fc5"
	RoleObserver = "87a7ebce-b74d-11e2-a81f-406186ea4fc5"
	RoleUser     = "8d453140-b74d-11e2-b0be-406186ea4fc5"
)

// PredefinedReadRoles lists the roles granted read on every predefined format.
var PredefinedReadRoles = []string{RoleAdmin, RoleGuest, RoleObserver, RoleUser}

// Principal identifies the caller of a registry or pipeline operation. A
// principal without a user id acts as the system, for example during startup
// or feed synchronisation.
type Principal struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
}

// SystemPrincipal is used by startup integrity checks and feed sync.
var SystemPrincipal = Principal{}

// IsSystem reports whether the principal acts outside an end-user session.
func (p Principal) IsSystem() bool {
	return p.UserID == ""
}

func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}
