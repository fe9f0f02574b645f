package models

import (
	"github.com/tansive/reportformatsrv/pkg/types"
)

// FlagActive marks a report format as usable for report generation.
const FlagActive int64 = 1

// ReportFormat is a row of report_formats or report_formats_trash. RowID is
// the storage key; UUID is the format id seen by users. OriginalUUID and
// TrashKey are only set for trash rows.
type ReportFormat struct {
	RowID            string           `db:"id" json:"-"`
	UUID             string           `db:"uuid" json:"id"`
	Owner            string           `db:"owner" json:"owner,omitempty"`
	Name             string           `db:"name" json:"name"`
	Summary          string           `db:"summary" json:"summary"`
	Description      string           `db:"description" json:"description"`
	Extension        string           `db:"extension" json:"extension"`
	ContentType      string           `db:"content_type" json:"content_type"`
	Signature        string           `db:"signature" json:"-"`
	Trust            types.TrustState `db:"trust" json:"trust"`
	TrustTime        int64            `db:"trust_time" json:"trust_time"`
	Flags            int64            `db:"flags" json:"flags"`
	Predefined       bool             `db:"predefined" json:"predefined"`
	CreationTime     int64            `db:"creation_time" json:"creation_time"`
	ModificationTime int64            `db:"modification_time" json:"modification_time"`
	OriginalUUID     string           `db:"original_uuid" json:"original_id,omitempty"`
	TrashKey         string           `db:"trash_key" json:"-"`
}

func (f *ReportFormat) Active() bool {
	return f.Flags&FlagActive != 0
}

// Global reports whether the format has no owner.
func (f *ReportFormat) Global() bool {
	return f.Owner == ""
}

// Param is a declared parameter of a report format. Options are loaded
// separately and kept in declaration order.
type Param struct {
	RowID        string          `db:"id" json:"-"`
	ReportFormat string          `db:"report_format" json:"-"`
	Seq          int             `db:"seq" json:"-"`
	Name         string          `db:"name" json:"name"`
	Type         types.ParamType `db:"type" json:"type"`
	Value        string          `db:"value" json:"value"`
	Min          int64           `db:"type_min" json:"min"`
	Max          int64           `db:"type_max" json:"max"`
	Regex        string          `db:"type_regex" json:"regex,omitempty"`
	Fallback     string          `db:"fallback" json:"fallback"`
	Options      []string        `db:"-" json:"options,omitempty"`
}

// HasMin reports whether the lower bound was given explicitly.
func (p *Param) HasMin() bool {
	return p.Min != types.NoMin
}

func (p *Param) HasMax() bool {
	return p.Max != types.NoMax
}

// Alert is the part of an alert needed to check format references.
type Alert struct {
	RowID string `db:"id"`
	UUID  string `db:"uuid"`
	Owner string `db:"owner"`
	Name  string `db:"name"`
}

// IntegrityMigration records a startup migration that has been applied.
type IntegrityMigration struct {
	Version     int    `db:"version"`
	Name        string `db:"name"`
	AppliedTime int64  `db:"applied_time"`
}
