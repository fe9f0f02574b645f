// Package acl decides whether a principal may act on a report format.
package acl

import (
	"context"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/pkg/types"
)

type Operation string

const (
	OpCreate  Operation = "create_report_format"
	OpGet     Operation = "get_report_formats"
	OpModify  Operation = "modify_report_format"
	OpDelete  Operation = "delete_report_format"
	OpRestore Operation = "restore"
	OpVerify  Operation = "verify_report_format"
	OpEmpty   Operation = "empty_trashcan"

	// Operations on users and alerts. Only admins pass these.
	OpDeleteUser Operation = "delete_user"
	OpGetAlerts  Operation = "get_alerts"
)

// Authorizer is the yes/no oracle consulted before every registry and
// pipeline operation. f is nil for operations that do not target a format.
type Authorizer interface {
	May(ctx context.Context, p types.Principal, op Operation, f *models.ReportFormat) bool
}

// RolePolicy lets the system principal and admin users do everything,
// everyone read global formats, and owners act on their own formats.
type RolePolicy struct {
	AdminUsers []string
}

func NewRolePolicy(adminUsers []string) *RolePolicy {
	return &RolePolicy{AdminUsers: adminUsers}
}

func (r *RolePolicy) May(ctx context.Context, p types.Principal, op Operation, f *models.ReportFormat) bool {
	if p.IsSystem() || slices.Contains(r.AdminUsers, p.UserID) || p.HasRole(types.RoleAdmin) {
		return true
	}
	allowed := false
	switch {
	case f == nil:
		allowed = op == OpCreate || op == OpEmpty || op == OpGet
	case f.Owner == p.UserID:
		allowed = true
	case f.Global():
		allowed = op == OpGet || op == OpVerify
	}
	if !allowed {
		log.Ctx(ctx).Debug().Str("user", p.UserID).Str("op", string(op)).Msg("permission denied")
	}
	return allowed
}

// AllowAll grants every request. It is meant for single user installs and
// tests.
type AllowAll struct{}

func (AllowAll) May(context.Context, types.Principal, Operation, *models.ReportFormat) bool {
	return true
}
