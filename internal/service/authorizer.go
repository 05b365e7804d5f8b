package service

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

// Capability names a privileged operation.
type Capability string

const (
	CapLedgerAppend     Capability = "ledger.append"
	CapLedgerBulkApply  Capability = "ledger.bulk_apply"
	CapLedgerHardDelete Capability = "ledger.hard_delete"
	CapLedgerViewAny    Capability = "ledger.view.any"
	CapQuestManage      Capability = "quest.manage"
	CapQuestReviewAny   Capability = "quest.review.any"
	CapAppealReview     Capability = "appeal.review"
	CapReportCreate     Capability = "report.create"
	CapReportViewAny    Capability = "report.view.any"
	CapMetricsView      Capability = "metrics.view"
	// CapActAsSelf lets the holder join, submit, appeal and read for its own student id only.
	CapActAsSelf Capability = "student.self"
)

var defaultGrants = map[models.UserRole][]Capability{
	models.RoleSuperAdmin: {
		CapLedgerAppend, CapLedgerBulkApply, CapLedgerHardDelete, CapLedgerViewAny,
		CapQuestManage, CapQuestReviewAny, CapAppealReview, CapReportCreate, CapReportViewAny, CapMetricsView,
	},
	models.RoleAdmin: {
		CapLedgerAppend, CapLedgerBulkApply, CapLedgerViewAny,
		CapQuestManage, CapQuestReviewAny, CapAppealReview, CapReportViewAny, CapMetricsView,
	},
	models.RoleTeacher: {
		CapLedgerAppend, CapLedgerBulkApply, CapLedgerViewAny, CapQuestManage, CapReportCreate,
	},
	models.RoleStudent: {CapActAsSelf},
}

// Authorizer is the single decision point mapping roles to capabilities.
type Authorizer struct {
	grants map[models.UserRole]map[Capability]struct{}
}

// NewAuthorizer builds the grant table from the defaults plus extra "ROLE:capability" grants.
func NewAuthorizer(extra []string, logger *zap.Logger) (*Authorizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Authorizer{grants: map[models.UserRole]map[Capability]struct{}{}}
	for role, caps := range defaultGrants {
		for _, c := range caps {
			a.grant(role, c)
		}
	}
	for _, raw := range extra {
		parts := strings.SplitN(raw, ":", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("invalid capability grant %q, want ROLE:capability", raw)
		}
		role := models.UserRole(strings.ToUpper(strings.TrimSpace(parts[0])))
		capability := Capability(strings.TrimSpace(parts[1]))
		a.grant(role, capability)
		logger.Info("capability granted from config", zap.String("role", string(role)), zap.String("capability", string(capability)))
	}
	return a, nil
}

func (a *Authorizer) grant(role models.UserRole, c Capability) {
	if a.grants[role] == nil {
		a.grants[role] = map[Capability]struct{}{}
	}
	a.grants[role][c] = struct{}{}
}

// Can reports whether role holds capability.
func (a *Authorizer) Can(role models.UserRole, c Capability) bool {
	if a == nil {
		return false
	}
	_, ok := a.grants[role][c]
	return ok
}

// Authorize returns a Forbidden error unless role holds capability.
func (a *Authorizer) Authorize(role models.UserRole, c Capability) error {
	if a.Can(role, c) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("missing capability %s", c))
}

// Capabilities lists the capabilities of role, sorted.
func (a *Authorizer) Capabilities(role models.UserRole) []string {
	caps := make([]string, 0, len(a.grants[role]))
	for c := range a.grants[role] {
		caps = append(caps, string(c))
	}
	sort.Strings(caps)
	return caps
}

// actsAsSelf reports whether actor is scoped to its own student record.
func (a *Authorizer) actsAsSelf(actor models.Actor) bool {
	return a.Can(actor.Role, CapActAsSelf)
}

// ensureStudentAccess lets self-scoped actors read only their own records unless they hold capability.
func (a *Authorizer) ensureStudentAccess(actor models.Actor, studentID string, c Capability) error {
	if a.actsAsSelf(actor) && actor.StudentID != "" && actor.StudentID == studentID {
		return nil
	}
	if a.Can(actor.Role, c) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this student")
}
