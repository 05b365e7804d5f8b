package models

import "time"

// Audit actions recorded after state changes.
const (
	AuditActionLedgerAppend     = "LEDGER_APPEND"
	AuditActionLedgerBulkAppend = "LEDGER_BULK_APPEND"
	AuditActionLedgerHardDelete = "LEDGER_HARD_DELETE"
	AuditActionQuestCreate      = "QUEST_CREATE"
	AuditActionQuestUpdate      = "QUEST_UPDATE"
	AuditActionQuestDelete      = "QUEST_DELETE"
	AuditActionQuestJoin        = "QUEST_JOIN"
	AuditActionQuestSubmit      = "QUEST_SUBMIT"
	AuditActionQuestApprove     = "QUEST_APPROVE"
	AuditActionQuestReject      = "QUEST_REJECT"
	AuditActionAppealCreate     = "APPEAL_CREATE"
	AuditActionAppealDecide     = "APPEAL_DECIDE"
	AuditActionAppealNotes      = "APPEAL_NOTES"
	AuditActionReportCreate     = "TEACHER_REPORT_CREATE"
	AuditActionReportUpdate     = "TEACHER_REPORT_UPDATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
