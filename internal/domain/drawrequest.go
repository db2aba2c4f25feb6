/**
 * @description
 * This file defines the core domain models for the treasury-service. These
 * structs represent draw requests, their line items, and the withdrawal
 * records the workflow advances.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents),
 *   which avoids floating-point inaccuracies with financial data.
 * - Item amounts are snapshots taken at request creation time so historical
 *   requests stay stable even if the underlying withdrawal later changes.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Draw request lifecycle statuses. A request starts pending and ends in
// exactly one of the three terminal states.
const (
	RequestStatusPending   = "pending"
	RequestStatusApproved  = "approved"
	RequestStatusRejected  = "rejected"
	RequestStatusCancelled = "cancelled"
)

// Withdrawal statuses the workflow engine interacts with. The engine only
// ever moves a withdrawal approved -> processing, never backward.
const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusApproved   = "approved"
	WithdrawalStatusProcessing = "processing"
)

// DrawRequest represents a bundled disbursement request covering one or more
// withdrawals, requiring treasurer sign-off. This struct maps directly to the
// `draw_requests` table.
type DrawRequest struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	RequestNumber    string     `json:"request_number" db:"request_number"`
	Description      string     `json:"description" db:"description"`
	TotalAmountCents int64      `json:"total_amount_cents" db:"total_amount_cents"`
	Currency         string     `json:"currency" db:"currency"`
	TreasurerName    string     `json:"treasurer_name" db:"treasurer_name"`
	TreasurerEmail   string     `json:"treasurer_email" db:"treasurer_email"`
	Signers          []string   `json:"signers" db:"signers"`
	DueDate          *time.Time `json:"due_date,omitempty" db:"due_date"`
	IsDraft          bool       `json:"is_draft" db:"is_draft"`
	PDFURL           *string    `json:"pdf_url,omitempty" db:"pdf_url"`
	Status           string     `json:"status" db:"status"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy       *string    `json:"approved_by,omitempty" db:"approved_by"`
	ApprovalMessage  *string    `json:"approval_message,omitempty" db:"approval_message"`
	RejectedAt       *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`
	RejectedBy       *string    `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectionReason  *string    `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelledBy      *string    `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CreatedBy        string     `json:"created_by" db:"created_by"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the request has left the pending state.
func (r *DrawRequest) IsTerminal() bool {
	return r.Status != RequestStatusPending
}

// DrawRequestItem links one withdrawal into a draw request. Amount and payee
// fields are copied from the withdrawal at creation time, not re-derived.
type DrawRequestItem struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	RequestID          uuid.UUID `json:"request_id" db:"request_id"`
	WithdrawalID       uuid.UUID `json:"withdrawal_id" db:"withdrawal_id"`
	CreatorName        string    `json:"creator_name" db:"creator_name"`
	ProjectDescription string    `json:"project_description" db:"project_description"`
	NetAmountCents     int64     `json:"net_amount_cents" db:"net_amount_cents"`
	Currency           string    `json:"currency" db:"currency"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// Withdrawal is a read-only view of a creator withdrawal record, owned by the
// payouts system. The treasury workflow only reads it at request creation and
// flips approved rows to processing during a batch run.
type Withdrawal struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	CreatorName        string    `json:"creator_name" db:"creator_name"`
	ProjectDescription string    `json:"project_description" db:"project_description"`
	NetAmountCents     int64     `json:"net_amount_cents" db:"net_amount_cents"`
	Currency           string    `json:"currency" db:"currency"`
	Status             string    `json:"status" db:"status"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// CreateDrawRequestPayload is the DTO for creating a new draw request from a
// set of unclaimed withdrawals.
type CreateDrawRequestPayload struct {
	Description    string     `json:"description"`
	TreasurerName  string     `json:"treasurer_name"`
	TreasurerEmail string     `json:"treasurer_email"`
	Signers        []string   `json:"signers"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	WithdrawalIDs  []uuid.UUID `json:"withdrawal_ids"`
	CreatedBy      string     `json:"created_by"`
}

// DrawRequestListOptions is the typed filter for listing draw requests.
// Filters are combined with AND; zero values mean "no constraint".
type DrawRequestListOptions struct {
	Status        string
	PayeeContains string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// BatchReport summarizes one auto-send batch run. Errors are keyed by the
// failed request's human-readable number and never abort the rest of the run.
type BatchReport struct {
	Success   bool     `json:"success"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}
