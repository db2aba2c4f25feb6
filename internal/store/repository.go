/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access the treasury-service needs. The interface decouples the
 * workflow logic from PostgreSQL so that the approval engine and the batch
 * processor can be exercised against in-memory stubs in tests.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/treasury-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
//
// Every status transition is a guarded update: the write predicate includes
// the expected prior state, and the method reports whether any row was
// affected. A `false` result means another actor already decided; callers
// treat it as a benign no-op, not an error.
type Repository interface {
	// Draw request methods
	CreateDrawRequestWithItems(ctx context.Context, payload domain.CreateDrawRequestPayload, currency string) (*domain.DrawRequest, []domain.DrawRequestItem, error)
	GetDrawRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.DrawRequest, error)
	GetDrawRequestByNumber(ctx context.Context, requestNumber string) (*domain.DrawRequest, error)
	ListDrawRequests(ctx context.Context, opts domain.DrawRequestListOptions) ([]domain.DrawRequest, error)
	GetDrawRequestItems(ctx context.Context, requestID uuid.UUID) ([]domain.DrawRequestItem, error)
	AttachDrawRequestPDF(ctx context.Context, requestID uuid.UUID, pdfURL string) (bool, error)

	// Guarded lifecycle transitions (pending -> terminal)
	ApproveDrawRequest(ctx context.Context, requestID uuid.UUID, approvedBy string, message *string) (bool, error)
	RejectDrawRequest(ctx context.Context, requestID uuid.UUID, rejectedBy string, reason string) (bool, error)
	CancelDrawRequest(ctx context.Context, requestID uuid.UUID, cancelledBy string) (bool, error)

	// Auto-send and batch methods
	GetRequestsReadyForAutoSend(ctx context.Context, cfg domain.TreasurySettings, now time.Time, limit int) ([]domain.DrawRequest, error)
	GetWithdrawalIDsForRequest(ctx context.Context, requestID uuid.UUID) ([]uuid.UUID, error)
	MarkWithdrawalsProcessing(ctx context.Context, withdrawalIDs []uuid.UUID) (int64, error)

	// Communication log methods (append-only)
	CreateCommunication(ctx context.Context, comm *domain.Communication) error
	ListCommunications(ctx context.Context, requestID uuid.UUID) ([]domain.Communication, error)

	// Settings methods
	GetTreasurySettings(ctx context.Context) (*domain.TreasurySettings, error)
	UpdateTreasurySettings(ctx context.Context, payload domain.UpdateTreasurySettingsPayload) (*domain.TreasurySettings, error)
}
