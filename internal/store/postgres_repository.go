/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed for draw requests, their line
 * items, the communication log, the withdrawal status advancement, and the
 * treasury settings singleton.
 *
 * Concurrency safety comes from guarded (conditional) writes rather than
 * in-process locks: every lifecycle transition and the withdrawal bulk update
 * include the expected prior status in their WHERE clause, so a concurrent
 * writer observing stale state affects zero rows instead of corrupting state.
 *
 * @dependencies
 * - context, errors, fmt, strings, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/treasury-service/internal/domain"
)

var (
	ErrRequestNotFound       = errors.New("draw request not found")
	ErrWithdrawalUnavailable = errors.New("one or more withdrawals are unavailable for a new draw request")
	ErrItemTotalMismatch     = errors.New("draw request item amounts do not sum to the request total")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const drawRequestColumns = `
	id, request_number, COALESCE(description, '') AS description, total_amount_cents, currency,
	treasurer_name, treasurer_email, signers, due_date, is_draft, pdf_url, status,
	approved_at, approved_by, approval_message, rejected_at, rejected_by, rejection_reason,
	cancelled_at, cancelled_by, created_by, created_at, updated_at`

func scanDrawRequest(row pgx.Row) (*domain.DrawRequest, error) {
	var req domain.DrawRequest
	err := row.Scan(
		&req.ID, &req.RequestNumber, &req.Description, &req.TotalAmountCents, &req.Currency,
		&req.TreasurerName, &req.TreasurerEmail, &req.Signers, &req.DueDate, &req.IsDraft,
		&req.PDFURL, &req.Status,
		&req.ApprovedAt, &req.ApprovedBy, &req.ApprovalMessage,
		&req.RejectedAt, &req.RejectedBy, &req.RejectionReason,
		&req.CancelledAt, &req.CancelledBy,
		&req.CreatedBy, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// CreateDrawRequestWithItems creates a draw request from a set of withdrawals
// inside one transaction. Each withdrawal must be pending or approved and not
// already claimed by another active request; amounts and payee details are
// snapshotted into the items at this point. The request total is the sum of
// the item amounts by construction.
func (r *PostgresRepository) CreateDrawRequestWithItems(ctx context.Context, payload domain.CreateDrawRequestPayload, currency string) (*domain.DrawRequest, []domain.DrawRequestItem, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	// Lock the candidate withdrawals and confirm none is claimed by another
	// active (pending/approved) request.
	rows, err := tx.Query(ctx, `
		SELECT w.id, w.creator_name, COALESCE(w.project_description, ''), w.net_amount_cents, w.currency
		FROM withdrawals w
		WHERE w.id = ANY($1)
		  AND w.status IN ('pending', 'approved')
		  AND NOT EXISTS (
			SELECT 1
			FROM draw_request_items i
			JOIN draw_requests dr ON dr.id = i.request_id
			WHERE i.withdrawal_id = w.id AND dr.status IN ('pending', 'approved')
		  )
		FOR UPDATE OF w
	`, payload.WithdrawalIDs)
	if err != nil {
		return nil, nil, err
	}

	type withdrawalSnapshot struct {
		id          uuid.UUID
		creatorName string
		projectDesc string
		amountCents int64
		currency    string
	}
	snapshots := make([]withdrawalSnapshot, 0, len(payload.WithdrawalIDs))
	for rows.Next() {
		var snap withdrawalSnapshot
		if err := rows.Scan(&snap.id, &snap.creatorName, &snap.projectDesc, &snap.amountCents, &snap.currency); err != nil {
			rows.Close()
			return nil, nil, err
		}
		snapshots = append(snapshots, snap)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, nil, rows.Err()
	}

	if len(snapshots) != len(payload.WithdrawalIDs) {
		return nil, nil, ErrWithdrawalUnavailable
	}

	var totalAmount int64
	for _, snap := range snapshots {
		totalAmount += snap.amountCents
	}

	// Per-year sequence inside the creation transaction keeps the
	// human-readable numbers dense enough for treasurer emails.
	var seq int64
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) + 1 FROM draw_requests WHERE created_at >= date_trunc('year', NOW())`,
	).Scan(&seq)
	if err != nil {
		return nil, nil, err
	}
	requestNumber := fmt.Sprintf("DR-%d-%06d", time.Now().UTC().Year(), seq)

	requestID := uuid.New()
	row := tx.QueryRow(ctx, `
		INSERT INTO draw_requests (
			id, request_number, description, total_amount_cents, currency,
			treasurer_name, treasurer_email, signers, due_date, is_draft, status, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, 'pending', $10)
		RETURNING `+drawRequestColumns,
		requestID, requestNumber, payload.Description, totalAmount, currency,
		payload.TreasurerName, payload.TreasurerEmail, payload.Signers, payload.DueDate,
		payload.CreatedBy,
	)
	request, err := scanDrawRequest(row)
	if err != nil {
		return nil, nil, err
	}

	items := make([]domain.DrawRequestItem, 0, len(snapshots))
	for _, snap := range snapshots {
		item := domain.DrawRequestItem{
			ID:                 uuid.New(),
			RequestID:          requestID,
			WithdrawalID:       snap.id,
			CreatorName:        snap.creatorName,
			ProjectDescription: snap.projectDesc,
			NetAmountCents:     snap.amountCents,
			Currency:           snap.currency,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO draw_request_items (
				id, request_id, withdrawal_id, creator_name, project_description, net_amount_cents, currency
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`, item.ID, item.RequestID, item.WithdrawalID, item.CreatorName, item.ProjectDescription,
			item.NetAmountCents, item.Currency,
		).Scan(&item.CreatedAt)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, item)
	}

	var itemSum int64
	for _, item := range items {
		itemSum += item.NetAmountCents
	}
	if itemSum != request.TotalAmountCents {
		return nil, nil, ErrItemTotalMismatch
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return request, items, nil
}

// GetDrawRequestByID retrieves a draw request by its UUID.
func (r *PostgresRepository) GetDrawRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.DrawRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+drawRequestColumns+` FROM draw_requests WHERE id = $1`, requestID)
	request, err := scanDrawRequest(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return request, nil
}

// GetDrawRequestByNumber retrieves a draw request by its human-readable number.
func (r *PostgresRepository) GetDrawRequestByNumber(ctx context.Context, requestNumber string) (*domain.DrawRequest, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+drawRequestColumns+` FROM draw_requests WHERE upper(request_number) = upper($1)`,
		strings.TrimSpace(requestNumber),
	)
	request, err := scanDrawRequest(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return request, nil
}

// ListDrawRequests returns draw requests matching the typed filter options.
// The WHERE clause is assembled from parameterized fragments only.
func (r *PostgresRepository) ListDrawRequests(ctx context.Context, opts domain.DrawRequestListOptions) ([]domain.DrawRequest, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	conditions := []string{}
	args := []interface{}{}
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Status != "" {
		conditions = append(conditions, "status = "+arg(opts.Status))
	}
	if opts.PayeeContains != "" {
		conditions = append(conditions, `EXISTS (
			SELECT 1 FROM draw_request_items i
			WHERE i.request_id = draw_requests.id AND i.creator_name ILIKE '%' || `+arg(opts.PayeeContains)+` || '%'
		)`)
	}
	if opts.CreatedAfter != nil {
		conditions = append(conditions, "created_at >= "+arg(*opts.CreatedAfter))
	}
	if opts.CreatedBefore != nil {
		conditions = append(conditions, "created_at <= "+arg(*opts.CreatedBefore))
	}

	query := `SELECT ` + drawRequestColumns + ` FROM draw_requests`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.DrawRequest
	for rows.Next() {
		request, err := scanDrawRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}
	return requests, rows.Err()
}

// GetDrawRequestItems returns the line items for a draw request.
func (r *PostgresRepository) GetDrawRequestItems(ctx context.Context, requestID uuid.UUID) ([]domain.DrawRequestItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, withdrawal_id, creator_name, COALESCE(project_description, ''), net_amount_cents, currency, created_at
		FROM draw_request_items
		WHERE request_id = $1
		ORDER BY created_at ASC
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.DrawRequestItem
	for rows.Next() {
		var item domain.DrawRequestItem
		err := rows.Scan(
			&item.ID, &item.RequestID, &item.WithdrawalID, &item.CreatorName,
			&item.ProjectDescription, &item.NetAmountCents, &item.Currency, &item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// AttachDrawRequestPDF records the rendered PDF's location on the request.
func (r *PostgresRepository) AttachDrawRequestPDF(ctx context.Context, requestID uuid.UUID, pdfURL string) (bool, error) {
	result, err := r.db.Exec(ctx,
		`UPDATE draw_requests SET pdf_url = $1, updated_at = NOW() WHERE id = $2`,
		pdfURL, requestID,
	)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ApproveDrawRequest transitions a pending request to approved. The status
// guard in the predicate makes concurrent double-decisions race-safe.
func (r *PostgresRepository) ApproveDrawRequest(ctx context.Context, requestID uuid.UUID, approvedBy string, message *string) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE draw_requests
		SET status = 'approved', approved_at = NOW(), approved_by = $1, approval_message = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'pending'
	`, approvedBy, message, requestID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// RejectDrawRequest transitions a pending request to rejected.
func (r *PostgresRepository) RejectDrawRequest(ctx context.Context, requestID uuid.UUID, rejectedBy string, reason string) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE draw_requests
		SET status = 'rejected', rejected_at = NOW(), rejected_by = $1, rejection_reason = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'pending'
	`, rejectedBy, reason, requestID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// CancelDrawRequest transitions a pending request to cancelled.
func (r *PostgresRepository) CancelDrawRequest(ctx context.Context, requestID uuid.UUID, cancelledBy string) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE draw_requests
		SET status = 'cancelled', cancelled_at = NOW(), cancelled_by = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`, cancelledBy, requestID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// GetRequestsReadyForAutoSend applies the eligibility predicate as a query
// filter: approved requests whose delay window has elapsed and whose total is
// within the configured cap, oldest approval first. It must select exactly
// the set the per-row eligibility check accepts.
func (r *PostgresRepository) GetRequestsReadyForAutoSend(ctx context.Context, cfg domain.TreasurySettings, now time.Time, limit int) ([]domain.DrawRequest, error) {
	if !cfg.AutoSendEnabled {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+drawRequestColumns+`
		FROM draw_requests
		WHERE status = 'approved'
		  AND approved_at IS NOT NULL
		  AND approved_at + make_interval(hours => $1) <= $2
		  AND ($3::bigint IS NULL OR total_amount_cents <= $3)
		ORDER BY approved_at ASC
		LIMIT $4
	`, cfg.AutoSendDelayHours, now, cfg.MaxAmountCents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.DrawRequest
	for rows.Next() {
		request, err := scanDrawRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}
	return requests, rows.Err()
}

// GetWithdrawalIDsForRequest returns the withdrawal ids linked to a request.
func (r *PostgresRepository) GetWithdrawalIDsForRequest(ctx context.Context, requestID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT withdrawal_id FROM draw_request_items WHERE request_id = $1 ORDER BY created_at ASC`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkWithdrawalsProcessing advances approved withdrawals to processing and
// returns how many rows actually flipped. A withdrawal that changed status
// out-of-band simply does not match the guard and is not counted.
func (r *PostgresRepository) MarkWithdrawalsProcessing(ctx context.Context, withdrawalIDs []uuid.UUID) (int64, error) {
	if len(withdrawalIDs) == 0 {
		return 0, nil
	}
	result, err := r.db.Exec(ctx, `
		UPDATE withdrawals
		SET status = 'processing', updated_at = NOW()
		WHERE id = ANY($1) AND status = 'approved'
	`, withdrawalIDs)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// CreateCommunication appends one row to the communication log. Rows are
// never updated afterwards; corrections are new rows.
func (r *PostgresRepository) CreateCommunication(ctx context.Context, comm *domain.Communication) error {
	if comm.ID == uuid.Nil {
		comm.ID = uuid.New()
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO treasury_communications (
			id, request_id, direction, channel, subject, body, from_email, to_email,
			parsed_status, parsed_confidence, matched_keywords
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`, comm.ID, comm.RequestID, comm.Direction, comm.Channel, comm.Subject, comm.Body,
		comm.FromEmail, comm.ToEmail, comm.ParsedStatus, comm.ParsedConfidence, comm.MatchedKeywords,
	).Scan(&comm.CreatedAt)
}

// ListCommunications returns the audit trail for one request, oldest first.
func (r *PostgresRepository) ListCommunications(ctx context.Context, requestID uuid.UUID) ([]domain.Communication, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, direction, channel, COALESCE(subject, ''), COALESCE(body, ''),
		       COALESCE(from_email, ''), COALESCE(to_email, ''),
		       parsed_status, parsed_confidence, matched_keywords, created_at
		FROM treasury_communications
		WHERE request_id = $1
		ORDER BY created_at ASC
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comms []domain.Communication
	for rows.Next() {
		var comm domain.Communication
		err := rows.Scan(
			&comm.ID, &comm.RequestID, &comm.Direction, &comm.Channel, &comm.Subject, &comm.Body,
			&comm.FromEmail, &comm.ToEmail, &comm.ParsedStatus, &comm.ParsedConfidence,
			&comm.MatchedKeywords, &comm.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		comms = append(comms, comm)
	}
	return comms, rows.Err()
}

// GetTreasurySettings returns the tenant settings singleton. A missing row
// yields safe defaults with auto-send disabled.
func (r *PostgresRepository) GetTreasurySettings(ctx context.Context) (*domain.TreasurySettings, error) {
	var settings domain.TreasurySettings
	err := r.db.QueryRow(ctx, `
		SELECT auto_send_enabled, auto_send_delay_hours, auto_send_max_amount_cents, COALESCE(treasurer_email, ''), updated_at
		FROM treasury_settings
		WHERE id = 1
	`).Scan(
		&settings.AutoSendEnabled, &settings.AutoSendDelayHours,
		&settings.MaxAmountCents, &settings.TreasurerEmail, &settings.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &domain.TreasurySettings{AutoSendDelayHours: 24}, nil
		}
		return nil, err
	}
	return &settings, nil
}

// UpdateTreasurySettings applies a partial settings update and returns the
// resulting row. Read-modify-write inside one transaction keeps concurrent
// administrator updates from interleaving field-wise.
func (r *PostgresRepository) UpdateTreasurySettings(ctx context.Context, payload domain.UpdateTreasurySettingsPayload) (*domain.TreasurySettings, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current := domain.TreasurySettings{AutoSendDelayHours: 24}
	err = tx.QueryRow(ctx, `
		SELECT auto_send_enabled, auto_send_delay_hours, auto_send_max_amount_cents, COALESCE(treasurer_email, ''), updated_at
		FROM treasury_settings
		WHERE id = 1
		FOR UPDATE
	`).Scan(
		&current.AutoSendEnabled, &current.AutoSendDelayHours,
		&current.MaxAmountCents, &current.TreasurerEmail, &current.UpdatedAt,
	)
	if err != nil && err != pgx.ErrNoRows {
		return nil, err
	}

	if payload.AutoSendEnabled != nil {
		current.AutoSendEnabled = *payload.AutoSendEnabled
	}
	if payload.AutoSendDelayHours != nil {
		current.AutoSendDelayHours = *payload.AutoSendDelayHours
	}
	if payload.ClearMaxAmount {
		current.MaxAmountCents = nil
	} else if payload.MaxAmountCents != nil {
		current.MaxAmountCents = payload.MaxAmountCents
	}
	if payload.TreasurerEmail != nil {
		current.TreasurerEmail = strings.TrimSpace(*payload.TreasurerEmail)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO treasury_settings (id, auto_send_enabled, auto_send_delay_hours, auto_send_max_amount_cents, treasurer_email, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			auto_send_enabled = EXCLUDED.auto_send_enabled,
			auto_send_delay_hours = EXCLUDED.auto_send_delay_hours,
			auto_send_max_amount_cents = EXCLUDED.auto_send_max_amount_cents,
			treasurer_email = EXCLUDED.treasurer_email,
			updated_at = NOW()
		RETURNING updated_at
	`, current.AutoSendEnabled, current.AutoSendDelayHours, current.MaxAmountCents, current.TreasurerEmail,
	).Scan(&current.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &current, nil
}
