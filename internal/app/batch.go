/**
 * @description
 * Auto-send batch processing: a bounded run over the draw requests whose
 * eligibility window has elapsed, advancing their linked withdrawals from
 * approved to processing. The run is a fold over the eligible set with an
 * explicit isolated-failure policy: one bad request lands in the error list
 * and the rest of the batch continues. Because every withdrawal advance is a
 * guarded update, the scheduler re-running (or overlapping with itself) is
 * harmless: a second run simply affects zero rows.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/transfa/treasury-service/internal/domain"
)

// DefaultBatchSize bounds one auto-send run when the caller does not say.
const DefaultBatchSize = 25

// RunAutoSendBatch processes up to maxRequests eligible requests, oldest
// approval first. Processed counts withdrawal rows actually flipped; Failed
// counts requests that could not be handled at all.
func (s *Service) RunAutoSendBatch(ctx context.Context, maxRequests int) (*domain.BatchReport, error) {
	if maxRequests <= 0 {
		maxRequests = DefaultBatchSize
	}

	report := &domain.BatchReport{Errors: []string{}}

	cfg, err := s.repo.GetTreasurySettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load treasury settings: %w", err)
	}
	if !cfg.AutoSendEnabled {
		report.Success = true
		return report, nil
	}

	eligible, err := s.repo.GetRequestsReadyForAutoSend(ctx, *cfg, s.now(), maxRequests)
	if err != nil {
		return nil, fmt.Errorf("failed to query auto-send candidates: %w", err)
	}

	for _, candidate := range eligible {
		flipped, itemErr := s.processAutoSendRequest(ctx, candidate)
		if itemErr != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", candidate.RequestNumber, itemErr))
			continue
		}
		report.Processed += int(flipped)
	}

	report.Success = report.Failed == 0
	log.Printf("level=info component=autosend msg=\"batch run finished\" candidates=%d processed=%d failed=%d", len(eligible), report.Processed, report.Failed)
	return report, nil
}

// processAutoSendRequest advances one request's withdrawals and returns how
// many rows actually flipped.
func (s *Service) processAutoSendRequest(ctx context.Context, candidate domain.DrawRequest) (int64, error) {
	// Re-verify the status: eligibility was computed earlier and the request
	// may have changed since.
	request, err := s.repo.GetDrawRequestByID(ctx, candidate.ID)
	if err != nil {
		return 0, fmt.Errorf("request no longer loadable: %w", err)
	}
	if request.Status != domain.RequestStatusApproved {
		return 0, fmt.Errorf("request is no longer approved (status %s)", request.Status)
	}

	withdrawalIDs, err := s.repo.GetWithdrawalIDsForRequest(ctx, request.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load linked withdrawals: %w", err)
	}
	if len(withdrawalIDs) == 0 {
		return 0, fmt.Errorf("no linked withdrawals")
	}

	flipped, err := s.repo.MarkWithdrawalsProcessing(ctx, withdrawalIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to advance withdrawals: %w", err)
	}
	if flipped < int64(len(withdrawalIDs)) {
		// Some withdrawals changed status out-of-band; the guard skipped
		// them. Only the rows actually flipped count.
		log.Printf("level=warn component=autosend msg=\"partial withdrawal advance\" request_number=%s requested=%d flipped=%d", request.RequestNumber, len(withdrawalIDs), flipped)
	}
	return flipped, nil
}
