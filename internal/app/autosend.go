/**
 * @description
 * Auto-send eligibility: decides whether an approved draw request has cleared
 * its configured delay window and amount cap. The configuration is passed in
 * explicitly so tests and callers can evaluate arbitrary configs without any
 * database state. The bulk store query (GetRequestsReadyForAutoSend) must
 * select exactly the set this predicate accepts; that equivalence is covered
 * by tests.
 */

package app

import (
	"fmt"
	"time"

	"github.com/transfa/treasury-service/internal/domain"
)

// EligibilityResult reports the auto-send decision for a single request. When
// a request is not eligible, Reason names the first failing check.
type EligibilityResult struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// IsEligible runs the ordered, short-circuiting eligibility checks for one
// request against the given settings at time `now`.
func IsEligible(req *domain.DrawRequest, cfg *domain.TreasurySettings, now time.Time) EligibilityResult {
	if !cfg.AutoSendEnabled {
		return EligibilityResult{Reason: "auto-send not enabled"}
	}
	if req.Status != domain.RequestStatusApproved {
		return EligibilityResult{Reason: "not approved"}
	}
	if req.ApprovedAt == nil {
		return EligibilityResult{Reason: "no approval timestamp"}
	}

	eligibleAt := req.ApprovedAt.Add(time.Duration(cfg.AutoSendDelayHours) * time.Hour)
	if now.Before(eligibleAt) {
		remaining := eligibleAt.Sub(now)
		hoursLeft := int64((remaining + time.Hour - 1) / time.Hour)
		return EligibilityResult{Reason: fmt.Sprintf("delay window not elapsed: %d hour(s) remaining", hoursLeft)}
	}

	if cfg.MaxAmountCents != nil && req.TotalAmountCents > *cfg.MaxAmountCents {
		return EligibilityResult{Reason: fmt.Sprintf("amount exceeds auto-send limit of %d cents", *cfg.MaxAmountCents)}
	}

	return EligibilityResult{Eligible: true}
}
