/**
 * @description
 * This file contains the core business logic for the treasury-service. The
 * `Service` struct orchestrates the draw-request lifecycle: creation from
 * unclaimed withdrawals, the three guarded transitions, the dual-channel
 * approval surfaces (tokenized web links and classified treasurer email),
 * and the communication log around all of it.
 *
 * Key properties:
 * - Transitions are delegated to guarded storage writes; a guard miss is a
 *   benign "already decided" outcome, never an error.
 * - Provenance checks (auto-reply, sender validation, token verification)
 *   run before any classification result may drive a transition.
 * - Notification dispatch failures are logged and never propagate.
 *
 * @dependencies
 * - context, errors, fmt, log, regexp, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/token: Signed action tokens for the web approval links.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/treasury-service/internal/domain"
	"github.com/transfa/treasury-service/internal/store"
	"github.com/transfa/treasury-service/pkg/token"
)

var (
	ErrInvalidEmailPayload = errors.New("inbound email payload is missing required fields")
	ErrReasonRequired      = errors.New("a rejection reason is required")
	ErrInvalidAction       = errors.New("action must be approve or reject")
	ErrInvalidToken        = errors.New("action token is invalid or expired")
	ErrNoWithdrawals       = errors.New("a draw request needs at least one withdrawal")
	ErrTreasurerRequired   = errors.New("treasurer name and email are required")
	ErrInvalidSettings     = errors.New("invalid treasury settings")
)

var requestNumberRe = regexp.MustCompile(`(?i)\b(DR-\d{4}-\d{6})\b`)

// Inbound email handling outcomes.
const (
	EmailOutcomeUnmatched      = "unmatched"
	EmailOutcomeAutoReply      = "auto_reply"
	EmailOutcomeWrongSender    = "wrong_sender"
	EmailOutcomeApproved       = "approved"
	EmailOutcomeRejected       = "rejected"
	EmailOutcomeUnclear        = "unclear"
	EmailOutcomeAlreadyDecided = "already_decided"
)

// Service provides the core business logic for the approval workflow.
type Service struct {
	repo        store.Repository
	notifier    Notifier
	tokens      *token.Signer
	tokenMaxAge time.Duration
	linkBaseURL string
	currency    string
	now         func() time.Time
}

// NewService creates a new treasury workflow service instance.
func NewService(repo store.Repository, notifier Notifier, tokens *token.Signer, tokenMaxAge time.Duration, linkBaseURL, currency string) *Service {
	if tokenMaxAge <= 0 {
		tokenMaxAge = token.DefaultMaxAge
	}
	return &Service{
		repo:        repo,
		notifier:    notifier,
		tokens:      tokens,
		tokenMaxAge: tokenMaxAge,
		linkBaseURL: strings.TrimRight(linkBaseURL, "/"),
		currency:    currency,
		now:         time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateDrawRequest bundles a set of unclaimed withdrawals into a new pending
// draw request, records the outbound approval email in the communication log,
// and dispatches a request-created notification.
func (s *Service) CreateDrawRequest(ctx context.Context, payload domain.CreateDrawRequestPayload) (*domain.DrawRequest, []domain.DrawRequestItem, error) {
	if len(payload.WithdrawalIDs) == 0 {
		return nil, nil, ErrNoWithdrawals
	}
	if strings.TrimSpace(payload.TreasurerEmail) == "" || strings.TrimSpace(payload.TreasurerName) == "" {
		return nil, nil, ErrTreasurerRequired
	}

	request, items, err := s.repo.CreateDrawRequestWithItems(ctx, payload, s.currency)
	if err != nil {
		return nil, nil, err
	}

	approveLink := s.ActionLink(request.ID, token.ActionApprove)
	rejectLink := s.ActionLink(request.ID, token.ActionReject)

	outbound := &domain.Communication{
		RequestID: request.ID,
		Direction: domain.DirectionOutbound,
		Channel:   domain.ChannelEmail,
		Subject:   fmt.Sprintf("Draw Request %s: approval needed", request.RequestNumber),
		Body: fmt.Sprintf(
			"Draw request %s for %d %s awaits your decision.\nApprove: %s\nReject: %s\nYou can also reply to this email with your decision.",
			request.RequestNumber, request.TotalAmountCents, request.Currency, approveLink, rejectLink,
		),
		ToEmail: request.TreasurerEmail,
	}
	if err := s.repo.CreateCommunication(ctx, outbound); err != nil {
		log.Printf("level=warn component=workflow msg=\"failed to log outbound approval request\" request_number=%s err=%v", request.RequestNumber, err)
	}

	dispatchNotification(ctx, s.notifier, domain.NotifyRequestCreated, request, map[string]string{
		"approve_link": approveLink,
		"reject_link":  rejectLink,
	})
	return request, items, nil
}

// ActionLink builds the tokenized one-click link for an action on a request.
func (s *Service) ActionLink(requestID uuid.UUID, action string) string {
	return fmt.Sprintf("%s/treasury/requests/%s/action?action=%s&token=%s",
		s.linkBaseURL, requestID, action, s.tokens.Issue(requestID, action))
}

// GetDrawRequest returns a request with its line items.
func (s *Service) GetDrawRequest(ctx context.Context, requestID uuid.UUID) (*domain.DrawRequest, []domain.DrawRequestItem, error) {
	request, err := s.repo.GetDrawRequestByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.repo.GetDrawRequestItems(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	return request, items, nil
}

// ListDrawRequests returns requests matching the typed filter options.
func (s *Service) ListDrawRequests(ctx context.Context, opts domain.DrawRequestListOptions) ([]domain.DrawRequest, error) {
	return s.repo.ListDrawRequests(ctx, opts)
}

// ListCommunications returns the audit trail for a request.
func (s *Service) ListCommunications(ctx context.Context, requestID uuid.UUID) ([]domain.Communication, error) {
	return s.repo.ListCommunications(ctx, requestID)
}

// AttachPDF records the rendered request PDF's location.
func (s *Service) AttachPDF(ctx context.Context, requestID uuid.UUID, pdfURL string) error {
	if strings.TrimSpace(pdfURL) == "" {
		return errors.New("pdf url must not be empty")
	}
	updated, err := s.repo.AttachDrawRequestPDF(ctx, requestID, pdfURL)
	if err != nil {
		return err
	}
	if !updated {
		return store.ErrRequestNotFound
	}
	return nil
}

// ApproveRequest runs the guarded pending->approved transition. The returned
// bool reports whether this call won the transition; false means another
// actor already decided and the call was a no-op.
func (s *Service) ApproveRequest(ctx context.Context, requestID uuid.UUID, approvedBy string, message *string) (bool, error) {
	transitioned, err := s.repo.ApproveDrawRequest(ctx, requestID, approvedBy, message)
	if err != nil || !transitioned {
		return false, err
	}
	s.notifyAfterTransition(ctx, requestID, domain.NotifyRequestApproved)
	return true, nil
}

// RejectRequest runs the guarded pending->rejected transition. The reason is
// mandatory.
func (s *Service) RejectRequest(ctx context.Context, requestID uuid.UUID, rejectedBy, reason string) (bool, error) {
	if strings.TrimSpace(reason) == "" {
		return false, ErrReasonRequired
	}
	transitioned, err := s.repo.RejectDrawRequest(ctx, requestID, rejectedBy, reason)
	if err != nil || !transitioned {
		return false, err
	}
	s.notifyAfterTransition(ctx, requestID, domain.NotifyRequestRejected)
	return true, nil
}

// CancelRequest runs the guarded pending->cancelled transition.
func (s *Service) CancelRequest(ctx context.Context, requestID uuid.UUID, cancelledBy string) (bool, error) {
	transitioned, err := s.repo.CancelDrawRequest(ctx, requestID, cancelledBy)
	if err != nil || !transitioned {
		return false, err
	}
	s.notifyAfterTransition(ctx, requestID, domain.NotifyRequestCancelled)
	return true, nil
}

func (s *Service) notifyAfterTransition(ctx context.Context, requestID uuid.UUID, kind string) {
	request, err := s.repo.GetDrawRequestByID(ctx, requestID)
	if err != nil {
		log.Printf("level=warn component=workflow msg=\"failed to load request for notification\" request_id=%s kind=%s err=%v", requestID, kind, err)
		return
	}
	dispatchNotification(ctx, s.notifier, kind, request, nil)
}

// InboundEmailResult summarizes how one inbound email was handled.
type InboundEmailResult struct {
	Outcome        string                `json:"outcome"`
	RequestNumber  string                `json:"request_number,omitempty"`
	Classification *ClassificationResult `json:"classification,omitempty"`
	Transitioned   bool                  `json:"transitioned"`
}

// HandleInboundEmail processes one treasurer reply: it locates the request by
// the number in the subject or body, runs the provenance checks, classifies
// the text, and records everything in the communication log. Only a committed
// approve/reject classification from the expected sender invokes the guarded
// transition.
func (s *Service) HandleInboundEmail(ctx context.Context, email domain.InboundEmail) (*InboundEmailResult, error) {
	if strings.TrimSpace(email.From) == "" || strings.TrimSpace(email.To) == "" ||
		strings.TrimSpace(email.Subject) == "" || strings.TrimSpace(email.Text) == "" {
		return nil, ErrInvalidEmailPayload
	}

	requestNumber := extractRequestNumber(email.Subject)
	if requestNumber == "" {
		requestNumber = extractRequestNumber(email.Text)
	}
	if requestNumber == "" {
		log.Printf("level=info component=workflow msg=\"inbound email has no request number\" from=%s subject=%q", email.From, email.Subject)
		return &InboundEmailResult{Outcome: EmailOutcomeUnmatched}, nil
	}

	request, err := s.repo.GetDrawRequestByNumber(ctx, requestNumber)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return &InboundEmailResult{Outcome: EmailOutcomeUnmatched, RequestNumber: requestNumber}, nil
		}
		return nil, err
	}

	result := &InboundEmailResult{RequestNumber: request.RequestNumber}

	// Provenance checks run before the classification result may be trusted.
	if IsAutoReply(email.Subject, email.Text, email.Headers) {
		result.Outcome = EmailOutcomeAutoReply
		s.logInbound(ctx, request, email, nil)
		return result, nil
	}
	if !ValidateSenderEmail(email.From, request.TreasurerEmail) {
		log.Printf("level=warn component=workflow msg=\"inbound email from unexpected sender\" request_number=%s from=%s", request.RequestNumber, email.From)
		result.Outcome = EmailOutcomeWrongSender
		s.logInbound(ctx, request, email, nil)
		return result, nil
	}

	classification := Classify(email.Text)
	result.Classification = &classification
	s.logInbound(ctx, request, email, &classification)

	switch classification.Status {
	case ParsedApproved:
		transitioned, err := s.ApproveRequest(ctx, request.ID, request.TreasurerName, classification.ExtractedMessage)
		if err != nil {
			return nil, err
		}
		result.Transitioned = transitioned
		result.Outcome = EmailOutcomeApproved
		if !transitioned {
			result.Outcome = EmailOutcomeAlreadyDecided
		}
	case ParsedRejected:
		reason := "Rejected by treasurer via email"
		if classification.ExtractedMessage != nil {
			reason = *classification.ExtractedMessage
		}
		transitioned, err := s.RejectRequest(ctx, request.ID, request.TreasurerName, reason)
		if err != nil {
			return nil, err
		}
		result.Transitioned = transitioned
		result.Outcome = EmailOutcomeRejected
		if !transitioned {
			result.Outcome = EmailOutcomeAlreadyDecided
		}
	default:
		// Unclear is a first-class outcome: recorded for audit, awaiting a
		// human follow-up, no transition.
		result.Outcome = EmailOutcomeUnclear
	}

	return result, nil
}

func (s *Service) logInbound(ctx context.Context, request *domain.DrawRequest, email domain.InboundEmail, classification *ClassificationResult) {
	comm := &domain.Communication{
		RequestID: request.ID,
		Direction: domain.DirectionInbound,
		Channel:   domain.ChannelEmail,
		Subject:   email.Subject,
		Body:      email.Text,
		FromEmail: email.From,
		ToEmail:   email.To,
	}
	if classification != nil {
		comm.ParsedStatus = &classification.Status
		comm.ParsedConfidence = &classification.Confidence
		comm.MatchedKeywords = classification.MatchedKeywords
	}
	if err := s.repo.CreateCommunication(ctx, comm); err != nil {
		log.Printf("level=warn component=workflow msg=\"failed to record inbound communication\" request_number=%s err=%v", request.RequestNumber, err)
	}
}

func extractRequestNumber(text string) string {
	if match := requestNumberRe.FindStringSubmatch(text); match != nil {
		return strings.ToUpper(match[1])
	}
	return ""
}

// WebActionResult reports the outcome of a tokenized web approval link.
type WebActionResult struct {
	Request      *domain.DrawRequest `json:"request"`
	Action       string              `json:"action"`
	Transitioned bool                `json:"transitioned"`
}

// HandleWebAction verifies the signed action token against the target
// request and action, then runs the corresponding guarded transition. Any
// token problem fails closed with ErrInvalidToken.
func (s *Service) HandleWebAction(ctx context.Context, requestID uuid.UUID, action, rawToken string) (*WebActionResult, error) {
	if action != token.ActionApprove && action != token.ActionReject {
		return nil, ErrInvalidAction
	}
	if !s.tokens.Verify(rawToken, requestID, action, s.tokenMaxAge) {
		return nil, ErrInvalidToken
	}

	request, err := s.repo.GetDrawRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var transitioned bool
	switch action {
	case token.ActionApprove:
		message := "Approved via web link"
		transitioned, err = s.ApproveRequest(ctx, requestID, request.TreasurerName, &message)
	case token.ActionReject:
		transitioned, err = s.RejectRequest(ctx, requestID, request.TreasurerName, "Rejected via web link")
	}
	if err != nil {
		return nil, err
	}

	comm := &domain.Communication{
		RequestID: request.ID,
		Direction: domain.DirectionInbound,
		Channel:   domain.ChannelWeb,
		Subject:   fmt.Sprintf("Web action: %s", action),
		Body:      fmt.Sprintf("Treasurer used the %s link (transition applied: %t)", action, transitioned),
		FromEmail: request.TreasurerEmail,
	}
	if err := s.repo.CreateCommunication(ctx, comm); err != nil {
		log.Printf("level=warn component=workflow msg=\"failed to record web action\" request_number=%s err=%v", request.RequestNumber, err)
	}

	// Re-read so the caller sees the post-transition audit fields.
	request, err = s.repo.GetDrawRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &WebActionResult{Request: request, Action: action, Transitioned: transitioned}, nil
}

// GetTreasurySettings returns the auto-send configuration singleton.
func (s *Service) GetTreasurySettings(ctx context.Context) (*domain.TreasurySettings, error) {
	return s.repo.GetTreasurySettings(ctx)
}

// UpdateTreasurySettings validates and applies a partial settings update.
func (s *Service) UpdateTreasurySettings(ctx context.Context, payload domain.UpdateTreasurySettingsPayload) (*domain.TreasurySettings, error) {
	if payload.AutoSendDelayHours != nil && *payload.AutoSendDelayHours < 0 {
		return nil, fmt.Errorf("%w: delay hours must not be negative", ErrInvalidSettings)
	}
	if payload.MaxAmountCents != nil && *payload.MaxAmountCents <= 0 {
		return nil, fmt.Errorf("%w: max amount must be positive", ErrInvalidSettings)
	}
	if payload.TreasurerEmail != nil && !strings.Contains(*payload.TreasurerEmail, "@") {
		return nil, fmt.Errorf("%w: treasurer email is not an address", ErrInvalidSettings)
	}
	return s.repo.UpdateTreasurySettings(ctx, payload)
}
