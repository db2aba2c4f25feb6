package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/treasury-service/internal/domain"
	"github.com/transfa/treasury-service/internal/store"
	"github.com/transfa/treasury-service/pkg/token"
)

// workflowRepoStub is an in-memory Repository covering the workflow and batch
// paths. Transition methods apply the same pending-only guard the real store
// enforces.
type workflowRepoStub struct {
	store.Repository

	now         time.Time
	requests    map[uuid.UUID]*domain.DrawRequest
	comms       []domain.Communication
	settings    domain.TreasurySettings
	withdrawals map[uuid.UUID][]uuid.UUID
	wdStatus    map[uuid.UUID]string
	nextSeq     int

	// afterCandidates runs after candidate selection, before the batch
	// processes them. Lets tests change state mid-run.
	afterCandidates func()
}

func newWorkflowRepoStub() *workflowRepoStub {
	return &workflowRepoStub{
		now:         time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		requests:    map[uuid.UUID]*domain.DrawRequest{},
		settings:    domain.TreasurySettings{AutoSendDelayHours: 24},
		withdrawals: map[uuid.UUID][]uuid.UUID{},
		wdStatus:    map[uuid.UUID]string{},
		nextSeq:     1,
	}
}

func (s *workflowRepoStub) addRequest(status string, treasurerName, treasurerEmail string, amountCents int64) *domain.DrawRequest {
	req := &domain.DrawRequest{
		ID:               uuid.New(),
		RequestNumber:    fmt.Sprintf("DR-2026-%06d", s.nextSeq),
		Status:           status,
		TreasurerName:    treasurerName,
		TreasurerEmail:   treasurerEmail,
		TotalAmountCents: amountCents,
		Currency:         "USD",
		CreatedAt:        s.now,
	}
	s.nextSeq++
	if status == domain.RequestStatusApproved {
		approvedAt := s.now
		req.ApprovedAt = &approvedAt
	}
	s.requests[req.ID] = req
	return req
}

func (s *workflowRepoStub) addWithdrawals(requestID uuid.UUID, count int, status string) {
	for i := 0; i < count; i++ {
		id := uuid.New()
		s.withdrawals[requestID] = append(s.withdrawals[requestID], id)
		s.wdStatus[id] = status
	}
}

func (s *workflowRepoStub) CreateDrawRequestWithItems(ctx context.Context, payload domain.CreateDrawRequestPayload, currency string) (*domain.DrawRequest, []domain.DrawRequestItem, error) {
	req := s.addRequest(domain.RequestStatusPending, payload.TreasurerName, payload.TreasurerEmail, int64(len(payload.WithdrawalIDs))*100)
	req.Description = payload.Description
	req.Currency = currency
	req.CreatedBy = payload.CreatedBy
	items := make([]domain.DrawRequestItem, 0, len(payload.WithdrawalIDs))
	for _, wid := range payload.WithdrawalIDs {
		items = append(items, domain.DrawRequestItem{
			ID:             uuid.New(),
			RequestID:      req.ID,
			WithdrawalID:   wid,
			NetAmountCents: 100,
			Currency:       currency,
		})
	}
	return req, items, nil
}

func (s *workflowRepoStub) GetDrawRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.DrawRequest, error) {
	req, ok := s.requests[requestID]
	if !ok {
		return nil, store.ErrRequestNotFound
	}
	copied := *req
	return &copied, nil
}

func (s *workflowRepoStub) GetDrawRequestByNumber(ctx context.Context, requestNumber string) (*domain.DrawRequest, error) {
	for _, req := range s.requests {
		if req.RequestNumber == requestNumber {
			copied := *req
			return &copied, nil
		}
	}
	return nil, store.ErrRequestNotFound
}

func (s *workflowRepoStub) ApproveDrawRequest(ctx context.Context, requestID uuid.UUID, approvedBy string, message *string) (bool, error) {
	req, ok := s.requests[requestID]
	if !ok || req.Status != domain.RequestStatusPending {
		return false, nil
	}
	approvedAt := s.now
	req.Status = domain.RequestStatusApproved
	req.ApprovedAt = &approvedAt
	req.ApprovedBy = &approvedBy
	req.ApprovalMessage = message
	return true, nil
}

func (s *workflowRepoStub) RejectDrawRequest(ctx context.Context, requestID uuid.UUID, rejectedBy string, reason string) (bool, error) {
	req, ok := s.requests[requestID]
	if !ok || req.Status != domain.RequestStatusPending {
		return false, nil
	}
	rejectedAt := s.now
	req.Status = domain.RequestStatusRejected
	req.RejectedAt = &rejectedAt
	req.RejectedBy = &rejectedBy
	req.RejectionReason = &reason
	return true, nil
}

func (s *workflowRepoStub) CancelDrawRequest(ctx context.Context, requestID uuid.UUID, cancelledBy string) (bool, error) {
	req, ok := s.requests[requestID]
	if !ok || req.Status != domain.RequestStatusPending {
		return false, nil
	}
	cancelledAt := s.now
	req.Status = domain.RequestStatusCancelled
	req.CancelledAt = &cancelledAt
	req.CancelledBy = &cancelledBy
	return true, nil
}

func (s *workflowRepoStub) CreateCommunication(ctx context.Context, comm *domain.Communication) error {
	s.comms = append(s.comms, *comm)
	return nil
}

func (s *workflowRepoStub) ListCommunications(ctx context.Context, requestID uuid.UUID) ([]domain.Communication, error) {
	var out []domain.Communication
	for _, comm := range s.comms {
		if comm.RequestID == requestID {
			out = append(out, comm)
		}
	}
	return out, nil
}

func (s *workflowRepoStub) GetTreasurySettings(ctx context.Context) (*domain.TreasurySettings, error) {
	copied := s.settings
	return &copied, nil
}

func (s *workflowRepoStub) GetRequestsReadyForAutoSend(ctx context.Context, cfg domain.TreasurySettings, now time.Time, limit int) ([]domain.DrawRequest, error) {
	var out []domain.DrawRequest
	for _, req := range s.requests {
		if IsEligible(req, &cfg, now).Eligible {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApprovedAt.Before(*out[j].ApprovedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if s.afterCandidates != nil {
		s.afterCandidates()
	}
	return out, nil
}

func (s *workflowRepoStub) GetWithdrawalIDsForRequest(ctx context.Context, requestID uuid.UUID) ([]uuid.UUID, error) {
	return s.withdrawals[requestID], nil
}

func (s *workflowRepoStub) MarkWithdrawalsProcessing(ctx context.Context, withdrawalIDs []uuid.UUID) (int64, error) {
	var flipped int64
	for _, id := range withdrawalIDs {
		if s.wdStatus[id] == domain.WithdrawalStatusApproved {
			s.wdStatus[id] = domain.WithdrawalStatusProcessing
			flipped++
		}
	}
	return flipped, nil
}

// notifierStub records dispatched notification kinds.
type notifierStub struct {
	kinds []string
	err   error
}

func (n *notifierStub) Send(ctx context.Context, kind string, request *domain.DrawRequest, extra map[string]string) error {
	n.kinds = append(n.kinds, kind)
	return n.err
}

func newTestService(t *testing.T, repo store.Repository, notifier Notifier) *Service {
	t.Helper()
	signer, err := token.NewSigner("test-secret")
	if err != nil {
		t.Fatalf("NewSigner returned error: %v", err)
	}
	svc := NewService(repo, notifier, signer, time.Hour, "https://treasury.example.com", "USD")
	svc.WithClock(func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) })
	return svc
}

func inboundEmail(from, subject, text string) domain.InboundEmail {
	return domain.InboundEmail{
		From:    from,
		To:      "treasury@example.com",
		Subject: subject,
		Text:    text,
	}
}

func TestApproveThenRejectIsNoOp(t *testing.T) {
	repo := newWorkflowRepoStub()
	notifier := &notifierStub{}
	svc := newTestService(t, repo, notifier)
	req := repo.addRequest(domain.RequestStatusPending, "Jane Doe", "jane@example.com", 5000)

	transitioned, err := svc.ApproveRequest(context.Background(), req.ID, "Jane Doe", nil)
	if err != nil || !transitioned {
		t.Fatalf("expected first approve to win, got transitioned=%t err=%v", transitioned, err)
	}

	transitioned, err = svc.RejectRequest(context.Background(), req.ID, "Jane Doe", "changed my mind")
	if err != nil {
		t.Fatalf("expected losing reject to be a benign no-op, got err=%v", err)
	}
	if transitioned {
		t.Fatal("expected the second transition to lose the guard")
	}

	stored := repo.requests[req.ID]
	if stored.Status != domain.RequestStatusApproved {
		t.Fatalf("expected status to stay approved, got %s", stored.Status)
	}
	if stored.RejectionReason != nil {
		t.Fatal("losing transition must not write audit fields")
	}
	if len(notifier.kinds) != 1 || notifier.kinds[0] != domain.NotifyRequestApproved {
		t.Fatalf("expected a single approved notification, got %v", notifier.kinds)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	repo := newWorkflowRepoStub()
	svc := newTestService(t, repo, nil)
	req := repo.addRequest(domain.RequestStatusPending, "Jane Doe", "jane@example.com", 5000)

	if _, err := svc.RejectRequest(context.Background(), req.ID, "Jane Doe", "   "); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	if repo.requests[req.ID].Status != domain.RequestStatusPending {
		t.Fatal("request must stay pending when the reason is missing")
	}
}

func TestCancelRequest(t *testing.T) {
	repo := newWorkflowRepoStub()
	notifier := &notifierStub{}
	svc := newTestService(t, repo, notifier)
	req := repo.addRequest(domain.RequestStatusPending, "Jane Doe", "jane@example.com", 5000)

	transitioned, err := svc.CancelRequest(context.Background(), req.ID, "ops@example.com")
	if err != nil || !transitioned {
		t.Fatalf("expected cancel to win, got transitioned=%t err=%v", transitioned, err)
	}
	if repo.requests[req.ID].Status != domain.RequestStatusCancelled {
		t.Fatalf("expected cancelled, got %s", repo.requests[req.ID].Status)
	}
}

func TestNotifierFailureDoesNotPropagate(t *testing.T) {
	repo := newWorkflowRepoStub()
	notifier := &notifierStub{err: errors.New("broker down")}
	svc := newTestService(t, repo, notifier)
	req := repo.addRequest(domain.RequestStatusPending, "Jane Doe", "jane@example.com", 5000)

	transitioned, err := svc.ApproveRequest(context.Background(), req.ID, "Jane Doe", nil)
	if err != nil {
		t.Fatalf("notification failure must not fail the transition, got %v", err)
	}
	if !transitioned {
		t.Fatal("expected the transition to apply")
	}
	if repo.requests[req.ID].Status != domain.RequestStatusApproved {
		t.Fatalf("expected approved, got %s", repo.requests[req.ID].Status)
	}
}

func TestCreateDrawRequestValidation(t *testing.T) {
	repo := newWorkflowRepoStub()
	svc := newTestService(t, repo, nil)

	_, _, err := svc.CreateDrawRequest(context.Background(), domain.CreateDrawRequestPayload{
		TreasurerName:  "Jane Doe",
		TreasurerEmail: "jane@example.com",
	})
	if !errors.Is(err, ErrNoWithdrawals) {
		t.Fatalf("expected ErrNoWithdrawals, got %v", err)
	}

	_, _, err = svc.CreateDrawRequest(context.Background(), domain.CreateDrawRequestPayload{
		WithdrawalIDs: []uuid.UUID{uuid.New()},
	})
	if !errors.Is(err, ErrTreasurerRequired) {
		t.Fatalf("expected ErrTreasurerRequired, got %v", err)
	}
}

func TestCreateDrawRequestLogsOutboundApprovalEmail(t *testing.T) {
	repo := newWorkflowRepoStub()
	notifier := &notifierStub{}
	svc := newTestService(t, repo, notifier)

	request, items, err := svc.CreateDrawRequest(context.Background(), domain.CreateDrawRequestPayload{
		Description:    "January payouts",
		TreasurerName:  "Jane Doe",
		TreasurerEmail: "jane@example.com",
		WithdrawalIDs:  []uuid.UUID{uuid.New(), uuid.New()},
		CreatedBy:      "ops@example.com",
	})
	if err != nil {
		t.Fatalf("CreateDrawRequest returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if request.Status != domain.RequestStatusPending {
		t.Fatalf("expected pending, got %s", request.Status)
	}

	comms, _ := repo.ListCommunications(context.Background(), request.ID)
	if len(comms) != 1 {
		t.Fatalf("expected one outbound communication, got %d", len(comms))
	}
	outbound := comms[0]
	if outbound.Direction != domain.DirectionOutbound {
		t.Fatalf("expected outbound direction, got %s", outbound.Direction)
	}
	if !strings.Contains(outbound.Body, request.ID.String()) || !strings.Contains(outbound.Body, "action=approve") {
		t.Fatalf("expected the body to carry a tokenized approve link, got %q", outbound.Body)
	}
	if len(notifier.kinds) != 1 || notifier.kinds[0] != domain.NotifyRequestCreated {
		t.Fatalf("expected a created notification, got %v", notifier.kinds)
	}
}

func TestHandleInboundEmailApproves(t *testing.T) {
	repo := newWorkflowRepoStub()
	notifier := &notifierStub{}
	svc := newTestService(t, repo, notifier)
	req := repo.addRequest(domain.RequestStatusPending, "Jane Doe", "jane@example.com", 5000)

	result, err := svc.HandleInboundEmail(context.Background(),
		inboundEmail("Jane Doe <jane@example.com>", "Re: "+req.RequestNumber, "Approved, thanks!"))
	if err != nil {
		t.Fatalf("HandleInboundEmail returned error: %v", err)
	}
	if result.Outcome != EmailOutcomeApproved || !result.Transitioned {
		t.Fatalf("expected approved outcome with transition, got %+v", result)
	}

	stored := repo.requests[req.ID]
	if stored.Status != domain.RequestStatusApproved {
		t.Fatalf("expected approved, got %s", stored.Status)
	}
	if stored.ApprovedBy == nil || *stored.ApprovedBy != "Jane Doe" {
		t.Fatalf("expected the treasurer recorded as approver, got %v", stored.ApprovedBy)
	}

	comms, _ := repo.ListCommunications(context.Background(), req.ID)
	if len(comms) != 1 {
		t.Fatalf("expected the inbound email logged, got %d communications", len(comms))
	}
	if comms[0].ParsedStatus == nil || *comms[0].ParsedStatus != ParsedApproved {
		t.Fatalf("expected parsed status recorded, got %v", comms[0].ParsedStatus)
	}
	if len(notifier.kinds) != 1 || notifier.kinds[0] != domain.NotifyRequestApproved {
		t.Fatalf("expected an approved notification, got %v", notifier.kinds)
	}
}

func TestHandleInboundEmailRejectsWithReason(t *testing.T) {
	repo := newWorkflowRepoStub()
	svc := newTestService(t, repo, nil)
	req := repo.addRequest(domain.RequestStatusPending, "Jane Doe", "jane@example.com", 5000)

	result, err := svc.HandleInboundEmail(context.Background(),
		inboundEmail("jane@example.com", "Re: "+req.RequestNumber, "Rejected. The second line item has the wrong amount."))
	if err != nil {
		t.Fatalf("HandleInboundEmail returned error: %v", err)
	}
	if result.Outcome != EmailOutcomeRejected || !result.Transitioned {
		t.Fatalf("expected rejected outcome with transition, got %+v", result)
	}

	stored := repo.requests[req.ID]
	if stored.Status != domain.RequestStatusRejected {
		t.Fatalf("expected rejected, got %s", stored.Status)
	}
	if stored.RejectionReason == nil || !strings.Contains(*stored.RejectionReason, "wrong amount") {
		t.Fatalf("expected the reply text as the rejection reason, got %v", stored.RejectionReason)
	}
}

func TestHandleInboundEmailWrongSenderNeverTransitions(t *testing.T) {
	repo := newWorkflowRepoStub()
	svc := newTestService(t, repo, nil)
	req := repo.addRequest(domain.RequestStatusPending, "Jane Doe", "jane@example.com", 5000)

	result, err := svc.HandleInboundEmail(context.Background(),
		inboundEmail("attacker@evil.com", "Re: "+req.RequestNumber, "Approved, thanks!"))
	if err != nil {
		t.Fatalf("HandleInboundEmail returned error: %v", err)
	}
	if result.Outcome != EmailOutcomeWrongSender || result.Transitioned {
		t.Fatalf("expected wrong_sender with no transition, got %+v", result)
	}
	if repo.requests[req.ID].Status != domain.RequestStatusPending {
		t.Fatal("request must stay pending for a wrong sender")
	}

	// The email is still logged for audit, without classification fields.
	comms, _ := repo.ListCommunications(context.Background(), req.ID)
	if len(comms) != 1 || comms[0].ParsedStatus != nil {
		t.Fatalf("expected an unclassified audit record, got %+v", comms)
	}
}

func TestHandleInboundEmailAutoReplyNeverTransitions(t *testing.T) {
	repo := newWorkflowRepoStub()
	svc := newTestService(t, repo, nil)
	req := repo.addRequest(domain.RequestStatusPending, "Jane Doe", "jane@example.com", 5000)

	result, err := svc.HandleInboundEmail(context.Background(),
		inboundEmail("jane@example.com", "Automatic reply: Re: "+req.RequestNumber, "I am out of office. Consider this approved."))
	if err != nil {
		t.Fatalf("HandleInboundEmail returned error: %v", err)
	}
	if result.Outcome != EmailOutcomeAutoReply || result.Transitioned {
		t.Fatalf("expected auto_reply with no transition, got %+v", result)
	}
	if repo.requests[req.ID].Status != domain.RequestStatusPending {
		t.Fatal("request must stay pending for an auto-reply")
	}
}

func TestHandleInboundEmailUnclearOnlyLogs(t *testing.T) {
	repo := newWorkflowRepoStub()
	notifier := &notifierStub{}
	svc := newTestService(t, repo, notifier)
	req := repo.addRequest(domain.RequestStatusPending, "Jane Doe", "jane@example.com", 5000)

	result, err := svc.HandleInboundEmail(context.Background(),
		inboundEmail("jane@example.com", "Re: "+req.RequestNumber, "I'm not sure, can you clarify the amount?"))
	if err != nil {
		t.Fatalf("HandleInboundEmail returned error: %v", err)
	}
	if result.Outcome != EmailOutcomeUnclear || result.Transitioned {
		t.Fatalf("expected unclear with no transition, got %+v", result)
	}
	if repo.requests[req.ID].Status != domain.RequestStatusPending {
		t.Fatal("request must stay pending for an unclear reply")
	}

	comms, _ := repo.ListCommunications(context.Background(), req.ID)
	if len(comms) != 1 || comms[0].ParsedStatus == nil || *comms[0].ParsedStatus != ParsedUnclear {
		t.Fatalf("expected the unclear classification recorded, got %+v", comms)
	}
	if len(notifier.kinds) != 0 {
		t.Fatalf("expected no notifications for an unclear reply, got %v", notifier.kinds)
	}
}

func TestHandleInboundEmailUnmatchedNumber(t *testing.T) {
	repo := newWorkflowRepoStub()
	svc := newTestService(t, repo, nil)

	result, err := svc.HandleInboundEmail(context.Background(),
		inboundEmail("jane@example.com", "Re: invoice", "Approved, thanks!"))
	if err != nil {
		t.Fatalf("HandleInboundEmail returned error: %v", err)
	}
	if result.Outcome != EmailOutcomeUnmatched {
		t.Fatalf("expected unmatched, got %q", result.Outcome)
	}

	result, err = svc.HandleInboundEmail(context.Background(),
		inboundEmail("jane@example.com", "Re: DR-2026-999999", "Approved, thanks!"))
	if err != nil {
		t.Fatalf("HandleInboundEmail returned error: %v", err)
	}
	if result.Outcome != EmailOutcomeUnmatched {
		t.Fatalf("expected unmatched for an unknown number, got %q", result.Outcome)
	}
}

func TestHandleInboundEmailFindsNumberInBody(t *testing.T) {
	repo := newWorkflowRepoStub()
	svc := newTestService(t, repo, nil)
	req := repo.addRequest(domain.RequestStatusPending, "Jane Doe", "jane@example.com", 5000)

	result, err := svc.HandleInboundEmail(context.Background(),
		inboundEmail("jane@example.com", "Re: payout batch", "Approved, thanks!\nThis covers "+req.RequestNumber+"."))
	if err != nil {
		t.Fatalf("HandleInboundEmail returned error: %v", err)
	}
	if result.Outcome != EmailOutcomeApproved {
		t.Fatalf("expected the body request number to match, got %q", result.Outcome)
	}
}

func TestHandleInboundEmailMissingFields(t *testing.T) {
	repo := newWorkflowRepoStub()
	svc := newTestService(t, repo, nil)

	_, err := svc.HandleInboundEmail(context.Background(), domain.InboundEmail{From: "jane@example.com"})
	if !errors.Is(err, ErrInvalidEmailPayload) {
		t.Fatalf("expected ErrInvalidEmailPayload, got %v", err)
	}
}

func TestHandleInboundEmailAlreadyDecided(t *testing.T) {
	repo := newWorkflowRepoStub()
	svc := newTestService(t, repo, nil)
	req := repo.addRequest(domain.RequestStatusApproved, "Jane Doe", "jane@example.com", 5000)

	result, err := svc.HandleInboundEmail(context.Background(),
		inboundEmail("jane@example.com", "Re: "+req.RequestNumber, "Approved, thanks!"))
	if err != nil {
		t.Fatalf("HandleInboundEmail returned error: %v", err)
	}
	if result.Outcome != EmailOutcomeAlreadyDecided || result.Transitioned {
		t.Fatalf("expected already_decided with no transition, got %+v", result)
	}
}

func TestHandleWebActionApprove(t *testing.T) {
	repo := newWorkflowRepoStub()
	svc := newTestService(t, repo, nil)
	req := repo.addRequest(domain.RequestStatusPending, "Jane Doe", "jane@example.com", 5000)

	rawToken := extractToken(t, svc.ActionLink(req.ID, token.ActionApprove))
	result, err := svc.HandleWebAction(context.Background(), req.ID, token.ActionApprove, rawToken)
	if err != nil {
		t.Fatalf("HandleWebAction returned error: %v", err)
	}
	if !result.Transitioned {
		t.Fatal("expected the web action to transition the request")
	}
	if result.Request.Status != domain.RequestStatusApproved {
		t.Fatalf("expected approved, got %s", result.Request.Status)
	}

	comms, _ := repo.ListCommunications(context.Background(), req.ID)
	if len(comms) != 1 || comms[0].Channel != domain.ChannelWeb {
		t.Fatalf("expected a web-channel audit record, got %+v", comms)
	}
}

func TestHandleWebActionRejectsBadToken(t *testing.T) {
	repo := newWorkflowRepoStub()
	svc := newTestService(t, repo, nil)
	req := repo.addRequest(domain.RequestStatusPending, "Jane Doe", "jane@example.com", 5000)

	if _, err := svc.HandleWebAction(context.Background(), req.ID, token.ActionApprove, "forged"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	// A reject token must not authorize approve.
	rejectToken := extractToken(t, svc.ActionLink(req.ID, token.ActionReject))
	if _, err := svc.HandleWebAction(context.Background(), req.ID, token.ActionApprove, rejectToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for a retargeted token, got %v", err)
	}

	if _, err := svc.HandleWebAction(context.Background(), req.ID, "delete", "whatever"); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}

	if repo.requests[req.ID].Status != domain.RequestStatusPending {
		t.Fatal("request must stay pending after rejected tokens")
	}
}

func TestUpdateTreasurySettingsValidation(t *testing.T) {
	repo := newWorkflowRepoStub()
	svc := newTestService(t, repo, nil)

	negative := -1
	if _, err := svc.UpdateTreasurySettings(context.Background(), domain.UpdateTreasurySettingsPayload{AutoSendDelayHours: &negative}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings for a negative delay, got %v", err)
	}

	zero := int64(0)
	if _, err := svc.UpdateTreasurySettings(context.Background(), domain.UpdateTreasurySettingsPayload{MaxAmountCents: &zero}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings for a non-positive cap, got %v", err)
	}

	notAnEmail := "not-an-email"
	if _, err := svc.UpdateTreasurySettings(context.Background(), domain.UpdateTreasurySettingsPayload{TreasurerEmail: &notAnEmail}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings for a malformed email, got %v", err)
	}
}

func extractToken(t *testing.T, link string) string {
	t.Helper()
	idx := strings.Index(link, "token=")
	if idx < 0 {
		t.Fatalf("no token query param in %q", link)
	}
	return link[idx+len("token="):]
}
