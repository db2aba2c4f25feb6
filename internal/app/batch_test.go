package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/transfa/treasury-service/internal/domain"
)

func newBatchRepoStub() *workflowRepoStub {
	repo := newWorkflowRepoStub()
	repo.settings.AutoSendEnabled = true
	repo.settings.AutoSendDelayHours = 24
	return repo
}

func batchClock(repo *workflowRepoStub) func() time.Time {
	// Two days past the stub's approval timestamps, well clear of the window.
	return func() time.Time { return repo.now.Add(48 * time.Hour) }
}

func TestRunAutoSendBatchDisabled(t *testing.T) {
	repo := newBatchRepoStub()
	repo.settings.AutoSendEnabled = false
	svc := newTestService(t, repo, nil)
	req := repo.addRequest(domain.RequestStatusApproved, "Jane Doe", "jane@example.com", 5000)
	repo.addWithdrawals(req.ID, 2, domain.WithdrawalStatusApproved)

	report, err := svc.RunAutoSendBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunAutoSendBatch returned error: %v", err)
	}
	if !report.Success || report.Processed != 0 || report.Failed != 0 {
		t.Fatalf("expected an empty successful report when disabled, got %+v", report)
	}
}

func TestRunAutoSendBatchFlipsWithdrawals(t *testing.T) {
	repo := newBatchRepoStub()
	svc := newTestService(t, repo, nil).WithClock(batchClock(repo))
	req := repo.addRequest(domain.RequestStatusApproved, "Jane Doe", "jane@example.com", 5000)
	repo.addWithdrawals(req.ID, 3, domain.WithdrawalStatusApproved)

	report, err := svc.RunAutoSendBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunAutoSendBatch returned error: %v", err)
	}
	if !report.Success {
		t.Fatalf("expected success, got %+v", report)
	}
	if report.Processed != 3 {
		t.Fatalf("expected 3 withdrawal rows processed, got %d", report.Processed)
	}

	for _, id := range repo.withdrawals[req.ID] {
		if repo.wdStatus[id] != domain.WithdrawalStatusProcessing {
			t.Fatalf("expected withdrawal %s flipped to processing, got %s", id, repo.wdStatus[id])
		}
	}
}

func TestRunAutoSendBatchIsolatesFailures(t *testing.T) {
	repo := newBatchRepoStub()
	svc := newTestService(t, repo, nil).WithClock(batchClock(repo))

	healthy := repo.addRequest(domain.RequestStatusApproved, "Jane Doe", "jane@example.com", 5000)
	repo.addWithdrawals(healthy.ID, 2, domain.WithdrawalStatusApproved)
	// A request with no linked withdrawals cannot be advanced.
	broken := repo.addRequest(domain.RequestStatusApproved, "Jane Doe", "jane@example.com", 7000)

	report, err := svc.RunAutoSendBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunAutoSendBatch returned error: %v", err)
	}
	if report.Success {
		t.Fatalf("expected the report to flag the failure, got %+v", report)
	}
	if report.Processed != 2 {
		t.Fatalf("expected the healthy request's 2 rows processed, got %d", report.Processed)
	}
	if report.Failed != 1 {
		t.Fatalf("expected 1 failed request, got %d", report.Failed)
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], broken.RequestNumber) {
		t.Fatalf("expected the error keyed by the request number, got %v", report.Errors)
	}
}

func TestRunAutoSendBatchRunTwiceIsIdempotent(t *testing.T) {
	repo := newBatchRepoStub()
	svc := newTestService(t, repo, nil).WithClock(batchClock(repo))
	req := repo.addRequest(domain.RequestStatusApproved, "Jane Doe", "jane@example.com", 5000)
	repo.addWithdrawals(req.ID, 2, domain.WithdrawalStatusApproved)

	first, err := svc.RunAutoSendBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("first run returned error: %v", err)
	}
	if first.Processed != 2 {
		t.Fatalf("expected 2 rows on the first run, got %d", first.Processed)
	}

	second, err := svc.RunAutoSendBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("second run returned error: %v", err)
	}
	if !second.Success || second.Processed != 0 || second.Failed != 0 {
		t.Fatalf("expected the second run to affect zero rows, got %+v", second)
	}
}

func TestRunAutoSendBatchRespectsMaxRequests(t *testing.T) {
	repo := newBatchRepoStub()
	svc := newTestService(t, repo, nil).WithClock(batchClock(repo))

	older := repo.addRequest(domain.RequestStatusApproved, "Jane Doe", "jane@example.com", 5000)
	olderApproved := repo.now.Add(-2 * time.Hour)
	repo.requests[older.ID].ApprovedAt = &olderApproved
	repo.addWithdrawals(older.ID, 1, domain.WithdrawalStatusApproved)

	newer := repo.addRequest(domain.RequestStatusApproved, "Jane Doe", "jane@example.com", 6000)
	repo.addWithdrawals(newer.ID, 1, domain.WithdrawalStatusApproved)

	report, err := svc.RunAutoSendBatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunAutoSendBatch returned error: %v", err)
	}
	if report.Processed != 1 {
		t.Fatalf("expected only one request handled, got %+v", report)
	}

	// Oldest approval first: the older request's withdrawal flipped, the
	// newer one did not.
	if repo.wdStatus[repo.withdrawals[older.ID][0]] != domain.WithdrawalStatusProcessing {
		t.Fatal("expected the oldest approved request to be processed first")
	}
	if repo.wdStatus[repo.withdrawals[newer.ID][0]] != domain.WithdrawalStatusApproved {
		t.Fatal("expected the newer request to wait for the next run")
	}
}

func TestRunAutoSendBatchSkipsRequestsDecidedMidRun(t *testing.T) {
	repo := newBatchRepoStub()
	svc := newTestService(t, repo, nil).WithClock(batchClock(repo))
	req := repo.addRequest(domain.RequestStatusApproved, "Jane Doe", "jane@example.com", 5000)
	repo.addWithdrawals(req.ID, 2, domain.WithdrawalStatusApproved)

	// The request loses its approved status between candidate selection and
	// processing; the pre-advance re-read must catch it.
	repo.afterCandidates = func() {
		repo.requests[req.ID].Status = domain.RequestStatusRejected
	}

	report, err := svc.RunAutoSendBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunAutoSendBatch returned error: %v", err)
	}
	if report.Processed != 0 {
		t.Fatalf("expected no rows processed, got %+v", report)
	}
	if report.Failed != 1 || len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "no longer approved") {
		t.Fatalf("expected the stale candidate reported, got %+v", report)
	}
	if repo.wdStatus[repo.withdrawals[req.ID][0]] != domain.WithdrawalStatusApproved {
		t.Fatal("withdrawals must not advance for a request decided mid-run")
	}
}
