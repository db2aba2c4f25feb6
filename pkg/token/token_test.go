package token

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	signer, err := NewSigner("test-secret")
	if err != nil {
		t.Fatalf("NewSigner returned error: %v", err)
	}
	return signer
}

func TestNewSignerRejectsEmptySecret(t *testing.T) {
	if _, err := NewSigner(""); err != ErrEmptySecret {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
	if _, err := NewSigner("   "); err != ErrEmptySecret {
		t.Fatalf("expected ErrEmptySecret for whitespace secret, got %v", err)
	}
}

func TestIssueAndVerifyRoundtrip(t *testing.T) {
	signer := newTestSigner(t)
	requestID := uuid.New()

	tok := signer.Issue(requestID, ActionApprove)
	if !signer.Verify(tok, requestID, ActionApprove, time.Hour) {
		t.Fatal("expected freshly issued token to verify")
	}
}

func TestVerifyRejectsWrongRequest(t *testing.T) {
	signer := newTestSigner(t)

	tok := signer.Issue(uuid.New(), ActionApprove)
	if signer.Verify(tok, uuid.New(), ActionApprove, time.Hour) {
		t.Fatal("token must not verify against a different request")
	}
}

func TestVerifyRejectsWrongAction(t *testing.T) {
	signer := newTestSigner(t)
	requestID := uuid.New()

	tok := signer.Issue(requestID, ActionApprove)
	if signer.Verify(tok, requestID, ActionReject, time.Hour) {
		t.Fatal("an approve token must not authorize reject")
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	signer := newTestSigner(t)
	requestID := uuid.New()

	tok := signer.Issue(requestID, ActionApprove)
	parts := strings.SplitN(tok, ".", 2)

	tampered := []string{
		parts[0] + "x." + parts[1],
		parts[0] + "." + parts[1] + "x",
		parts[0],
		"",
		"not-base64.!!!",
	}
	for _, tt := range tampered {
		if signer.Verify(tt, requestID, ActionApprove, time.Hour) {
			t.Fatalf("tampered token %q must not verify", tt)
		}
	}
}

func TestVerifyRejectsDifferentSecret(t *testing.T) {
	signer := newTestSigner(t)
	other, err := NewSigner("other-secret")
	if err != nil {
		t.Fatalf("NewSigner returned error: %v", err)
	}
	requestID := uuid.New()

	tok := signer.Issue(requestID, ActionApprove)
	if other.Verify(tok, requestID, ActionApprove, time.Hour) {
		t.Fatal("token must not verify under a different secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	signer := newTestSigner(t)
	requestID := uuid.New()

	issuedAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	signer.WithClock(func() time.Time { return issuedAt })
	tok := signer.Issue(requestID, ActionApprove)

	signer.WithClock(func() time.Time { return issuedAt.Add(48*time.Hour + time.Second) })
	if signer.Verify(tok, requestID, ActionApprove, 48*time.Hour) {
		t.Fatal("expected token past max age to be rejected")
	}

	signer.WithClock(func() time.Time { return issuedAt.Add(48 * time.Hour) })
	if !signer.Verify(tok, requestID, ActionApprove, 48*time.Hour) {
		t.Fatal("expected token exactly at max age to verify")
	}
}

func TestVerifyRejectsFutureIssuedToken(t *testing.T) {
	signer := newTestSigner(t)
	requestID := uuid.New()

	issuedAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	signer.WithClock(func() time.Time { return issuedAt })
	tok := signer.Issue(requestID, ActionApprove)

	// Clock skew backwards makes the token appear issued in the future.
	signer.WithClock(func() time.Time { return issuedAt.Add(-time.Minute) })
	if signer.Verify(tok, requestID, ActionApprove, time.Hour) {
		t.Fatal("expected a future-issued token to be rejected")
	}
}

func TestVerifyDefaultsMaxAge(t *testing.T) {
	signer := newTestSigner(t)
	requestID := uuid.New()

	tok := signer.Issue(requestID, ActionApprove)
	if !signer.Verify(tok, requestID, ActionApprove, 0) {
		t.Fatal("expected non-positive max age to fall back to the default")
	}
}
