/**
 * @description
 * Signed, time-bounded action tokens for the one-click approval links
 * embedded in treasurer emails. The payload is `requestID:action:issuedAtMs`
 * and is authenticated with HMAC-SHA256, so a token cannot be forged or
 * retargeted at a different request or action. Verification fails closed:
 * any decode error, payload mismatch, bad signature, or expiry yields false.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256: Payload signing and constant-time comparison.
 * - encoding/base64: URL-safe transport encoding for the link query param.
 */

package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAge is how long an action link stays valid unless overridden.
const DefaultMaxAge = 7 * 24 * time.Hour

// Actions a token can authorize.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

var ErrEmptySecret = errors.New("action token secret must not be empty")

// Signer issues and verifies action tokens with a shared HMAC secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer. The secret must be non-empty; an unsigned token
// scheme would let anyone who can guess the payload format approve requests.
func NewSigner(secret string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// WithClock overrides the time source. Intended for tests.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Issue creates a token authorizing `action` on `requestID`, stamped with the
// current time.
func (s *Signer) Issue(requestID uuid.UUID, action string) string {
	payload := fmt.Sprintf("%s:%s:%d", requestID, action, s.now().UnixMilli())
	mac := s.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + base64.RawURLEncoding.EncodeToString(mac)
}

// Verify checks that `token` authorizes `action` on `requestID` and was
// issued within `maxAge` of now. Pass maxAge <= 0 for DefaultMaxAge.
func (s *Signer) Verify(token string, requestID uuid.UUID, action string, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	payloadPart, macPart, found := strings.Cut(token, ".")
	if !found {
		return false
	}
	payloadBytes, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return false
	}
	macBytes, err := base64.RawURLEncoding.DecodeString(macPart)
	if err != nil {
		return false
	}
	payload := string(payloadBytes)
	if !hmac.Equal(macBytes, s.sign(payload)) {
		return false
	}

	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return false
	}
	tokenRequestID, err := uuid.Parse(parts[0])
	if err != nil || tokenRequestID != requestID {
		return false
	}
	if parts[1] != action {
		return false
	}
	issuedAtMs, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return false
	}
	issuedAt := time.UnixMilli(issuedAtMs)
	age := s.now().Sub(issuedAt)
	if age < 0 || age > maxAge {
		return false
	}
	return true
}

func (s *Signer) sign(payload string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
