/**
 * @description
 * Notification event payloads published to RabbitMQ when a draw request
 * changes state. The notification-worker consumes these and handles the
 * actual email/Slack delivery; this service only owns the dispatch contract.
 */

package domain

import "github.com/google/uuid"

// Notification kinds carried on the treasury events exchange.
const (
	NotifyRequestCreated   = "request.created"
	NotifyRequestApproved  = "request.approved"
	NotifyRequestRejected  = "request.rejected"
	NotifyRequestCancelled = "request.cancelled"
	NotifyTopupCreated     = "topup.created"
	NotifyTopupCompleted   = "topup.completed"
	NotifyLowBalance       = "balance.low"
)

// RequestNotificationEvent is the payload published for request lifecycle
// notifications.
type RequestNotificationEvent struct {
	Kind             string            `json:"kind"`
	RequestID        uuid.UUID         `json:"request_id"`
	RequestNumber    string            `json:"request_number"`
	TotalAmountCents int64             `json:"total_amount_cents"`
	Currency         string            `json:"currency"`
	TreasurerEmail   string            `json:"treasurer_email"`
	Actor            string            `json:"actor,omitempty"`
	Message          string            `json:"message,omitempty"`
	Context          map[string]string `json:"context,omitempty"`
}
