/**
 * @description
 * Notification dispatch for draw-request lifecycle changes. The engine treats
 * delivery as an external collaborator: it publishes an event describing the
 * change and a notification worker handles email/Slack transport. A dispatch
 * failure is logged and swallowed; it must never fail the workflow operation
 * that triggered it.
 */

package app

import (
	"context"
	"log"

	"github.com/transfa/treasury-service/internal/domain"
	"github.com/transfa/treasury-service/pkg/rabbitmq"
)

// Notifier is the outbound notification contract.
type Notifier interface {
	Send(ctx context.Context, kind string, request *domain.DrawRequest, extra map[string]string) error
}

// EventNotifier publishes request notifications to a RabbitMQ topic exchange
// under `treasury.<kind>` routing keys.
type EventNotifier struct {
	producer rabbitmq.Publisher
	exchange string
}

// NewEventNotifier creates a notifier publishing to the given exchange.
func NewEventNotifier(producer rabbitmq.Publisher, exchange string) *EventNotifier {
	return &EventNotifier{producer: producer, exchange: exchange}
}

// Send publishes one notification event. The caller decides whether the
// error matters; workflow call sites only log it.
func (n *EventNotifier) Send(ctx context.Context, kind string, request *domain.DrawRequest, extra map[string]string) error {
	event := domain.RequestNotificationEvent{
		Kind:    kind,
		Context: extra,
	}
	if request != nil {
		event.RequestID = request.ID
		event.RequestNumber = request.RequestNumber
		event.TotalAmountCents = request.TotalAmountCents
		event.Currency = request.Currency
		event.TreasurerEmail = request.TreasurerEmail
		switch kind {
		case domain.NotifyRequestApproved:
			if request.ApprovedBy != nil {
				event.Actor = *request.ApprovedBy
			}
			if request.ApprovalMessage != nil {
				event.Message = *request.ApprovalMessage
			}
		case domain.NotifyRequestRejected:
			if request.RejectedBy != nil {
				event.Actor = *request.RejectedBy
			}
			if request.RejectionReason != nil {
				event.Message = *request.RejectionReason
			}
		case domain.NotifyRequestCancelled:
			if request.CancelledBy != nil {
				event.Actor = *request.CancelledBy
			}
		}
	}
	return n.producer.Publish(ctx, n.exchange, "treasury."+kind, event)
}

// dispatchNotification sends via the configured notifier and downgrades any
// failure to a log line. Notification errors are never workflow errors.
func dispatchNotification(ctx context.Context, notifier Notifier, kind string, request *domain.DrawRequest, extra map[string]string) {
	if notifier == nil {
		return
	}
	if err := notifier.Send(ctx, kind, request, extra); err != nil {
		number := ""
		if request != nil {
			number = request.RequestNumber
		}
		log.Printf("level=warn component=notifier msg=\"notification dispatch failed\" kind=%s request_number=%s err=%v", kind, number, err)
	}
}
