/**
 * @description
 * Domain models for the treasury communication log and the inbound email
 * webhook payload. Communication rows are append-only: corrections are new
 * rows, never updates.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Communication directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Communication channels.
const (
	ChannelEmail = "email"
	ChannelWeb   = "web"
	ChannelSlack = "slack"
)

// Communication is one audit row in the treasury communication log. Inbound
// email rows carry the classifier output alongside the raw message.
type Communication struct {
	ID               uuid.UUID `json:"id" db:"id"`
	RequestID        uuid.UUID `json:"request_id" db:"request_id"`
	Direction        string    `json:"direction" db:"direction"`
	Channel          string    `json:"channel" db:"channel"`
	Subject          string    `json:"subject" db:"subject"`
	Body             string    `json:"body" db:"body"`
	FromEmail        string    `json:"from_email" db:"from_email"`
	ToEmail          string    `json:"to_email" db:"to_email"`
	ParsedStatus     *string   `json:"parsed_status,omitempty" db:"parsed_status"`
	ParsedConfidence *string   `json:"parsed_confidence,omitempty" db:"parsed_confidence"`
	MatchedKeywords  []string  `json:"matched_keywords,omitempty" db:"matched_keywords"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// InboundEmail is the payload posted by the mail-webhook collaborator.
// From, To, Subject and Text are required; a payload missing any of them is
// rejected before classification.
type InboundEmail struct {
	From      string            `json:"from"`
	To        string            `json:"to"`
	Subject   string            `json:"subject"`
	Text      string            `json:"text"`
	HTML      string            `json:"html,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	MessageID string            `json:"message_id,omitempty"`
}
