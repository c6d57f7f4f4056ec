package events

import (
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened  EventType = "ticket_opened"
	EventTicketClaimed EventType = "ticket_claimed"
	EventTicketClosed  EventType = "ticket_closed"
)

// Event represents a lifecycle event emitted by the controller.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ChannelID string      `json:"channel_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	OpenerID      string             `json:"opener_id"`
	CategoryValue string             `json:"category_value"`
	Form          *domain.FormFields `json:"form,omitempty"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	ClaimantID  string `json:"claimant_id"`
	ChannelName string `json:"channel_name"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	OpenerID       string `json:"opener_id"`
	CategoryValue  string `json:"category_value"`
	TranscriptID   string `json:"transcript_id,omitempty"`
	OpenerNotified bool   `json:"opener_notified"`
}
