package domain

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

// A pending close has no status of its own: it exists only as the
// outstanding confirmation prompt and is never written to metadata.
const (
	TicketStatusOpen    TicketStatus = "OPEN"
	TicketStatusClaimed TicketStatus = "CLAIMED"
	TicketStatusClosed  TicketStatus = "CLOSED"
)

// FormFields carries the structured intake payload for form-backed
// categories. Field content is rendered verbatim; only presence is checked
// at submit time.
type FormFields struct {
	Script    string
	Version   string
	Framework string
}

// IsComplete reports whether every required field is non-empty.
func (f FormFields) IsComplete() bool {
	return f.Script != "" && f.Version != "" && f.Framework != ""
}

// TicketRequest describes a user's intent to open a ticket, created when
// category selection (or the follow-up form) completes.
type TicketRequest struct {
	OpenerID      string
	CategoryValue string
	Form          *FormFields
}

// Ticket is the live, channel-backed support request. Its identity is the
// underlying channel; it ceases to exist when the channel is deleted.
type Ticket struct {
	ChannelID     string
	OpenerID      string
	CategoryValue string
	ClaimantID    string
	Status        TicketStatus
}
