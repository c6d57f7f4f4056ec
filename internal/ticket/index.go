package ticket

import (
	"context"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/gateway"
)

// Index answers "does an open ticket exist for (opener, category)". The
// channel topic stays the source of truth either way; an index backend only
// changes how the lookup is served.
type Index interface {
	// FindOpen returns the channel id of an existing open ticket.
	FindOpen(ctx context.Context, openerID, categoryValue string) (string, bool, error)
	// Add records a freshly provisioned ticket.
	Add(ctx context.Context, t domain.Ticket) error
	// Remove forgets a ticket once its channel is deleted.
	Remove(ctx context.Context, t domain.Ticket) error
}

// TopicIndex is the default backend: it scans the guild's channel metadata
// on every lookup, so it needs no writes of its own.
type TopicIndex struct {
	gw      gateway.Gateway
	guildID string
}

// NewTopicIndex builds the metadata-scanning index.
func NewTopicIndex(gw gateway.Gateway, guildID string) *TopicIndex {
	return &TopicIndex{gw: gw, guildID: guildID}
}

// FindOpen scans channel topics for matching ticket metadata.
func (x *TopicIndex) FindOpen(ctx context.Context, openerID, categoryValue string) (string, bool, error) {
	channels, err := x.gw.ListChannels(ctx, x.guildID)
	if err != nil {
		return "", false, err
	}
	for _, ch := range channels {
		t, ok := domain.ParseTopic(ch.ID, ch.Topic)
		if !ok {
			continue
		}
		if t.OpenerID == openerID && t.CategoryValue == categoryValue {
			return ch.ID, true, nil
		}
	}
	return "", false, nil
}

// Add is a no-op: the topic stamped at provisioning is the record.
func (x *TopicIndex) Add(ctx context.Context, t domain.Ticket) error {
	return nil
}

// Remove is a no-op: deleting the channel removes the record.
func (x *TopicIndex) Remove(ctx context.Context, t domain.Ticket) error {
	return nil
}
