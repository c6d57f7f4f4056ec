package domain

import (
	"fmt"
	"strings"
)

// Channel topic metadata is the only persistence mechanism: the opener and
// category are stamped into the ticket channel's topic so the controller is
// stateless across restarts. Format:
//
//	ticket:v1 opener=<id> category=<value> [claimant=<id>]
const topicPrefix = "ticket:v1"

// EncodeTopic renders ticket identity into a channel topic string.
func EncodeTopic(t Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s opener=%s category=%s", topicPrefix, t.OpenerID, t.CategoryValue)
	if t.ClaimantID != "" {
		fmt.Fprintf(&b, " claimant=%s", t.ClaimantID)
	}
	return b.String()
}

// ParseTopic re-derives ticket identity from a channel topic. The second
// return value is false when the topic does not carry ticket metadata.
func ParseTopic(channelID, topic string) (Ticket, bool) {
	fields := strings.Fields(topic)
	if len(fields) == 0 || fields[0] != topicPrefix {
		return Ticket{}, false
	}

	t := Ticket{ChannelID: channelID, Status: TicketStatusOpen}
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok || value == "" {
			continue
		}
		switch key {
		case "opener":
			t.OpenerID = value
		case "category":
			t.CategoryValue = value
		case "claimant":
			t.ClaimantID = value
			t.Status = TicketStatusClaimed
		}
	}
	if t.OpenerID == "" || t.CategoryValue == "" {
		return Ticket{}, false
	}
	return t, true
}
