package gateway

import (
	"context"
	"time"
)

// OverwriteKind identifies the target of a channel permission overwrite.
type OverwriteKind string

const (
	OverwriteEveryone OverwriteKind = "everyone"
	OverwriteRole     OverwriteKind = "role"
	OverwriteMember   OverwriteKind = "member"
)

// Overwrite grants or denies channel visibility for one target. Allow
// grants view and send; deny hides the channel entirely.
type Overwrite struct {
	TargetID string
	Kind     OverwriteKind
	Allow    bool
}

// CreateChannelInput describes a private ticket channel to provision.
type CreateChannelInput struct {
	Name       string
	ParentID   string
	Topic      string
	Overwrites []Overwrite
}

// ChannelInfo is the platform view of a channel.
type ChannelInfo struct {
	ID       string
	Name     string
	Topic    string
	ParentID string
	GuildID  string
}

// ChannelEdit carries partial channel updates; nil fields are untouched.
type ChannelEdit struct {
	Name  *string
	Topic *string
}

// ButtonStyle mirrors the platform's button palette.
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSuccess
	ButtonDanger
	ButtonSecondary
)

// Button is one interactive control attached to a message.
type Button struct {
	ID       string
	Label    string
	Style    ButtonStyle
	Disabled bool
}

// SelectOption is one entry of a select menu.
type SelectOption struct {
	Label       string
	Value       string
	Description string
	Emoji       string
}

// Select is a single select-menu control.
type Select struct {
	ID          string
	Placeholder string
	Options     []SelectOption
}

// Embed is a minimal rich-content block.
type Embed struct {
	Title       string
	Description string
	Footer      string
	Color       int
}

// File is an opaque attachment, such as a rendered transcript.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is an outbound message with optional structured controls.
type Message struct {
	Content string
	Embed   *Embed
	Buttons []Button
	Select  *Select
	Files   []File
	// MentionRoleIDs and MentionUserIDs limit which mentions in Content
	// actually ping.
	MentionRoleIDs []string
	MentionUserIDs []string
}

// HistoryMessage is one entry of a channel's message history, oldest first
// when returned by Gateway.ChannelHistory.
type HistoryMessage struct {
	ID         string
	AuthorID   string
	AuthorName string
	Bot        bool
	Content    string
	Timestamp  time.Time
}

// ModalField is a required single-line text input of a modal form.
type ModalField struct {
	ID    string
	Label string
}

// Modal is a structured intake form. The ID embeds correlation state (the
// category value) so the later submission needs no session tracking.
type Modal struct {
	ID     string
	Title  string
	Fields []ModalField
}

// Gateway exposes the chat platform's channel, message, and user
// primitives. The lifecycle controller only ever talks to this contract.
type Gateway interface {
	CreateChannel(ctx context.Context, guildID string, input CreateChannelInput) (ChannelInfo, error)
	EditChannel(ctx context.Context, channelID string, edit ChannelEdit) error
	DeleteChannel(ctx context.Context, channelID string) error
	ListChannels(ctx context.Context, guildID string) ([]ChannelInfo, error)
	Channel(ctx context.Context, channelID string) (ChannelInfo, error)
	SendMessage(ctx context.Context, channelID string, msg Message) (string, error)
	EditMessage(ctx context.Context, channelID, messageID string, msg Message) error
	ChannelHistory(ctx context.Context, channelID string, limit int) ([]HistoryMessage, error)
	SendDM(ctx context.Context, userID string, msg Message) error
}

// EventKind discriminates inbound interaction events.
type EventKind string

const (
	KindCommand EventKind = "command"
	KindSelect  EventKind = "select"
	KindModal   EventKind = "modal"
	KindButton  EventKind = "button"
)

// Event is the platform-independent payload of one inbound interaction.
type Event struct {
	Kind        EventKind
	Command     string
	ComponentID string
	Selected    string
	FormValues  map[string]string

	ActorID      string
	ActorName    string
	ActorRoles   []string
	ActorIsAdmin bool

	GuildID   string
	ChannelID string
	// MessageID is the message the component lives on (the panel or the
	// ticket intro message) for component interactions.
	MessageID string
}

// HasRole reports whether the actor holds the given role.
func (e Event) HasRole(roleID string) bool {
	for _, id := range e.ActorRoles {
		if id == roleID {
			return true
		}
	}
	return false
}

// Responder acknowledges the interaction that produced an Event. The
// reply-versus-follow-up decision is resolved internally so that every
// request is acknowledged exactly once, never zero and never twice.
type Responder interface {
	// Notify sends an ephemeral text notice, scheduled to self-clear.
	Notify(ctx context.Context, content string) error
	// NotifyMessage sends an ephemeral message with controls (for example
	// the close-confirmation prompt). It is not auto-cleared.
	NotifyMessage(ctx context.Context, msg Message) error
	// Update edits the source message of a component interaction in place.
	Update(ctx context.Context, msg Message) error
	// ShowModal opens a structured intake form.
	ShowModal(ctx context.Context, modal Modal) error
	// Acknowledged reports whether the interaction has been replied to.
	Acknowledged() bool
}

// Handler processes one inbound event. Implementations must not block the
// gateway's event loop; the adapter runs each event on its own goroutine.
type Handler interface {
	Handle(ctx context.Context, ev Event, r Responder) error
}
