// Package ticket implements the ticket lifecycle: panel posting, category
// selection, channel provisioning, claim, and the two-step close flow.
package ticket

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/gateway"
	"github.com/spec-kit/ticket-bot/internal/locks"
	"github.com/spec-kit/ticket-bot/internal/transcript"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

// Component identifiers. The form id embeds the category value so a modal
// submission is correlated by id alone, never by session state.
const (
	selectID     = "ticket_select"
	formIDPrefix = "ticket_form:"
	claimID      = "ticket_claim"
	closeID      = "ticket_close"
	confirmID    = "ticket_close_confirm"
	cancelID     = "ticket_close_cancel"
)

// Controller owns all ticket state transitions and validation rules. It is
// stateless across restarts: ticket identity lives in channel metadata.
type Controller struct {
	discord    config.DiscordConfig
	policy     config.TicketsConfig
	panel      *config.PanelConfig
	categories *domain.CategorySet
	gw         gateway.Gateway
	index      Index
	archiver   transcript.Archiver
	provision  *locks.KeyedMutex
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// ControllerDependencies bundles collaborators for the controller.
type ControllerDependencies struct {
	Discord    config.DiscordConfig
	Policy     config.TicketsConfig
	Panel      *config.PanelConfig
	Gateway    gateway.Gateway
	Index      Index
	Archiver   transcript.Archiver
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewController constructs the controller.
func NewController(deps ControllerDependencies) *Controller {
	return &Controller{
		discord:    deps.Discord,
		policy:     deps.Policy,
		panel:      deps.Panel,
		categories: domain.NewCategorySet(deps.Panel.Categories),
		gw:         deps.Gateway,
		index:      deps.Index,
		archiver:   deps.Archiver,
		provision:  locks.NewKeyedMutex(),
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// Handle routes one inbound event to its lifecycle operation. Unrecognized
// events are ignored.
func (c *Controller) Handle(ctx context.Context, ev gateway.Event, r gateway.Responder) error {
	switch {
	case ev.Kind == gateway.KindCommand && ev.Command == "panel":
		return c.postPanel(ctx, ev, r)
	case ev.Kind == gateway.KindSelect && ev.ComponentID == selectID:
		return c.handleSelection(ctx, ev, r)
	case ev.Kind == gateway.KindModal && strings.HasPrefix(ev.ComponentID, formIDPrefix):
		return c.handleFormSubmit(ctx, ev, r)
	case ev.Kind == gateway.KindButton:
		switch ev.ComponentID {
		case claimID:
			return c.handleClaim(ctx, ev, r)
		case closeID:
			return c.requestClose(ctx, ev, r)
		case cancelID:
			return c.cancelClose(ctx, ev, r)
		case confirmID:
			return c.confirmClose(ctx, ev, r)
		}
	}
	return nil
}

// postPanel sends the category-selection UI to the invoking channel.
func (c *Controller) postPanel(ctx context.Context, ev gateway.Event, r gateway.Responder) error {
	if !ev.ActorIsAdmin {
		return apperrors.NewPermissionDenied("you need administrator permission to post the panel")
	}
	if _, err := c.gw.SendMessage(ctx, ev.ChannelID, c.panelMessage()); err != nil {
		return apperrors.NewInternalError(fmt.Errorf("post panel: %w", err))
	}
	return r.Notify(ctx, "Panel posted.")
}

func (c *Controller) panelMessage() gateway.Message {
	options := make([]gateway.SelectOption, 0, c.categories.Len())
	for _, cat := range c.categories.All() {
		options = append(options, gateway.SelectOption{
			Label:       cat.Label,
			Value:       cat.Value,
			Description: cat.Description,
			Emoji:       cat.Emoji,
		})
	}
	return gateway.Message{
		Embed: &gateway.Embed{
			Title:       c.panel.Title,
			Description: c.panel.Description,
			Color:       c.panel.EmbedColor,
		},
		Select: &gateway.Select{
			ID:          selectID,
			Placeholder: "Select a category...",
			Options:     options,
		},
	}
}

// handleSelection validates a category choice and routes to either a form
// prompt or direct provisioning.
func (c *Controller) handleSelection(ctx context.Context, ev gateway.Event, r gateway.Responder) error {
	// Re-render the panel in place so the select stays reusable. This edits
	// the panel message directly instead of consuming the interaction, so
	// it is independent of (and order-insensitive with) the modal prompt.
	c.resetPanelView(ctx, ev)

	cat, ok := c.categories.Get(ev.Selected)
	if !ok {
		return apperrors.NewUnknownCategory(ev.Selected)
	}

	if cat.RequiresRole && !ev.HasRole(c.discord.CustomerRoleID) {
		return apperrors.NewForbidden("this category is reserved for customers")
	}

	if c.policy.Dedup {
		channelID, exists, err := c.index.FindOpen(ctx, ev.ActorID, cat.Value)
		if err != nil {
			return apperrors.NewInternalError(fmt.Errorf("duplicate check: %w", err))
		}
		if exists {
			return apperrors.NewDuplicateTicket(channelID)
		}
	}

	if cat.RequiresForm {
		return r.ShowModal(ctx, gateway.Modal{
			ID:    formIDPrefix + cat.Value,
			Title: cat.Label,
			Fields: []gateway.ModalField{
				{ID: "script", Label: "Script Name"},
				{ID: "version", Label: "Version"},
				{ID: "framework", Label: "Framework"},
			},
		})
	}

	return c.provisionTicket(ctx, ev, r, cat, domain.TicketRequest{
		OpenerID:      ev.ActorID,
		CategoryValue: cat.Value,
	})
}

func (c *Controller) resetPanelView(ctx context.Context, ev gateway.Event) {
	if ev.MessageID == "" {
		return
	}
	if err := c.gw.EditMessage(ctx, ev.ChannelID, ev.MessageID, c.panelMessage()); err != nil {
		c.logger.Warn("panel reset failed", zap.String("message_id", ev.MessageID), zap.Error(err))
	}
}

// handleFormSubmit resumes ticket creation after structured intake. The
// category travels in the modal id.
func (c *Controller) handleFormSubmit(ctx context.Context, ev gateway.Event, r gateway.Responder) error {
	value := strings.TrimPrefix(ev.ComponentID, formIDPrefix)
	cat, ok := c.categories.Get(value)
	if !ok {
		return apperrors.NewUnknownCategory(value)
	}

	form := domain.FormFields{
		Script:    strings.TrimSpace(ev.FormValues["script"]),
		Version:   strings.TrimSpace(ev.FormValues["version"]),
		Framework: strings.TrimSpace(ev.FormValues["framework"]),
	}
	if !form.IsComplete() {
		return apperrors.NewValidationError("all form fields are required", nil)
	}

	return c.provisionTicket(ctx, ev, r, cat, domain.TicketRequest{
		OpenerID:      ev.ActorID,
		CategoryValue: cat.Value,
		Form:          &form,
	})
}

// provisionTicket atomically creates the backing channel and its intro
// message, then acknowledges the request exactly once.
func (c *Controller) provisionTicket(ctx context.Context, ev gateway.Event, r gateway.Responder, cat domain.Category, req domain.TicketRequest) error {
	// Serialize per (opener, category) so near-simultaneous requests from
	// the same user cannot both pass the duplicate check. The underlying
	// check-then-act stays best-effort across processes.
	release := c.provision.Lock(req.OpenerID + "|" + req.CategoryValue)
	defer release()

	if c.policy.Dedup {
		channelID, exists, err := c.index.FindOpen(ctx, req.OpenerID, req.CategoryValue)
		if err != nil {
			return apperrors.NewInternalError(fmt.Errorf("duplicate check: %w", err))
		}
		if exists {
			return apperrors.NewDuplicateTicket(channelID)
		}
	}

	t := domain.Ticket{
		OpenerID:      req.OpenerID,
		CategoryValue: req.CategoryValue,
		Status:        domain.TicketStatusOpen,
	}

	channel, err := c.gw.CreateChannel(ctx, ev.GuildID, gateway.CreateChannelInput{
		Name:     "ticket-" + sanitizeChannelName(ev.ActorName),
		ParentID: cat.ParentID,
		Topic:    domain.EncodeTopic(t),
		Overwrites: []gateway.Overwrite{
			{Kind: gateway.OverwriteEveryone, Allow: false},
			{Kind: gateway.OverwriteMember, TargetID: ev.ActorID, Allow: true},
			{Kind: gateway.OverwriteRole, TargetID: c.discord.StaffRoleID, Allow: true},
		},
	})
	if err != nil {
		return apperrors.NewProvisioningFailed(err)
	}
	t.ChannelID = channel.ID

	if _, err := c.gw.SendMessage(ctx, channel.ID, c.introMessage(ev, cat, req.Form)); err != nil {
		// A ticket without its intro message is not referencable; tear the
		// channel down best effort.
		if delErr := c.gw.DeleteChannel(ctx, channel.ID); delErr != nil {
			c.logger.Error("orphan channel cleanup failed",
				zap.String("channel_id", channel.ID), zap.Error(delErr))
		}
		return apperrors.NewProvisioningFailed(err)
	}

	if err := c.index.Add(ctx, t); err != nil {
		c.logger.Warn("ticket index add failed", zap.String("channel_id", t.ChannelID), zap.Error(err))
	}

	c.publishEvent(ctx, events.Event{
		Type:      events.EventTicketOpened,
		ChannelID: t.ChannelID,
		ActorID:   ev.ActorID,
		Payload: events.TicketOpenedPayload{
			OpenerID:      t.OpenerID,
			CategoryValue: t.CategoryValue,
			Form:          req.Form,
		},
	})

	return r.Notify(ctx, fmt.Sprintf("Ticket created: <#%s>", channel.ID))
}

func (c *Controller) introMessage(ev gateway.Event, cat domain.Category, form *domain.FormFields) gateway.Message {
	var desc strings.Builder
	fmt.Fprintf(&desc, "**Category:** %s\n**Opened by:** <@%s>\n", cat.Label, ev.ActorID)
	if form != nil {
		fmt.Fprintf(&desc, "\n**Script:** %s\n**Version:** %s\n**Framework:** %s\n",
			form.Script, form.Version, form.Framework)
	}
	return gateway.Message{
		Content:        fmt.Sprintf("<@&%s> <@%s>", c.discord.StaffRoleID, ev.ActorID),
		MentionRoleIDs: []string{c.discord.StaffRoleID},
		MentionUserIDs: []string{ev.ActorID},
		Embed: &gateway.Embed{
			Title:       "Support Ticket",
			Description: desc.String(),
			Color:       c.panel.EmbedColor,
			Footer:      "A staff member will be with you shortly.",
		},
		Buttons: []gateway.Button{
			{ID: claimID, Label: "Claim", Style: gateway.ButtonSuccess},
			{ID: closeID, Label: "Close", Style: gateway.ButtonDanger},
		},
	}
}

// handleClaim lets a staff member take ownership of a ticket.
func (c *Controller) handleClaim(ctx context.Context, ev gateway.Event, r gateway.Responder) error {
	if !ev.HasRole(c.discord.StaffRoleID) {
		return apperrors.NewForbidden("only staff can claim tickets")
	}

	t, err := c.ticketFromChannel(ctx, ev.ChannelID)
	if err != nil {
		return err
	}
	if t.ClaimantID != "" {
		// Already claimed. Leave the controls exactly as they are.
		return r.Notify(ctx, fmt.Sprintf("This ticket is already claimed by <@%s>.", t.ClaimantID))
	}

	t.ClaimantID = ev.ActorID
	t.Status = domain.TicketStatusClaimed

	// The random suffix disambiguates concurrent claims by staff members
	// sharing a display name.
	name := fmt.Sprintf("claimed-%s-%s", sanitizeChannelName(ev.ActorName), shortSuffix())
	topic := domain.EncodeTopic(t)
	if err := c.gw.EditChannel(ctx, ev.ChannelID, gateway.ChannelEdit{Name: &name, Topic: &topic}); err != nil {
		return apperrors.NewInternalError(fmt.Errorf("rename claimed channel: %w", err))
	}

	// Replace the Claim control with a disabled indicator; Close stays
	// active. This update is the interaction's acknowledgment.
	if err := r.Update(ctx, gateway.Message{Buttons: []gateway.Button{
		{ID: claimID, Label: "Claimed by " + ev.ActorName, Style: gateway.ButtonSuccess, Disabled: true},
		{ID: closeID, Label: "Close", Style: gateway.ButtonDanger},
	}}); err != nil {
		return apperrors.NewInternalError(fmt.Errorf("update claim controls: %w", err))
	}

	if _, err := c.gw.SendMessage(ctx, ev.ChannelID, gateway.Message{
		Content:        fmt.Sprintf("Ticket claimed by <@%s>.", ev.ActorID),
		MentionUserIDs: []string{ev.ActorID},
	}); err != nil {
		c.logger.Warn("claim announcement failed", zap.String("channel_id", ev.ChannelID), zap.Error(err))
	}

	c.publishEvent(ctx, events.Event{
		Type:      events.EventTicketClaimed,
		ChannelID: ev.ChannelID,
		ActorID:   ev.ActorID,
		Payload: events.TicketClaimedPayload{
			ClaimantID:  ev.ActorID,
			ChannelName: name,
		},
	})
	return nil
}

// requestClose posts the private Confirm/Cancel prompt. The ticket itself
// is not mutated.
func (c *Controller) requestClose(ctx context.Context, ev gateway.Event, r gateway.Responder) error {
	t, err := c.ticketFromChannel(ctx, ev.ChannelID)
	if err != nil {
		return err
	}
	if err := c.authorizeClose(ev, t); err != nil {
		return err
	}
	return r.NotifyMessage(ctx, gateway.Message{
		Content: "Close this ticket? The channel will be deleted after the transcript is archived.",
		Buttons: []gateway.Button{
			{ID: confirmID, Label: "Confirm", Style: gateway.ButtonDanger},
			{ID: cancelID, Label: "Cancel", Style: gateway.ButtonSecondary},
		},
	})
}

// cancelClose clears the confirmation prompt and leaves the ticket as it
// was.
func (c *Controller) cancelClose(ctx context.Context, ev gateway.Event, r gateway.Responder) error {
	return r.Update(ctx, gateway.Message{Content: "Ticket close cancelled."})
}

// confirmClose archives the transcript and deletes the channel. Ordering
// is load-bearing: the prompt is acknowledged first because the platform
// expects prompt acknowledgment independent of slow follow-up work, and
// the channel is deleted last, only after the transcript reached the
// archival channel.
func (c *Controller) confirmClose(ctx context.Context, ev gateway.Event, r gateway.Responder) error {
	channel, err := c.gw.Channel(ctx, ev.ChannelID)
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("fetch channel: %w", err))
	}
	t, ok := domain.ParseTopic(channel.ID, channel.Topic)
	if !ok {
		return apperrors.NewValidationError("this channel is not a ticket", nil)
	}
	if err := c.authorizeClose(ev, t); err != nil {
		return err
	}

	if err := r.Update(ctx, gateway.Message{Content: "Closing ticket, archiving transcript..."}); err != nil {
		c.logger.Warn("close acknowledgment failed", zap.String("channel_id", channel.ID), zap.Error(err))
	}

	artifact, err := c.archiver.Render(ctx, channel)
	if err != nil {
		return err
	}
	file := gateway.File{
		Name:        artifact.FileName,
		ContentType: artifact.ContentType,
		Data:        artifact.Data,
	}

	// Best-effort transcript copy to the opener; a closed DM inbox is
	// never surfaced as an error to staff.
	openerNotified := true
	if err := c.gw.SendDM(ctx, t.OpenerID, gateway.Message{
		Content: fmt.Sprintf("Your ticket **#%s** was closed. The transcript is attached.", channel.Name),
		Files:   []gateway.File{file},
	}); err != nil {
		openerNotified = false
		c.logger.Debug("transcript DM failed", zap.String("opener_id", t.OpenerID), zap.Error(err))
	}

	// The archival channel is the durable record: failure here aborts the
	// close and the channel is NOT deleted.
	transcriptID, err := c.gw.SendMessage(ctx, c.discord.TranscriptChannelID, gateway.Message{
		Content: fmt.Sprintf("Transcript for **#%s** (opened by <@%s>, category `%s`).",
			channel.Name, t.OpenerID, t.CategoryValue),
		Files: []gateway.File{file},
	})
	if err != nil {
		c.logger.Error("transcript archival failed",
			zap.String("channel_id", channel.ID), zap.Error(err))
		return apperrors.NewArchiverUnavailable(err)
	}

	if err := c.gw.DeleteChannel(ctx, channel.ID); err != nil {
		return apperrors.NewInternalError(fmt.Errorf("delete ticket channel: %w", err))
	}

	// Only forget the ticket once the channel is actually gone; dropping
	// the index entry first would let a duplicate open while a failed
	// deletion leaves the old channel alive.
	t.Status = domain.TicketStatusClosed
	if err := c.index.Remove(ctx, t); err != nil {
		c.logger.Warn("ticket index remove failed", zap.String("channel_id", channel.ID), zap.Error(err))
	}

	c.publishEvent(ctx, events.Event{
		Type:      events.EventTicketClosed,
		ChannelID: channel.ID,
		ActorID:   ev.ActorID,
		Payload: events.TicketClosedPayload{
			OpenerID:       t.OpenerID,
			CategoryValue:  t.CategoryValue,
			TranscriptID:   transcriptID,
			OpenerNotified: openerNotified,
		},
	})
	return nil
}

func (c *Controller) authorizeClose(ev gateway.Event, t domain.Ticket) error {
	if ev.HasRole(c.discord.StaffRoleID) || ev.ActorID == t.OpenerID {
		return nil
	}
	return apperrors.NewPermissionDenied("only staff or the ticket opener can close this ticket")
}

func (c *Controller) ticketFromChannel(ctx context.Context, channelID string) (domain.Ticket, error) {
	channel, err := c.gw.Channel(ctx, channelID)
	if err != nil {
		return domain.Ticket{}, apperrors.NewInternalError(fmt.Errorf("fetch channel: %w", err))
	}
	t, ok := domain.ParseTopic(channel.ID, channel.Topic)
	if !ok {
		return domain.Ticket{}, apperrors.NewValidationError("this channel is not a ticket", nil)
	}
	return t, nil
}

func (c *Controller) publishEvent(ctx context.Context, event events.Event) {
	if c.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = c.dispatcher.Publish(ctx, event)
}

func shortSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
}

// sanitizeChannelName lowercases a display name and strips anything the
// platform rejects in channel names.
func sanitizeChannelName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}
