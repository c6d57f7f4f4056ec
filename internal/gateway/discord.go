package gateway

import (
	"bytes"
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/observability"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

// Discord adapts the discordgo SDK to the Gateway contract and feeds
// inbound interactions to a Handler.
type Discord struct {
	session    *discordgo.Session
	cfg        config.DiscordConfig
	clearDelay time.Duration
	logger     *zap.Logger
	metrics    *observability.Metrics
	handler    Handler
}

// NewDiscord builds the adapter; the session stays closed until Open.
func NewDiscord(cfg config.DiscordConfig, clearDelay time.Duration, logger *zap.Logger, metrics *observability.Metrics) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	return &Discord{
		session:    session,
		cfg:        cfg,
		clearDelay: clearDelay,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// Open connects to the platform, registers the slash command, and starts
// dispatching interactions to the handler.
func (d *Discord) Open(handler Handler) error {
	d.handler = handler
	d.session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		go d.dispatch(i)
	})
	d.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		d.logger.Info("discord gateway connected", zap.String("user", r.User.Username))
	})

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}

	_, err := d.session.ApplicationCommandCreate(d.cfg.AppID, d.cfg.GuildID, &discordgo.ApplicationCommand{
		Name:        "panel",
		Description: "Post the support panel",
	})
	if err != nil {
		return fmt.Errorf("register slash command: %w", err)
	}
	d.logger.Info("slash command registered", zap.String("command", "panel"))
	return nil
}

// Close disconnects from the platform.
func (d *Discord) Close() error {
	return d.session.Close()
}

// dispatch runs one interaction as an independent unit of work. Faults are
// caught here: logged, counted, and answered with a notice if the
// interaction is still unacknowledged.
func (d *Discord) dispatch(i *discordgo.InteractionCreate) {
	ev, ok := d.eventFrom(i)
	if !ok {
		return
	}
	if d.cfg.GuildID != "" && ev.GuildID != d.cfg.GuildID {
		return
	}

	r := &interactionResponder{
		session:    d.session,
		i:          i.Interaction,
		clearDelay: d.clearDelay,
		logger:     d.logger,
	}

	kind := string(ev.Kind)
	d.metrics.RecordInteraction(kind)

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("panic in interaction handler",
				zap.Any("panic", rec),
				zap.String("kind", kind),
				zap.ByteString("stack", debug.Stack()))
			d.metrics.RecordError(kind, "PANIC")
			if !r.Acknowledged() {
				_ = r.Notify(context.Background(), "Something went wrong handling your request.")
			}
		}
	}()

	ctx := context.Background()
	if err := d.handler.Handle(ctx, ev, r); err != nil {
		de := apperrors.ToDomainError(err)
		d.metrics.RecordError(kind, de.Code)
		if de.Code == "INTERNAL_ERROR" {
			d.logger.Error("interaction failed", zap.String("kind", kind), zap.Error(de))
		} else {
			d.logger.Info("interaction rejected",
				zap.String("kind", kind),
				zap.String("code", de.Code),
				zap.String("actor", ev.ActorID))
		}
		// User-safe message only; internal detail stays in logs.
		_ = r.Notify(ctx, de.Message)
	}
}

func (d *Discord) eventFrom(i *discordgo.InteractionCreate) (Event, bool) {
	if i.Member == nil || i.Member.User == nil {
		return Event{}, false
	}
	ev := Event{
		ActorID:      i.Member.User.ID,
		ActorName:    i.Member.User.Username,
		ActorRoles:   i.Member.Roles,
		ActorIsAdmin: i.Member.Permissions&discordgo.PermissionAdministrator != 0,
		GuildID:      i.GuildID,
		ChannelID:    i.ChannelID,
	}
	if i.Message != nil {
		ev.MessageID = i.Message.ID
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		ev.Kind = KindCommand
		ev.Command = i.ApplicationCommandData().Name
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		ev.ComponentID = data.CustomID
		if data.ComponentType == discordgo.SelectMenuComponent {
			ev.Kind = KindSelect
			if len(data.Values) > 0 {
				ev.Selected = data.Values[0]
			}
		} else {
			ev.Kind = KindButton
		}
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		ev.Kind = KindModal
		ev.ComponentID = data.CustomID
		ev.FormValues = modalValues(data)
	default:
		return Event{}, false
	}
	return ev, true
}

func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, row := range data.Components {
		actionsRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, component := range actionsRow.Components {
			if input, ok := component.(*discordgo.TextInput); ok {
				values[input.CustomID] = input.Value
			}
		}
	}
	return values
}

// CreateChannel provisions a private text channel under a parent category.
func (d *Discord) CreateChannel(ctx context.Context, guildID string, input CreateChannelInput) (ChannelInfo, error) {
	overwrites := make([]*discordgo.PermissionOverwrite, 0, len(input.Overwrites))
	for _, ow := range input.Overwrites {
		overwrites = append(overwrites, permissionOverwrite(guildID, ow))
	}
	channel, err := d.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 input.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                input.Topic,
		ParentID:             input.ParentID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return ChannelInfo{}, err
	}
	return channelInfo(channel), nil
}

func permissionOverwrite(guildID string, ow Overwrite) *discordgo.PermissionOverwrite {
	out := &discordgo.PermissionOverwrite{ID: ow.TargetID}
	switch ow.Kind {
	case OverwriteMember:
		out.Type = discordgo.PermissionOverwriteTypeMember
	default:
		out.Type = discordgo.PermissionOverwriteTypeRole
	}
	if ow.Kind == OverwriteEveryone {
		// The @everyone role shares the guild id.
		out.ID = guildID
	}
	if ow.Allow {
		out.Allow = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages
	} else {
		out.Deny = discordgo.PermissionViewChannel
	}
	return out
}

// EditChannel applies partial channel updates (rename, topic restamp).
func (d *Discord) EditChannel(ctx context.Context, channelID string, edit ChannelEdit) error {
	data := &discordgo.ChannelEdit{}
	if edit.Name != nil {
		data.Name = *edit.Name
	}
	if edit.Topic != nil {
		data.Topic = *edit.Topic
	}
	_, err := d.session.ChannelEdit(channelID, data, discordgo.WithContext(ctx))
	return err
}

// DeleteChannel removes a channel. This is the irreversible terminal
// action of the close flow.
func (d *Discord) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := d.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return err
}

// ListChannels returns the guild's text channels.
func (d *Discord) ListChannels(ctx context.Context, guildID string) ([]ChannelInfo, error) {
	channels, err := d.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]ChannelInfo, 0, len(channels))
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		out = append(out, channelInfo(ch))
	}
	return out, nil
}

// Channel fetches a single channel.
func (d *Discord) Channel(ctx context.Context, channelID string) (ChannelInfo, error) {
	ch, err := d.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return ChannelInfo{}, err
	}
	return channelInfo(ch), nil
}

// SendMessage posts a message and returns its id.
func (d *Discord) SendMessage(ctx context.Context, channelID string, msg Message) (string, error) {
	send := &discordgo.MessageSend{
		Content:    msg.Content,
		Components: buildComponents(msg),
		Files:      buildFiles(msg.Files),
	}
	if msg.Embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{buildEmbed(msg.Embed)}
	}
	if len(msg.MentionRoleIDs) > 0 || len(msg.MentionUserIDs) > 0 {
		send.AllowedMentions = &discordgo.MessageAllowedMentions{
			Roles: msg.MentionRoleIDs,
			Users: msg.MentionUserIDs,
		}
	}
	sent, err := d.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return sent.ID, nil
}

// EditMessage re-renders an existing message in place. Used to reset the
// panel view without consuming the triggering interaction.
func (d *Discord) EditMessage(ctx context.Context, channelID, messageID string, msg Message) error {
	components := buildComponents(msg)
	edit := &discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Components: &components,
	}
	if msg.Content != "" {
		edit.Content = &msg.Content
	}
	if msg.Embed != nil {
		embeds := []*discordgo.MessageEmbed{buildEmbed(msg.Embed)}
		edit.Embeds = &embeds
	}
	_, err := d.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return err
}

// ChannelHistory returns up to limit messages, oldest first.
func (d *Discord) ChannelHistory(ctx context.Context, channelID string, limit int) ([]HistoryMessage, error) {
	var all []HistoryMessage
	beforeID := ""
	for limit > 0 {
		page := limit
		if page > 100 {
			page = 100
		}
		messages, err := d.session.ChannelMessages(channelID, page, beforeID, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if len(messages) == 0 {
			break
		}
		for _, m := range messages {
			all = append(all, HistoryMessage{
				ID:         m.ID,
				AuthorID:   m.Author.ID,
				AuthorName: m.Author.Username,
				Bot:        m.Author.Bot,
				Content:    m.Content,
				Timestamp:  m.Timestamp,
			})
		}
		beforeID = messages[len(messages)-1].ID
		limit -= len(messages)
	}
	// The API returns newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

// SendDM best-effort delivers a direct message to a user.
func (d *Discord) SendDM(ctx context.Context, userID string, msg Message) error {
	dm, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	_, err = d.SendMessage(ctx, dm.ID, msg)
	return err
}

func channelInfo(ch *discordgo.Channel) ChannelInfo {
	return ChannelInfo{
		ID:       ch.ID,
		Name:     ch.Name,
		Topic:    ch.Topic,
		ParentID: ch.ParentID,
		GuildID:  ch.GuildID,
	}
}

func buildEmbed(e *Embed) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	return embed
}

func buildComponents(msg Message) []discordgo.MessageComponent {
	if msg.Select != nil {
		options := make([]discordgo.SelectMenuOption, 0, len(msg.Select.Options))
		for _, o := range msg.Select.Options {
			option := discordgo.SelectMenuOption{
				Label:       o.Label,
				Value:       o.Value,
				Description: o.Description,
			}
			if o.Emoji != "" {
				option.Emoji = &discordgo.ComponentEmoji{Name: o.Emoji}
			}
			options = append(options, option)
		}
		return []discordgo.MessageComponent{discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{discordgo.SelectMenu{
				CustomID:    msg.Select.ID,
				Placeholder: msg.Select.Placeholder,
				Options:     options,
			}},
		}}
	}
	if len(msg.Buttons) == 0 {
		return nil
	}
	buttons := make([]discordgo.MessageComponent, 0, len(msg.Buttons))
	for _, b := range msg.Buttons {
		buttons = append(buttons, discordgo.Button{
			CustomID: b.ID,
			Label:    b.Label,
			Style:    buttonStyle(b.Style),
			Disabled: b.Disabled,
		})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func buttonStyle(style ButtonStyle) discordgo.ButtonStyle {
	switch style {
	case ButtonSuccess:
		return discordgo.SuccessButton
	case ButtonDanger:
		return discordgo.DangerButton
	case ButtonSecondary:
		return discordgo.SecondaryButton
	default:
		return discordgo.PrimaryButton
	}
}

func buildFiles(files []File) []*discordgo.File {
	if len(files) == 0 {
		return nil
	}
	out := make([]*discordgo.File, 0, len(files))
	for _, f := range files {
		out = append(out, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}
	return out
}

// interactionResponder acknowledges one interaction. The replied flag
// resolves reply-versus-follow-up so acknowledgment happens exactly once.
type interactionResponder struct {
	session    *discordgo.Session
	i          *discordgo.Interaction
	clearDelay time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	replied bool
}

func (r *interactionResponder) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replied
}

func (r *interactionResponder) Notify(ctx context.Context, content string) error {
	return r.respondEphemeral(ctx, &discordgo.InteractionResponseData{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	}, true)
}

func (r *interactionResponder) NotifyMessage(ctx context.Context, msg Message) error {
	data := &discordgo.InteractionResponseData{
		Content:    msg.Content,
		Components: buildComponents(msg),
		Flags:      discordgo.MessageFlagsEphemeral,
	}
	if msg.Embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{buildEmbed(msg.Embed)}
	}
	return r.respondEphemeral(ctx, data, false)
}

func (r *interactionResponder) respondEphemeral(ctx context.Context, data *discordgo.InteractionResponseData, autoClear bool) error {
	r.mu.Lock()
	first := !r.replied
	r.replied = true
	r.mu.Unlock()

	if first {
		err := r.session.InteractionRespond(r.i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: data,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		if autoClear {
			r.scheduleClear(func() error {
				return r.session.InteractionResponseDelete(r.i)
			})
		}
		return nil
	}

	params := &discordgo.WebhookParams{
		Content:    data.Content,
		Components: data.Components,
		Embeds:     data.Embeds,
		Flags:      data.Flags,
	}
	followup, err := r.session.FollowupMessageCreate(r.i, true, params, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	if autoClear {
		r.scheduleClear(func() error {
			return r.session.FollowupMessageDelete(r.i, followup.ID)
		})
	}
	return nil
}

// scheduleClear self-clears an ephemeral acknowledgment after the
// configured delay. Fire and forget: no cancellation if the parent request
// has already ended.
func (r *interactionResponder) scheduleClear(clear func() error) {
	if r.clearDelay <= 0 {
		return
	}
	go func() {
		time.Sleep(r.clearDelay)
		if err := clear(); err != nil {
			r.logger.Debug("ephemeral clear failed", zap.Error(err))
		}
	}()
}

func (r *interactionResponder) Update(ctx context.Context, msg Message) error {
	r.mu.Lock()
	first := !r.replied
	r.replied = true
	r.mu.Unlock()

	components := buildComponents(msg)
	if components == nil {
		// The platform only removes components on an explicit empty array;
		// a null leaves the old controls attached.
		components = []discordgo.MessageComponent{}
	}
	if first {
		data := &discordgo.InteractionResponseData{
			Content:    msg.Content,
			Components: components,
		}
		if msg.Embed != nil {
			data.Embeds = []*discordgo.MessageEmbed{buildEmbed(msg.Embed)}
		}
		// An update callback replaces the whole message, and unset fields
		// marshal as empty rather than being omitted. Carry the source
		// message's content and embeds forward so a components-only update
		// (the claim button swap) does not blank the intro.
		if src := r.i.Message; src != nil {
			if msg.Content == "" {
				data.Content = src.Content
			}
			if msg.Embed == nil {
				data.Embeds = src.Embeds
			}
		}
		return r.session.InteractionRespond(r.i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: data,
		}, discordgo.WithContext(ctx))
	}

	if r.i.Message == nil {
		return fmt.Errorf("no source message to update")
	}
	edit := &discordgo.MessageEdit{
		ID:         r.i.Message.ID,
		Channel:    r.i.ChannelID,
		Components: &components,
	}
	if msg.Content != "" {
		edit.Content = &msg.Content
	}
	_, err := r.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return err
}

func (r *interactionResponder) ShowModal(ctx context.Context, modal Modal) error {
	r.mu.Lock()
	r.replied = true
	r.mu.Unlock()

	rows := make([]discordgo.MessageComponent, 0, len(modal.Fields))
	for _, field := range modal.Fields {
		rows = append(rows, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{discordgo.TextInput{
				CustomID: field.ID,
				Label:    field.Label,
				Style:    discordgo.TextInputShort,
				Required: true,
			}},
		})
	}
	return r.session.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   modal.ID,
			Title:      modal.Title,
			Components: rows,
		},
	}, discordgo.WithContext(ctx))
}
